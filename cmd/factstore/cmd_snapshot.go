// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/filesystem"
)

func newBackupCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dir>",
		Short: "Copy every fact into a binary snapshot directory",
		Long: `backup writes each fact as {dir}/{ecosystem}/{tool}/{version}.bin in
the store's binary format. Unlike the JSON mirror the snapshot is
checksummed and can be restored without the database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			snapshot, err := filesystem.New(args[0], opts.logger.Slog())
			if err != nil {
				return err
			}
			defer snapshot.Close()

			n, err := copyFacts(cmd.Context(), snapshot, store, opts.logger.Slog())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backed up %d facts to %s\n", n, snapshot.Root())
			return nil
		},
	}
}

func newRestoreCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <dir>",
		Short: "Store every fact from a snapshot directory",
		Long: `restore reads a directory written by backup and stores each fact,
replacing stored facts with the same key. Facts not in the snapshot are
left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := filesystem.New(args[0], opts.logger.Slog())
			if err != nil {
				return err
			}
			defer snapshot.Close()

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := copyFacts(cmd.Context(), store, snapshot, opts.logger.Slog())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d facts from %s\n", n, snapshot.Root())
			return nil
		},
	}
}

// copyFacts stores every fact of src in dst and returns how many were
// copied. It stops at the first failed write.
func copyFacts(ctx context.Context, dst, src fact.Storage, logger *slog.Logger) (int, error) {
	entries, err := src.GetAllFacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("read facts: %w", err)
	}
	for i, e := range entries {
		if err := dst.StoreFact(ctx, e.Key, e.Data); err != nil {
			return i, fmt.Errorf("copy %s: %w", e.Key, err)
		}
	}
	logger.Debug("copied facts", slog.Int("count", len(entries)))
	return len(entries), nil
}
