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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore"
)

func newVersionsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <ecosystem> <tool>",
		Short: "List the stored versions of a tool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			versions, err := store.GetToolVersions(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func newLatestCmd(opts *cliOptions) *cobra.Command {
	var withData bool

	cmd := &cobra.Command{
		Use:   "latest <ecosystem> <tool>",
		Short: "Print the highest stored version of a tool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			version, data, ok, err := store.GetLatestVersion(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s/%s has no versions: %w", args[0], args[1], errNotFound)
			}
			if withData {
				return printFact(cmd.OutOrStdout(), data)
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withData, "data", false, "print the fact instead of the version")
	return cmd
}

func newQueryCmd(opts *cliOptions) *cobra.Command {
	var pattern, constraint string

	cmd := &cobra.Command{
		Use:   "query <ecosystem> <tool>",
		Short: "List stored versions matching a pattern or constraint",
		Example: `  factstore query npm nextjs --pattern 14.1
  factstore query npm nextjs --constraint ">=14.0.0, <15.0.0"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var matches []factstore.VersionedFact
			if pattern != "" {
				matches, err = store.QueryVersions(cmd.Context(), args[0], args[1], pattern)
			} else {
				matches, err = store.QueryConstraint(cmd.Context(), args[0], args[1], constraint)
			}
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Fprintln(cmd.OutOrStdout(), m.Version)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", `version pattern: "14.1.0", "14.1", "14" or "*"`)
	cmd.Flags().StringVar(&constraint, "constraint", "", `range expression, e.g. "^14" or ">=14.1, <15"`)
	cmd.MarkFlagsMutuallyExclusive("pattern", "constraint")
	cmd.MarkFlagsOneRequired("pattern", "constraint")
	return cmd
}

func newFallbackCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fallback <ecosystem> <tool> <version>",
		Short: "Resolve a version to the closest stored fact in the same major line",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			data, match, err := store.GetWithFallback(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if match == nil {
				return fmt.Errorf("no version of %s/%s compatible with %s: %w", args[0], args[1], args[2], errNotFound)
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Requested string `json:"requested"`
				Match     any    `json:"match"`
				Data      any    `json:"data"`
			}{args[2], match, data})
		},
	}
}

func newCompareCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <ecosystem> <tool> <v1> <v2>",
		Short: "Print the facts of two versions side by side",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			d1, d2, err := store.CompareVersions(cmd.Context(), args[0], args[1], args[2], args[3])
			if errors.Is(err, factstore.ErrVersionNotFound) {
				return fmt.Errorf("%w: %w", errNotFound, err)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				V1 any `json:"v1"`
				V2 any `json:"v2"`
			}{d1, d2})
		},
	}
}
