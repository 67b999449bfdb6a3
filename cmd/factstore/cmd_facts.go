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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikkihugo/ex-llm-sub002/pkg/validation"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
)

func newPutCmd(opts *cliOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "put <ecosystem> <tool> <version>",
		Short: "Store a fact read as JSON from a file or stdin",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateKey(args[0], args[1], args[2]); err != nil {
				return err
			}
			key := fact.NewKey(args[1], args[2], args[0])

			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			data, err := fact.UnmarshalJSON(raw)
			if err != nil {
				return err
			}
			if err := stampIdentity(data, key); err != nil {
				return err
			}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.StoreFact(cmd.Context(), key, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", key)
			if exportErr := store.LastExportError(); exportErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", exportErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", `JSON file to read, "-" for stdin`)
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}

// stampIdentity fills empty identity fields from key and rejects
// disagreeing ones. A zero LastUpdated becomes now.
func stampIdentity(data *fact.Data, key fact.Key) error {
	check := func(field string, got *string, want string) error {
		if *got == "" {
			*got = want
			return nil
		}
		if *got != want {
			return fmt.Errorf("%s %q in input does not match %q", field, *got, want)
		}
		return nil
	}
	if err := check("tool", &data.Tool, key.Tool); err != nil {
		return err
	}
	if err := check("version", &data.Version, key.Version); err != nil {
		return err
	}
	if err := check("ecosystem", &data.Ecosystem, key.Ecosystem); err != nil {
		return err
	}
	if data.LastUpdated.IsZero() {
		data.LastUpdated = time.Now().UTC()
	}
	return nil
}

func newGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <ecosystem> <tool> <version>",
		Short: "Print the fact stored for an exact version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := fact.NewKey(args[1], args[2], args[0])

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			data, err := store.GetFact(cmd.Context(), key)
			if err != nil {
				return err
			}
			if data == nil {
				return fmt.Errorf("%s: %w", key, errNotFound)
			}
			return printFact(cmd.OutOrStdout(), data)
		},
	}
}

func newDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <ecosystem> <tool> <version>",
		Aliases: []string{"rm"},
		Short:   "Delete a fact",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := fact.NewKey(args[1], args[2], args[0])

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteFact(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
			return nil
		},
	}
}

func newListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <ecosystem>",
		Short: "List every fact key in an ecosystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			keys, err := store.ListTools(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printKeys(cmd.OutOrStdout(), keys)
		},
	}
}

func newSearchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <prefix>",
		Short: `List keys by encoded prefix, e.g. "npm:next"`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			keys, err := store.SearchTools(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printKeys(cmd.OutOrStdout(), keys)
		},
	}
}
