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
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
)

func newExportCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write every stored fact to the JSON mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.ExportAllToJSON(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d facts to %s\n", n, store.ExportDir())
			return nil
		},
	}
}

func newImportCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Load every fact in the JSON mirror into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.ImportAllFromJSON(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d facts from %s\n", n, store.ExportDir())
			return nil
		},
	}
}

func newWatchCmd(opts *cliOptions) *cobra.Command {
	var syncDeletes bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import JSON mirror files into the database as they change",
		Long: `watch follows the JSON mirror and stores every fact file that is
created or rewritten, so hand edits and git checkouts reach the database
without a full import. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := &mirrorWatcher{
				store:       store,
				root:        store.ExportDir(),
				syncDeletes: syncDeletes,
				logger:      opts.logger.Slog().With(slog.String("component", "watch")),
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&syncDeletes, "sync-deletes", false, "delete facts whose file is removed")
	return cmd
}

// mirrorImporter is the part of the store the watcher writes to.
type mirrorImporter interface {
	ImportFile(ctx context.Context, key fact.Key, path string) (*fact.Data, error)
	DeleteFact(ctx context.Context, key fact.Key) error
}

// mirrorWatcher imports changed files under root.
//
// fsnotify is not recursive, so every directory is watched individually
// and new directories are added as they appear.
type mirrorWatcher struct {
	store       mirrorImporter
	root        string
	syncDeletes bool
	logger      *slog.Logger

	// ready, if set, is called once every existing directory is watched.
	ready func()
	// applied, if set, is called after each file is imported or deleted.
	applied func(key fact.Key)
}

// Run watches until ctx is done.
func (w *mirrorWatcher) Run(ctx context.Context) error {
	if w.root == "" {
		return fmt.Errorf("watch: no export directory configured")
	}
	if err := os.MkdirAll(w.root, 0750); err != nil {
		return fmt.Errorf("watch: create %s: %w", w.root, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root); err != nil {
		return err
	}
	w.logger.Info("Watching JSON mirror", slog.String("root", w.root))
	if w.ready != nil {
		w.ready()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *mirrorWatcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *mirrorWatcher) handle(ctx context.Context, watcher *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(watcher, ev.Name); err != nil {
				w.logger.Warn("Cannot watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			// Files may have landed before the watch was added.
			w.importTree(ctx, ev.Name)
			return
		}
	}

	if !strings.HasSuffix(ev.Name, ".json") || strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}
	key, err := fact.KeyFromExportPath(w.root, ev.Name)
	if err != nil {
		w.logger.Debug("Ignoring file outside the mirror layout", slog.String("path", ev.Name))
		return
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		w.importFile(ctx, key, ev.Name)
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if !w.syncDeletes {
			return
		}
		if err := w.store.DeleteFact(ctx, key); err != nil {
			w.logger.Warn("Delete failed", slog.String("key", key.StorageKey()), slog.String("error", err.Error()))
			return
		}
		w.logger.Info("Deleted fact", slog.String("key", key.StorageKey()))
		if w.applied != nil {
			w.applied(key)
		}
	}
}

func (w *mirrorWatcher) importTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		if key, err := fact.KeyFromExportPath(w.root, path); err == nil {
			w.importFile(ctx, key, path)
		}
		return nil
	})
}

func (w *mirrorWatcher) importFile(ctx context.Context, key fact.Key, path string) {
	data, err := w.store.ImportFile(ctx, key, path)
	if err != nil {
		// Editors often write in several steps; the next event retries.
		w.logger.Warn("Import failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if data == nil {
		return
	}
	w.logger.Info("Imported fact", slog.String("key", key.StorageKey()))
	if w.applied != nil {
		w.applied(key)
	}
}
