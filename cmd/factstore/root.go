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
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikkihugo/ex-llm-sub002/cmd/factstore/config"
	"github.com/mikkihugo/ex-llm-sub002/pkg/logging"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore"
)

// cliOptions holds persistent flag values and the state derived from
// them in PersistentPreRunE.
type cliOptions struct {
	configPath string
	dbPath     string
	exportDir  string
	global     bool
	project    string
	autoExport bool
	logLevel   string
	jsonLogs   bool

	cfg    config.FactstoreConfig
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "factstore",
		Short: "A version-aware store of technology facts",
		Long: `factstore keeps documentation, snippets and best practices per
ecosystem, tool and version, answers version queries with fallback to the
closest compatible release, and mirrors every fact to a JSON tree that can
be reviewed and committed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				opts.logger.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.factstore/factstore.yaml)")
	pf.StringVar(&opts.dbPath, "db", "", "database directory, overrides the scope layout")
	pf.StringVar(&opts.exportDir, "export-dir", "", "JSON mirror directory")
	pf.BoolVar(&opts.global, "global", false, "use the shared global store")
	pf.StringVar(&opts.project, "project", "", "use the store of this project")
	pf.BoolVar(&opts.autoExport, "auto-export", false, "mirror every write to JSON")
	pf.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&opts.jsonLogs, "json-logs", false, "log as JSON")
	root.MarkFlagsMutuallyExclusive("global", "project")

	root.AddCommand(
		newPutCmd(opts),
		newGetCmd(opts),
		newDeleteCmd(opts),
		newListCmd(opts),
		newSearchCmd(opts),
		newVersionsCmd(opts),
		newLatestCmd(opts),
		newQueryCmd(opts),
		newFallbackCmd(opts),
		newCompareCmd(opts),
		newExportCmd(opts),
		newBackupCmd(opts),
		newRestoreCmd(opts),
		newImportCmd(opts),
		newWatchCmd(opts),
		newStatsCmd(opts),
		newCompactCmd(opts),
		newServeCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// setup loads the config file, applies flag overrides and builds the
// logger.
func (o *cliOptions) setup(cmd *cobra.Command) error {
	path := o.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	o.configPath = path

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Store.DBPath = o.dbPath
	}
	if flags.Changed("export-dir") {
		cfg.Store.ExportDir = o.exportDir
	}
	if flags.Changed("global") && o.global {
		cfg.Store.Scope = config.ScopeGlobal
	}
	if flags.Changed("project") {
		cfg.Store.Scope = config.ScopeProject
		cfg.Store.Project = o.project
	}
	if flags.Changed("auto-export") {
		cfg.Store.AutoExport = o.autoExport
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flags.Changed("json-logs") {
		cfg.Logging.JSON = o.jsonLogs
	}
	o.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	o.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "factstore",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(o.logger.Slog())
	return nil
}

// storeConfig resolves the fact store configuration.
//
// An explicit database path wins over the scope layout; its JSON mirror
// then defaults to a sibling "knowledge" directory.
func (o *cliOptions) storeConfig() (factstore.Config, error) {
	sc := o.cfg.Store

	storeOpts := []factstore.Option{
		factstore.WithAutoExport(sc.AutoExport),
		factstore.WithLogger(o.logger.Slog()),
	}
	if sc.BaseDir != "" {
		storeOpts = append(storeOpts, factstore.WithBaseDir(expandHome(sc.BaseDir)))
	}

	var (
		cfg factstore.Config
		err error
	)
	switch {
	case sc.DBPath != "":
		cfg = factstore.DefaultConfig()
		for _, opt := range storeOpts {
			opt(&cfg)
		}
		cfg.DBPath = expandHome(sc.DBPath)
		cfg.ExportDir = filepath.Join(filepath.Dir(cfg.DBPath), factstore.ExportDirName)
	case sc.Scope == config.ScopeProject:
		cfg, err = factstore.ProjectConfig(sc.Project, storeOpts...)
	default:
		cfg, err = factstore.GlobalConfig(storeOpts...)
	}
	if err != nil {
		return factstore.Config{}, err
	}

	if sc.ExportDir != "" {
		cfg.ExportDir = expandHome(sc.ExportDir)
	}
	cfg.SyncWrites = sc.SyncWrites
	cfg.GCInterval = sc.GCInterval
	if sc.ExportConcurrency > 0 {
		cfg.ExportConcurrency = sc.ExportConcurrency
	}
	return cfg, nil
}

// openStore opens the configured store. The caller closes it.
func (o *cliOptions) openStore() (*factstore.VersionedFactStorage, error) {
	cfg, err := o.storeConfig()
	if err != nil {
		return nil, err
	}
	store, err := factstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.DBPath, err)
	}
	return store, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
