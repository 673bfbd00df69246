package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/medimport/internal/application"
	"github.com/JonMunkholm/medimport/internal/config"
	"github.com/JonMunkholm/medimport/internal/core"
	"github.com/JonMunkholm/medimport/internal/logging"
	"github.com/JonMunkholm/medimport/internal/sheet"
)

type runOptions struct {
	kind      string
	campaign  int64
	apply     bool
	policy    string
	worksheet string
	strict    bool
	offline   bool
	source    string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] FILE|s3://bucket/key",
		Short: "Validate a spreadsheet and, with --apply, import it",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := core.Lookup(core.Kind(strings.ToLower(opts.kind))); !ok {
				return withCode(exitUsage, fmt.Errorf("unknown --kind %q (known: %v)", opts.kind, core.Kinds()))
			}
			if opts.campaign <= 0 {
				return withCode(exitUsage, fmt.Errorf("--campaign must be a positive id"))
			}
			if _, err := core.ParseDuplicatePolicy(opts.policy); err != nil {
				return withCode(exitUsage, err)
			}
			if opts.apply && opts.offline {
				return withCode(exitUsage, fmt.Errorf("--apply needs the database; drop --offline"))
			}
			opts.source = args[0]
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "", "Import kind: beneficiary or participant (required)")
	cmd.Flags().Int64Var(&opts.campaign, "campaign", 0, "Campaign id (required)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write to the database (default is dry-run)")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "Duplicate policy: skip or update (default from IMPORT_DUPLICATE_POLICY)")
	cmd.Flags().StringVar(&opts.worksheet, "sheet", "", "Worksheet name for XLSX files (default: first sheet)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit with status 3 when any row is rejected")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Dry-run without the database; duplicates are only checked within the file")

	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("campaign")

	return cmd
}

func runImport(ctx context.Context, opts runOptions, stdout, stderr io.Writer) error {
	var logCfg config.LoggingConfig
	var importCfg config.ImportConfig
	for _, section := range []interface{}{&logCfg, &importCfg} {
		if err := config.LoadSection(section); err != nil {
			return withCode(exitUsage, err)
		}
	}
	if err := importCfg.Validate(); err != nil {
		return withCode(exitUsage, err)
	}
	logger := logging.SetupWriter(stderr, logCfg.Level, logCfg.Format)

	service, closeFn, err := buildService(ctx, opts, importCfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	src, name, closeSrc, err := openSource(ctx, opts, importCfg.MaxFileSize)
	if err != nil {
		return withCode(exitUsage, err)
	}
	defer closeSrc()

	var policy core.DuplicatePolicy
	if opts.policy != "" {
		policy, _ = core.ParseDuplicatePolicy(opts.policy)
	}
	summary, err := service.Import(ctx, core.ImportRequest{
		Kind:     core.Kind(strings.ToLower(opts.kind)),
		Scope:    opts.campaign,
		Source:   src,
		FileName: name,
		DryRun:   !opts.apply,
		Policy:   policy,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}

	logger.Info("import finished",
		"session_id", summary.SessionID,
		"dry_run", summary.DryRun,
		"imported", summary.ImportedCount,
		"updated", summary.UpdatedCount,
		"skipped", summary.SkippedCount,
		"errors", summary.ErrorCount,
	)
	if opts.strict && summary.ErrorCount > 0 {
		return withCode(exitRejected, fmt.Errorf("%d of %d rows rejected", summary.ErrorCount, summary.TotalRows))
	}
	return nil
}

// buildService uses the database unless --offline is set. Offline dry-runs
// accept any campaign.
func buildService(ctx context.Context, opts runOptions, importCfg config.ImportConfig, logger *slog.Logger) (*core.Service, func(), error) {
	if opts.offline {
		svcCfg, err := application.ServiceConfig(importCfg)
		if err != nil {
			return nil, nil, withCode(exitUsage, err)
		}
		mem := core.NewMemoryStore()
		svc, err := core.NewService(core.ServiceDeps{
			Store:    mem,
			Scopes:   mem,
			Observer: core.LogObserver{Logger: logger},
			Logger:   logger,
		}, svcCfg)
		return svc, func() {}, err
	}

	cfg := config.Config{Import: importCfg}
	for _, section := range []interface{}{&cfg.Database, &cfg.Redis} {
		if err := config.LoadSection(section); err != nil {
			return nil, nil, withCode(exitUsage, fmt.Errorf("%w (use --offline to dry-run without a database)", err))
		}
	}
	pool, err := application.OpenPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	rdb, err := application.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	backends := application.NewBackends(pool, rdb, logger)
	svc, err := backends.NewService(cfg, logger)
	if err != nil {
		backends.Close()
		return nil, nil, err
	}
	return svc, backends.Close, nil
}

func openSource(ctx context.Context, opts runOptions, maxSize int64) (core.SheetReader, string, func(), error) {
	if sheet.IsS3URI(opts.source) {
		var storage config.StorageConfig
		if err := config.LoadSection(&storage); err != nil {
			return nil, "", nil, err
		}
		s3src, err := sheet.NewS3Source(ctx, storage.Region, storage.MaxObjectSize)
		if err != nil {
			return nil, "", nil, err
		}
		data, name, err := s3src.Fetch(ctx, opts.source)
		if err != nil {
			return nil, "", nil, err
		}
		src, err := openReader(name, bytes.NewReader(data), opts.worksheet)
		return src, name, func() {}, err
	}

	info, err := os.Stat(opts.source)
	if err != nil {
		return nil, "", nil, err
	}
	if info.Size() > maxSize {
		return nil, "", nil, fmt.Errorf("%s is %d bytes, above the %d byte limit", opts.source, info.Size(), maxSize)
	}
	f, err := os.Open(opts.source)
	if err != nil {
		return nil, "", nil, err
	}
	name := filepath.Base(opts.source)
	src, err := openReader(name, f, opts.worksheet)
	if err != nil {
		f.Close()
		return nil, "", nil, err
	}
	return src, name, func() { f.Close() }, nil
}

func openReader(name string, r io.Reader, worksheet string) (core.SheetReader, error) {
	if worksheet != "" {
		return sheet.NewXLSXReader(name, r, worksheet), nil
	}
	return sheet.Open(name, r)
}
