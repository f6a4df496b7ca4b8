// Package main provides the hivesync command, which copies HiveTracks
// inspection records into BEEP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/johnswift/hivesync/internal/beep"
	"github.com/johnswift/hivesync/internal/config"
	"github.com/johnswift/hivesync/internal/hivetracks"
	"github.com/johnswift/hivesync/internal/ledger"
	"github.com/johnswift/hivesync/internal/logging"
	"github.com/johnswift/hivesync/internal/scheduler"
	"github.com/johnswift/hivesync/internal/syncer"
	"github.com/johnswift/hivesync/internal/transform"
	"github.com/johnswift/hivesync/internal/upload"
)

// RecordsFile is the HiveTracks fixture read by --import-from-file.
const RecordsFile = "hivetracks-records.json"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := config.Load(args, os.Stderr)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	l, err := ledger.Open(ctx, cfg.LedgerLocation)
	if err != nil {
		logger.Error("Cannot open import ledger", zap.Error(err))
		return err
	}
	defer l.Close()
	logger.Info("Opened import ledger", zap.String("backend", ledger.Kind(cfg.LedgerLocation)))

	s := syncer.New(buildDeps(cfg, l, logger))
	opts := syncer.Options{
		DryRun:          cfg.DryRun,
		Upload:          cfg.Upload,
		PreviewFile:     cfg.PreviewFile,
		PreviewWorkbook: cfg.PreviewWorkbook,
		UploadDelay:     cfg.UploadDelay,
		Progress: func(done, total int, res transform.Result, err error) {
			logger.Debug("Upload progress", zap.Int("done", done), zap.Int("total", total))
		},
	}

	if cfg.Schedule != "" {
		return runScheduled(ctx, cfg, s, opts, logger)
	}

	summary, err := s.Run(ctx, opts)
	if err != nil {
		logger.Error("Sync failed", zap.Error(err))
		return err
	}
	printSummary(stdout, summary)
	return nil
}

func buildDeps(cfg *config.Config, l ledger.Ledger, logger *zap.Logger) syncer.Deps {
	beepSession := &beep.Session{
		Client:   beep.NewClient(cfg.BEEPBaseURL, cfg.HTTPTimeout, logger),
		Email:    cfg.BEEP.Email,
		Password: cfg.BEEP.Password,
	}

	deps := syncer.Deps{
		RulesetPath: cfg.MappingsFile,
		Ledger:      l,
		Uploader:    beepSession,
		Logger:      logger,
	}

	if cfg.ImportFromFile {
		deps.Source = hivetracks.FileSource{Path: filepath.Join(cfg.DataDir, RecordsFile)}
		deps.Reference = beep.FileReference{Dir: cfg.DataDir}
		return deps
	}

	deps.Source = &hivetracks.Session{
		Client:   hivetracks.NewClient(cfg.HiveTracksBaseURL, cfg.HTTPTimeout, cfg.PageSize, logger),
		Email:    cfg.HiveTracks.Email,
		Password: cfg.HiveTracks.Password,
	}
	deps.Reference = beepSession
	return deps
}

func runScheduled(ctx context.Context, cfg *config.Config, s *syncer.Syncer, opts syncer.Options, logger *zap.Logger) error {
	sched := scheduler.New(func(ctx context.Context) (*syncer.Summary, error) {
		return s.Run(ctx, opts)
	}, logger)

	if cfg.HealthPort != "" {
		health := scheduler.NewHealthServer(cfg.HealthPort, sched.Status, logger)
		if err := health.Start(); err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			health.Shutdown(shutdownCtx)
		}()
	}

	if err := sched.Start(ctx, cfg.Schedule); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	sched.Stop()
	return nil
}

func printSummary(w io.Writer, s *syncer.Summary) {
	fmt.Fprintf(w, "Records seen:        %d\n", s.Seen)
	fmt.Fprintf(w, "Records eligible:    %d\n", s.Eligible)
	fmt.Fprintf(w, "Transformed:         %d\n", s.Transformed)
	fmt.Fprintf(w, "Rejected:            %d\n", s.Rejected)
	if s.PreviewFile != "" {
		fmt.Fprintf(w, "Preview written to:  %s\n", s.PreviewFile)
	}
	if s.Upload != nil {
		printUpload(w, s.Upload)
	}
}

func printUpload(w io.Writer, st *upload.Stats) {
	fmt.Fprintf(w, "Uploaded:            %d\n", st.Uploaded)
	fmt.Fprintf(w, "Failed:              %d\n", st.Failed)
	if st.LedgerErrors > 0 {
		fmt.Fprintf(w, "Not recorded:        %d\n", st.LedgerErrors)
	}
}
