package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/segcask/core"
	"github.com/0xRadioAc7iv/segcask/internal/server"
	"github.com/0xRadioAc7iv/segcask/internal/utils"
	"github.com/0xRadioAc7iv/segcask/pkg/keys"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "segcask:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := utils.HandleCLIInputs(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := core.Open(
		cfg.Directory,
		int64(cfg.MaxSegmentSizeMB)*core.OneMegabyte,
		keys.String,
		core.WithLogger(logger.Named("engine")),
		core.WithSyncOnWrite(cfg.SyncOnWrite),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", zap.Error(err))
		}
	}()

	ln, err := server.Listen("", cfg.Port)
	if err != nil {
		return err
	}

	ctx, stop := utils.ListenForProcessInterruptOrKill(context.Background())
	defer stop()

	stats := store.Stats()
	logger.Info("segcask started",
		zap.String("dir", cfg.Directory),
		zap.Int("max_segment_size_mb", cfg.MaxSegmentSizeMB),
		zap.Int("keys", store.Count()),
		zap.Uint64("active_segment", stats.ActiveID),
		zap.Int("sealed_segments", len(stats.SealedIDs)),
	)

	return server.New(store, logger.Named("server")).Serve(ctx, ln)
}

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	return cfg.Build()
}
