package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyellow/unibot-go/internal/config"
	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/r2client"
	"github.com/garyellow/unibot-go/internal/snapshot"
	"github.com/garyellow/unibot-go/internal/storage"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the catalogue database as a compressed snapshot to R2",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dbPath, log, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		if !cfg.R2.Enabled {
			return errors.New("R2 is disabled, set R2_ENABLED=true")
		}

		ctx := cmd.Context()
		store, err := r2client.New(ctx, r2client.Config{
			Endpoint:    cfg.R2.Endpoint,
			AccessKeyID: cfg.R2.AccessKeyID,
			SecretKey:   cfg.R2.SecretAccessKey,
			BucketName:  cfg.R2.BucketName,
		})
		if err != nil {
			return err
		}

		etag, err := publish(ctx, store, cfg, dbPath, log)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s (etag %s)\n", dbPath, cfg.R2.SnapshotKey, etag)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

// publish checkpoints the database so the file is self-contained, then
// uploads it under the publish lock.
func publish(ctx context.Context, store r2client.ObjectStore, cfg *config.Config, dbPath string, log *logger.Logger) (string, error) {
	db, err := storage.New(ctx, dbPath, cfg.Catalogue.LocalCity)
	if err != nil {
		return "", fmt.Errorf("open database: %w", err)
	}
	n, err := db.CountUniversities(ctx)
	if err == nil && n == 0 {
		err = errors.New("catalogue is empty, run import first")
	}
	if err == nil {
		err = db.Checkpoint(ctx)
	}
	if closeErr := db.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}

	mgr := snapshot.New(store, snapshot.Config{
		SnapshotKey: cfg.R2.SnapshotKey,
		LockKey:     cfg.R2.LockKey,
		LockTTL:     cfg.R2.LockTTL,
		DataDir:     cfg.DataDir,
	}, log, nil)
	etag, err := mgr.Publish(ctx, dbPath)
	if errors.Is(err, snapshot.ErrLocked) {
		return "", errors.New("another publish is in progress, try again later")
	}
	return etag, err
}
