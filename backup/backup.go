// Package backup takes compressed snapshots of the phone book and
// uploads them to S3-compatible storage or a server over ssh
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kjk/phonebook/log"
)

type Config struct {
	// local directory for snapshots, created if doesn't exist
	Dir string `yaml:"dir"`
	// .zst, .br, .gz or empty for no compression
	Compression string `yaml:"compression"`
	// how many local snapshots to keep, 0 means all
	Keep int `yaml:"keep"`
	// how often a running server takes a backup, 0 means never
	Interval time.Duration `yaml:"interval"`
	Minio    *MinioConfig  `yaml:"minio"`
	SFTP     *SFTPConfig   `yaml:"sftp"`
}

// Targets creates upload targets for configured destinations
func (c *Config) Targets() ([]Target, error) {
	var res []Target
	if c.Minio != nil {
		t, err := NewMinioTarget(c.Minio)
		if err != nil {
			return nil, fmt.Errorf("invalid minio config: %w", err)
		}
		res = append(res, t)
	}
	if c.SFTP != nil {
		t, err := NewSFTPTarget(c.SFTP)
		if err != nil {
			return nil, fmt.Errorf("invalid sftp config: %w", err)
		}
		res = append(res, t)
	}
	return res, nil
}

// Run takes a snapshot of src into cfg.Dir and uploads it to targets.
// Upload failures don't stop uploads to other targets. Returns path
// of the snapshot, which exists even if some uploads failed.
func Run(ctx context.Context, src Source, cfg *Config, targets []Target) (string, error) {
	if cfg.Dir == "" {
		return "", errors.New("backup: Dir is not set")
	}
	if !ValidExt(cfg.Compression) {
		return "", fmt.Errorf("backup: unsupported compression '%s'", cfg.Compression)
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return "", err
	}

	timeStart := time.Now()
	name := SnapshotName(timeStart, cfg.Compression)
	path := filepath.Join(cfg.Dir, name)
	if _, err := Snapshot(src, path); err != nil {
		return "", err
	}

	var errs []error
	for _, t := range targets {
		if err := t.Upload(ctx, path, name); err != nil {
			log.Errorf("backup: upload of '%s' to %s failed with '%s'\n", path, t, err)
			errs = append(errs, err)
		}
	}
	if err := pruneSnapshots(cfg.Dir, cfg.Keep); err != nil {
		errs = append(errs, err)
	}
	log.EventWithDuration("backup.run", time.Since(timeStart), "name", name, "targets", len(targets), "failed", len(errs))
	return path, errors.Join(errs...)
}

// Schedule calls Run every cfg.Interval until ctx is cancelled.
// Errors are logged and don't stop future backups.
func Schedule(ctx context.Context, src Source, cfg *Config, targets []Target) {
	if cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			path, err := Run(ctx, src, cfg, targets)
			if err != nil {
				log.Errorf("backup: scheduled backup failed with '%s'\n", err)
				continue
			}
			log.Logf("backup: created '%s'\n", path)
		}
	}
}
