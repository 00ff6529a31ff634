package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/kjk/phonebook/backup"
	"github.com/kjk/phonebook/config"
	"github.com/kjk/phonebook/log"
)

func cmdBackup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if c.Backup.Dir == "" {
		return fmt.Errorf("backup.dir is not set in config")
	}
	log.Init(&log.Config{
		Dir:     c.LogDir,
		Verbose: c.Verbose || *verbose,
	})
	defer log.Close()

	targets, err := c.Backup.Targets()
	if err != nil {
		return err
	}
	// fails with rowstore.ErrLocked if the server is running, in which case
	// set backup.interval and let the server do backups
	store, err := openStore(c.DataFile)
	if err != nil {
		return err
	}
	defer store.Close()

	path, err := backup.Run(ctx, store, &c.Backup, targets)
	if path != "" {
		log.Logf("created snapshot '%s'\n", path)
	}
	return err
}
