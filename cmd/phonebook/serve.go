package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/kjk/phonebook/api"
	"github.com/kjk/phonebook/backup"
	"github.com/kjk/phonebook/config"
	"github.com/kjk/phonebook/httputil"
	"github.com/kjk/phonebook/log"
	"github.com/kjk/phonebook/phonebook"
	"github.com/kjk/phonebook/rowstore"
)

type serveFlags struct {
	configPath string
	addr       string
	dataFile   string
	verbose    bool
}

func parseServeFlags(args []string) (*serveFlags, error) {
	var f serveFlags
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to YAML config file")
	fs.StringVar(&f.addr, "addr", "", "address to listen on, overrides config (e.g. localhost:8080, :8080)")
	fs.StringVar(&f.dataFile, "data", "", "path of the CSV data file, overrides config")
	fs.BoolVar(&f.verbose, "verbose", false, "enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unknown arguments: %v", fs.Args())
	}
	return &f, nil
}

// loadConfig loads config and applies flag overrides
func loadConfig(f *serveFlags) (*config.Config, error) {
	c, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.addr != "" {
		c.HTTPAddr = f.addr
	}
	if f.dataFile != "" {
		c.DataFile = f.dataFile
	}
	if f.verbose {
		c.Verbose = true
	}
	return c, nil
}

func openStore(path string) (*rowstore.Store, error) {
	store := &rowstore.Store{
		Path:   path,
		Fields: phonebook.NumFields,
	}
	if err := rowstore.OpenStore(store); err != nil {
		return nil, fmt.Errorf("failed to open data file '%s': %w", path, err)
	}
	return store, nil
}

func cmdServe(ctx context.Context, args []string) error {
	f, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	c, err := loadConfig(f)
	if err != nil {
		return err
	}
	log.Init(&log.Config{
		Dir:     c.LogDir,
		Verbose: c.Verbose,
	})
	defer log.Close()

	store, err := openStore(c.DataFile)
	if err != nil {
		return err
	}
	defer store.Close()

	if f.configPath != "" {
		err = config.Watch(ctx, f.configPath, func(nc *config.Config) {
			// only verbosity can change without a restart
			log.SetVerbose(nc.Verbose || f.verbose)
		})
		if err != nil {
			log.Errorf("config.Watch('%s') failed with '%s'\n", f.configPath, err)
		}
	}

	if c.Backup.Interval > 0 {
		if err = startBackups(ctx, store, c); err != nil {
			return err
		}
	}

	opts := &api.Options{
		RateLimit: c.RateLimit.RequestsPerSecond,
		RateBurst: c.RateLimit.Burst,
	}
	handler := api.NewHandler(phonebook.NewService(store), opts)
	srv := httputil.NewServer(c.HTTPAddr, handler)
	err = httputil.ListenAndServe(ctx, srv, func(addr string) {
		log.Logf("serving phone book from '%s' on http://%s\n", store.FilePath(), addr)
	})
	if err != nil {
		return err
	}
	log.Logf("server stopped\n")
	return nil
}

func startBackups(ctx context.Context, store *rowstore.Store, c *config.Config) error {
	if c.Backup.Dir == "" {
		return fmt.Errorf("backup.dir must be set if backup.interval is set")
	}
	targets, err := c.Backup.Targets()
	if err != nil {
		return err
	}
	log.Logf("backing up '%s' every %s to '%s' and %d remote targets\n", store.FilePath(), c.Backup.Interval, c.Backup.Dir, len(targets))
	go backup.Schedule(ctx, store, &c.Backup, targets)
	return nil
}
