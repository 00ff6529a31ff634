package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kjk/phonebook/client"
	"github.com/kjk/phonebook/phonebook"
)

const defaultServer = "http://localhost:8080"

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid id '%s'", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdClient(ctx context.Context, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	server := fs.String("server", defaultServer, "URL of phone book server")
	var rec phonebook.Record
	if cmd == "add" || cmd == "update" {
		fs.StringVar(&rec.Name, "name", "", "name")
		fs.StringVar(&rec.Email, "email", "", "email")
		fs.IntVar(&rec.Mobile, "mobile", 0, "mobile number")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if v := os.Getenv("PHONEBOOK_SERVER"); v != "" && !isFlagSet(fs, "server") {
		*server = v
	}
	c := client.New(*server)
	args = fs.Args()

	needsID := cmd == "get" || cmd == "update" || cmd == "delete"
	if needsID && len(args) != 1 {
		return fmt.Errorf("usage: phonebook %s [flags] <id>", cmd)
	}
	if !needsID && len(args) != 0 {
		return fmt.Errorf("unknown arguments: %v", args)
	}
	var id int64
	if needsID {
		var err error
		if id, err = parseID(args[0]); err != nil {
			return err
		}
	}

	switch cmd {
	case "list":
		recs, err := c.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, recs)
	case "get":
		r, err := c.Get(ctx, id)
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("record %d doesn't exist", id)
		}
		if err != nil {
			return err
		}
		return printJSON(out, r)
	case "add":
		id, err := c.Create(ctx, &rec)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d\n", id)
		return nil
	case "update":
		rec.ID = id
		err := c.Update(ctx, &rec)
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("record %d doesn't exist", id)
		}
		return err
	case "delete":
		err := c.Delete(ctx, id)
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("record %d doesn't exist", id)
		}
		return err
	}
	return fmt.Errorf("unknown command '%s'", cmd)
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
