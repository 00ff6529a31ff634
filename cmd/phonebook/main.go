// Command phonebook runs a phone book REST server backed by a CSV file
// and provides a command-line client for it.
//
//	phonebook serve [-config phonebook.yaml] [-addr localhost:8080] [-data /tmp/phone-book.csv] [-verbose]
//	phonebook backup [-config phonebook.yaml]
//	phonebook list|get|add|update|delete [-server http://localhost:8080] ...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: phonebook <command> [flags]

commands:
  serve    run the server
  backup   snapshot the data file and upload it
  list     list all records
  get      get a record by id
  add      add a record
  update   update a record
  delete   delete a record by id

Run 'phonebook <command> -h' for command flags.
`

func main() {
	if err := mainImpl(os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "phonebook: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return flag.ErrHelp
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(ctx, args)
	case "backup":
		return cmdBackup(ctx, args)
	case "list", "get", "add", "update", "delete":
		return cmdClient(ctx, cmd, args, out)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command '%s'", cmd)
}
