package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/heliradar/tracker/internal/version"
)

var (
	// errUsage means the arguments were wrong and usage has been printed.
	errUsage = errors.New("usage")
	// errHelp means -h was given and the flag defaults have been printed.
	errHelp = errors.New("help requested")
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, errHelp):
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return errUsage
	}

	command, rest := args[0], args[1:]
	switch command {
	case "serve":
		return runServe(ctx, rest, stderr)
	case "simulate":
		return runSimulate(ctx, rest, stdout, stderr)
	case "fleet":
		return runFleet(ctx, rest, stdout, stderr)
	case "replay":
		return runReplay(ctx, rest, stdout, stderr)
	case "export":
		return runExport(ctx, rest, stdout, stderr)
	case "agent":
		return runAgent(ctx, rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `tracker - live helicopter and field agent tracking

Usage: tracker <command> [options]

Commands:
  serve      Run the HTTP API (and the GPS recorder when gps.port is set)
  simulate   Post a synthetic drifting flight to the API
  fleet      Watch recently active tracks and print changes
  replay     Print a stored track point by point
  export     Write tracks as GeoJSON, PNG or HTML files
  agent      Manage field agent credentials (agent add)
  version    Show version information
  help       Show this help message

Common Flags:
  --config <file>   YAML configuration file inside the working directory

Configuration is read from .env.local, .env, the YAML file and the process
environment. MONGODB_URI accepts mongodb://, sqlite:// and file: URIs.`)
}

// newFlagSet returns a flag set that reports errors instead of exiting, with
// the common --config flag registered.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	return fs, configPath
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return errUsage
	}
	return nil
}
