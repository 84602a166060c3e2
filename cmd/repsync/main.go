// Command repsync submits a Minecraft server's bans to a shared reputation
// service, signing every request with the operator's OpenPGP key.
//
//	repsync [-config file] [-v] <command> [args]
//
// Commands:
//
//	init [-force] [ecc|rsa]             create the key pair and an empty ledger
//	register [-force]                   register the public key with the service
//	sync                                submit bans not yet in the ledger
//	manual <player> <points> <comment>  submit a single report
//	revoke <submission> <comment>       withdraw a submission
//	pubkey                              print the armored public key
//	status                              show registration, ledger and key
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/collapsinghierarchy/repsync/config"
	"github.com/collapsinghierarchy/repsync/model"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	//----------------------------------------------------------------------
	// 1. global flags
	//----------------------------------------------------------------------
	fs := flag.NewFlagSet("repsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "YAML configuration file (default $REPSYNC_CONFIG)")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return exitUsage
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(stderr)
		return exitUsage
	}

	//----------------------------------------------------------------------
	// 2. config + logging
	//----------------------------------------------------------------------
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s failed (%s): %v\n", name, kind(err), err)
		return exitError
	}
	a := &app{
		cfg:    cfg,
		log:    newLogger(stderr, cfg.LogLevel, *verbose),
		stdout: stdout,
	}

	//----------------------------------------------------------------------
	// 3. dispatch
	//----------------------------------------------------------------------
	err = cmd(ctx, a, rest)
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue):
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "%s failed (%s): %v\n", name, kind(err), err)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `repsync - sync Minecraft bans with a reputation service

Usage:
  repsync [-config file] [-v] <command> [args]

Commands:
  init [-force] [ecc|rsa]              create the key pair and an empty ledger
  register [-force]                    register the public key with the service
  sync                                 submit bans not yet in the ledger
  manual <player> <points> <comment>   submit a single report
  revoke <submission> <comment>        withdraw a submission
  pubkey                               print the armored public key
  status                               show registration, ledger and key
`)
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// kind names the error class for the one-line failure report.
func kind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted"
	case errors.Is(err, model.ErrConfiguration):
		return "configuration"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrStorage):
		return "storage"
	case errors.Is(err, model.ErrRejected):
		return "rejected"
	case errors.Is(err, model.ErrNetwork):
		return "network"
	default:
		return "internal"
	}
}

func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
