// Package main is the devtoken CLI. With no arguments it mints an access
// token for the local backend and prints a curl command that uses it.
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
	"sync"
	"syscall"
	"time"

	"github.com/dskow/devtoken/internal/config"
	"github.com/dskow/devtoken/internal/logging"
	"github.com/dskow/devtoken/internal/metrics"
	"github.com/dskow/devtoken/internal/render"
	"github.com/dskow/devtoken/internal/token"
)

// errUsage marks flag misuse; run exits 2 for it instead of 1.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	verify      string
	watch       bool
	metricsFile string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("devtoken", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML profile (default: built-in local backend profile)")
	fs.StringVar(&opts.verify, "verify", "", "verify a token with the profile secret and print its claims")
	fs.BoolVar(&opts.watch, "watch", false, "re-mint whenever the -config file changes or SIGHUP arrives")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this path on exit")

	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if opts.watch && opts.configPath == "" {
		return opts, fmt.Errorf("%w: -watch requires -config", errUsage)
	}
	if opts.watch && opts.verify != "" {
		return opts, fmt.Errorf("%w: -watch and -verify are mutually exclusive", errUsage)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg := config.Default()
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(stderr, "devtoken: %v\n", err)
			return 1
		}
	}

	logger, closer, err := logging.New(cfg.Logging, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "devtoken: %v\n", err)
		return 1
	}
	defer closer.Close()

	for _, w := range cfg.Warnings {
		logger.Warn("profile warning", "message", w)
	}

	if opts.metricsFile != "" {
		defer func() {
			if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
				logger.Error("failed to write metrics", "path", opts.metricsFile, "error", err)
			}
		}()
	}

	switch {
	case opts.verify != "":
		err = verify(cfg, opts.verify, stdout)
	case opts.watch:
		err = watch(ctx, opts.configPath, cfg, stdout, logger)
	default:
		err = mint(cfg, stdout)
	}
	if err != nil {
		logger.Error("devtoken failed", "error", err)
		return 1
	}
	return 0
}

func settingsFor(cfg *config.Config) token.Settings {
	return token.Settings{
		Secret:   []byte(cfg.Signing.Secret),
		Validity: cfg.Signing.Validity,
		UserID:   cfg.Subject.UserID,
	}
}

func mint(cfg *config.Config, w io.Writer) error {
	tok, err := token.New(settingsFor(cfg)).Mint()
	if err != nil {
		metrics.MintFailures.Inc()
		return err
	}
	metrics.TokensMinted.Inc()
	return render.Write(w, tok.Raw, render.Command(cfg.Target.TargetURL(), tok.Raw))
}

func verify(cfg *config.Config, raw string, w io.Writer) error {
	claims, err := token.Parse(raw, []byte(cfg.Signing.Secret), nil)
	if err != nil {
		metrics.Verifications.WithLabelValues("invalid").Inc()
		return err
	}
	metrics.Verifications.WithLabelValues("valid").Inc()
	return render.WriteClaims(w, claims, time.Now())
}

// watch mints once, then again after every successful profile reload,
// until ctx is cancelled.
func watch(ctx context.Context, path string, cfg *config.Config, w io.Writer, logger *slog.Logger) error {
	var mu sync.Mutex
	if err := mint(cfg, w); err != nil {
		return err
	}

	reloader := config.NewReloader(path, cfg, logger)
	reloader.OnReload(func(newCfg *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w)
		if err := mint(newCfg, w); err != nil {
			logger.Error("re-mint failed", "error", err)
		}
	})
	if err := reloader.Start(); err != nil {
		return err
	}
	defer reloader.Stop()

	logger.Info("watching profile", "path", path)
	<-ctx.Done()
	return nil
}
