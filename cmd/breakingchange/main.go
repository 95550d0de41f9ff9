// Command breakingchange watches vendor terms, pricing and changelog pages
// and publishes a feed of their meaningful changes.
//
// Usage:
//
//	breakingchange [-config watchers.yml] run          # one sweep over every source
//	breakingchange build-site                          # render docs/ from data/
//	breakingchange [-addr :8080] serve                 # serve docs/ and the JSON API, rebuilding after sweeps
//	breakingchange mcp                                 # MCP tools over stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/breakingchange/changefeed"
	"github.com/hazyhaar/breakingchange/registry"
	"github.com/hazyhaar/breakingchange/site"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "watchers.yml", "path to the source registry")
	addr := flag.String("addr", ":8080", "listen address for serve")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: breakingchange [flags] run | build-site | serve | mcp")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(ctx, logger, flag.Arg(0), *configPath, *addr); err != nil {
		logger.Error("breakingchange: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cmd, configPath, addr string) error {
	envCfg, err := loadEnv()
	if err != nil {
		return err
	}

	switch cmd {
	case "run":
		return runSweep(ctx, logger, envCfg, configPath)
	case "build-site":
		return runBuildSite(ctx, logger, envCfg)
	case "serve":
		return runServe(ctx, logger, envCfg, configPath, addr)
	case "mcp":
		return runMCP(ctx, logger, envCfg, configPath)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openService loads the registry and builds the service. A broken
// registry is fatal; an absent one is only allowed when optional.
func openService(logger *slog.Logger, envCfg envConfig, configPath string, optional bool) (*changefeed.Service, *registry.File, error) {
	reg, err := registry.LoadFile(configPath)
	if err != nil {
		if !optional || !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
		logger.Warn("breakingchange: no source registry", "path", configPath)
		reg = &registry.File{}
	}

	cfg := changefeed.DefaultConfig()
	cfg.DataDir = envCfg.DataDir
	cfg.RunLogPath = filepath.Join(envCfg.DataDir, "runs.db")
	cfg.Concurrency = envCfg.Concurrency
	cfg.Fetch.Timeout = envCfg.FetchTimeout
	th := reg.DeltaThresholds()
	cfg.Thresholds = &th
	cfg.Table = reg.Table()
	cfg.Buckets = reg.Buckets()

	svc, err := changefeed.New(cfg, logger,
		changefeed.WithSources(reg.Sources),
		changefeed.WithNotifiers(envCfg.notifiers()...))
	if err != nil {
		return nil, nil, err
	}
	return svc, reg, nil
}

func runSweep(ctx context.Context, logger *slog.Logger, envCfg envConfig, configPath string) error {
	svc, reg, err := openService(logger, envCfg, configPath, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Per-source failures are in the report; only an interrupted sweep fails.
	rep, err := svc.Sweep(ctx, reg.Sources)
	if err != nil {
		return err
	}
	for _, o := range rep.Outcomes {
		if o.Event != nil {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\n", o.Status, o.Source.Vendor, o.Source.Type, o.Event.Severity, o.Event.DiffID)
		}
	}
	return nil
}

func runBuildSite(ctx context.Context, logger *slog.Logger, envCfg envConfig) error {
	cfg := changefeed.DefaultConfig()
	cfg.DataDir = envCfg.DataDir
	cfg.RunLogPath = ""
	svc, err := changefeed.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	rec := svc.Recorder()
	rep, err := site.Build(ctx, site.Options{
		Events: rec.Events(),
		Blobs:  rec.Blobs(),
		OutDir: envCfg.SiteDir,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Site built at %s\n", rep.IndexPath)
	return nil
}

func runServe(ctx context.Context, logger *slog.Logger, envCfg envConfig, configPath, addr string) error {
	svc, _, err := openService(logger, envCfg, configPath, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := site.NewServer(svc, site.ServerOptions{
		SiteDir:  envCfg.SiteDir,
		AuthUser: envCfg.AuthUser,
		AuthHash: envCfg.AuthHash,
		Logger:   logger,
	})
	go srv.Watch(ctx)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("breakingchange: listening", "addr", addr, "site", envCfg.SiteDir, "auth", envCfg.AuthUser != "")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func runMCP(ctx context.Context, logger *slog.Logger, envCfg envConfig, configPath string) error {
	svc, _, err := openService(logger, envCfg, configPath, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := mcp.NewServer(&mcp.Implementation{Name: "breakingchange", Version: version}, nil)
	svc.RegisterMCP(srv)
	logger.Info("breakingchange: mcp server on stdio", "sources", len(svc.Sources()))
	return srv.Run(ctx, &mcp.StdioTransport{})
}
