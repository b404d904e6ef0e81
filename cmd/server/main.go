package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/HMasataka/clientserve/internal/config"
	"github.com/HMasataka/clientserve/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	baseDir, err := programDir()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(args, os.LookupEnv, baseDir)
	if err != nil {
		return err
	}

	slog.SetDefault(cfg.Log.NewLogger(os.Stdout, cfg.Server.Debug))

	fmt.Println(cfg.Static.Root)

	s, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return s.ListenAndServe(ctx)
}

// loadConfig layers defaults, the TOML file, the environment and flags, in
// increasing priority, then resolves relative paths against baseDir.
func loadConfig(args []string, lookup func(string) (string, bool), baseDir string) (config.Config, error) {
	fs := flag.NewFlagSet("clientserve", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	addr := fs.String("addr", "", "listen address (default "+config.DefaultAddr+")")
	root := fs.String("root", "", "static root (default <program dir>/"+config.DefaultRoot+"; under go run the working directory stands in for the program dir)")
	index := fs.String("index", "", "index document served for directories")
	debug := fs.Bool("debug", true, "debug mode")
	liveReload := fs.Bool("livereload", true, "notify browsers when files change (debug only)")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return config.Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "root":
			cfg.Static.Root = *root
		case "index":
			cfg.Static.Index = *index
		case "debug":
			cfg.Server.Debug = *debug
		case "livereload":
			cfg.LiveReload.Enabled = *liveReload
		}
	})

	cfg.ResolvePaths(baseDir)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// programDir is the directory holding the running binary, with symlinks
// resolved. Binaries built by go run live in a temporary directory, so the
// working directory is used for them instead.
func programDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}

	dir := filepath.Dir(exe)
	if isTempDir(dir) {
		return os.Getwd()
	}
	return dir, nil
}

func isTempDir(dir string) bool {
	tmp, err := filepath.EvalSymlinks(os.TempDir())
	if err != nil {
		tmp = os.TempDir()
	}

	rel, err := filepath.Rel(tmp, dir)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
