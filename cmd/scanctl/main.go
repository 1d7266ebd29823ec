// Command scanctl builds and searches the Film/Scan indexes from a shell,
// without a running server.
//
// Usage:
//
//	scanctl servers
//	scanctl bootstrap SCAN01 SCAN02
//	scanctl update
//	scanctl status --json
//	scanctl search --lot LOT1 --link-recipe
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"scan-indexer/internal/config"
	"scan-indexer/internal/database"
	"scan-indexer/internal/index"
	"scan-indexer/internal/indexer"
	"scan-indexer/internal/logging"
	"scan-indexer/internal/search"
	"scan-indexer/internal/source"
	"scan-indexer/internal/startup"
)

// CLI defines the command-line interface.
type CLI struct {
	Servers   ServersCmd   `cmd:"" help:"List the configured servers."`
	Bootstrap BootstrapCmd `cmd:"" help:"Rebuild indexes from scratch."`
	Update    UpdateCmd    `cmd:"" help:"Walk servers incrementally and merge new paths."`
	Status    StatusCmd    `cmd:"" help:"Show the published index of each server."`
	Search    SearchCmd    `cmd:"" help:"Search the indexes or the servers."`
	Version   VersionCmd   `cmd:"" help:"Show version information."`

	EnvFile    string `name:"env-file" help:"Environment file loaded before flags are read." default:".env" type:"path"`
	OutDir     string `name:"out-dir" help:"Index directory." env:"OUT_DIR" default:"./out" type:"path"`
	ServerFile string `name:"server-file" help:"Server list." env:"SERVER_FILE" default:"servers.txt" type:"path"`
	HistoryDB  string `name:"history-db" help:"SQLite run history, empty disables." env:"HISTORY_DB"`
	LogLevel   string `name:"log-level" help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL" default:"warn"`

	stdout io.Writer `kong:"-"` // nil means os.Stdout
}

// app holds what the commands share. Close releases it.
type app struct {
	servers config.ServerList
	store   *index.Store
	sources *source.Registry
	db      *database.Database
	out     io.Writer
	tty     bool
}

func (c *CLI) open(ctx context.Context) (*app, error) {
	logging.SetLevel(logging.ParseLevel(c.LogLevel))

	servers, err := config.LoadServerList(c.ServerFile)
	if err != nil {
		return nil, err
	}
	a := &app{
		servers: servers,
		store:   index.NewStore(c.OutDir),
		sources: source.NewRegistry(nil),
		out:     c.stdout,
	}
	if a.out == nil {
		a.out = os.Stdout
		a.tty = isTerminal(os.Stdout)
	}
	if c.HistoryDB != "" {
		a.db, err = database.New(ctx, c.HistoryDB)
		if err != nil {
			_ = a.sources.Close()
			return nil, fmt.Errorf("open run history: %w", err)
		}
	}
	return a, nil
}

func (a *app) manager() *indexer.Manager {
	opts := indexer.Options{}
	if a.db != nil {
		opts.Recorder = a.db
	}
	return indexer.New(a.servers, a.store, a.sources, opts)
}

func (a *app) engine() *search.Engine {
	return search.New(a.servers, a.store, a.sources, search.Options{})
}

func (a *app) Close() error {
	err := a.sources.Close()
	if a.db != nil {
		if dbErr := a.db.Close(); err == nil {
			err = dbErr
		}
	}
	return err
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := startup.GetBuildInfo()
	fmt.Printf("scanctl %s (commit %s, built %s, %s %s/%s)\n",
		info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// preloadEnv loads --env-file before kong resolves env defaults.
func preloadEnv(args []string) {
	path := ".env"
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--env-file="); ok {
			path = v
		} else if arg == "--env-file" && i+1 < len(args) {
			path = args[i+1]
		}
	}
	if err := startup.LoadEnvFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func main() {
	preloadEnv(os.Args[1:])

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("scanctl"),
		kong.Description("Build and search Film/Scan repository indexes."),
		kong.UsageOnError(),
	)

	ctx, cancel := signalContext()
	defer cancel()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
