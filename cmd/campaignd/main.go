// Command campaignd is an add-on hosting server for strategy game content
// bundles. It expects a server.cfg config file in the server directory and
// stores add-ons under data/.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/hanko213/campaignd/server"
	"github.com/hanko213/campaignd/wml"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// Exit codes.
const (
	exitOK        = 0
	exitIOError   = 1
	exitBadConfig = 2
	exitInternal  = 4
	exitBadCLI    = 10
)

var cli struct {
	Config    string           `short:"c" default:"server.cfg" help:"Server configuration file, relative to the server directory."`
	ServerDir string           `short:"d" default:"." help:"Server directory; add-ons are stored under its data/ subdirectory."`
	Port      int              `short:"p" help:"Listen port override; the configured port is used when omitted."`
	LogLevel  string           `default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string           `default:"text" enum:"text,json" help:"Log format."`
	Timings   bool             `help:"Log per-request servicing times."`
	Version   kong.VersionFlag `help:"Print the server version and exit."`
}

func main() {
	parser, err := kong.New(&cli,
		kong.Name("campaignd"),
		kong.Description("Add-on content hosting server."),
		kong.Vars{"version": "campaignd " + version},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitInternal)
	}
	if _, err := parser.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error in command line: %v\n", err)
		os.Exit(exitBadCLI)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(classifyExit(err))
	}
}

func run() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		return err
	}

	var handler slog.Handler
	switch cli.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	info, err := os.Stat(cli.ServerDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("server directory %q does not exist or is not a directory", cli.ServerDir)
	}

	logger.Info("campaignd starting", "version", version)

	srv, err := server.New(server.Options{
		ConfigFile: cli.Config,
		ServerDir:  cli.ServerDir,
		Port:       cli.Port,
		Timings:    cli.Timings,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	return srv.Run(context.Background())
}

// classifyExit maps an error to the documented exit codes: malformed
// config documents exit 2, everything else (I/O, paths) exits 1.
func classifyExit(err error) int {
	if errors.Is(err, wml.ErrSyntax) {
		return exitBadConfig
	}
	return exitIOError
}
