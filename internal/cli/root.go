// Package cli wires the campuscarbon subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Nissan15/hackathon/internal/config"
	"github.com/Nissan15/hackathon/internal/logging"
)

// BuildInfo is stamped by the linker.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// app is the state shared by every subcommand once configuration is loaded.
type app struct {
	v      *viper.Viper
	build  BuildInfo
	cfg    config.Config
	logger zerolog.Logger
}

// persistent flags bound onto viper keys.
var boundFlags = []struct {
	name, key, usage string
}{
	{"store-backend", "STORE_BACKEND", "storage backend: postgres, mysql, sqlite or memory"},
	{"database-url", "DATABASE_URL", "database DSN or SQLite file path"},
	{"log-level", "LOG_LEVEL", "log level"},
	{"log-format", "LOG_FORMAT", "log format: console or json"},
}

// NewRootCommand builds the campuscarbon command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	a := &app{v: viper.New(), build: build, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "campuscarbon",
		Short:         "Track campus carbon emissions and serve the dashboard.",
		Version:       build.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	for _, f := range boundFlags {
		flags.String(f.name, "", f.usage)
		_ = a.v.BindPFlag(f.key, flags.Lookup(f.name))
	}
	_ = a.v.BindPFlag("config", flags.Lookup("config"))

	root.AddCommand(
		newServeCommand(a),
		newMigrateCommand(a),
		newSeedCommand(a),
		newReportCommand(a),
		newExportCommand(a),
		newMCPCommand(a),
		newConsumeCommand(a),
		newDLQCommand(a),
		newVersionCommand(a),
	)
	return root
}

// Execute runs the command tree until completion or SIGINT/SIGTERM.
func Execute(build BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(build).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) load(logOut io.Writer) error {
	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, logOut)
	return nil
}
