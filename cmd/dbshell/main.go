// Command dbshell is an interactive SQL shell over a SQLite session.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/kasuganosora/sqlsession/internal/shell"
	"github.com/kasuganosora/sqlsession/pkg/api"
	"github.com/kasuganosora/sqlsession/pkg/config"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "dbshell [path] [sql]",
		Short: "SQL shell for SQLite databases",
		Long: `dbshell opens a session on the database at path (default :memory:).

With a second argument the statements in it are run and dbshell exits.
Otherwise statements are read from the terminal, or from stdin when it
is not a terminal. Pending work is committed on a clean exit.`,
		Version:      Version,
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Database.Path = args[0]
			}
			return run(cmd, cfg, args)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	config.BindFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config, args []string) error {
	opts, err := cfg.ConnectOptions()
	if err != nil {
		return err
	}
	mon := cfg.NewMonitor()
	opts = append(opts, api.WithObserver(mon))

	s, err := api.Connect(cfg.Database.Path, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	sh := shell.New(s, cfg.Shell, cmd.OutOrStdout(), cmd.ErrOrStderr())
	sh.SetMonitor(mon)
	switch {
	case len(args) == 2:
		for _, line := range strings.Split(args[1], "\n") {
			if sh.Feed(line) {
				break
			}
		}
		sh.Flush()
	case readline.IsTerminal(int(os.Stdin.Fd())):
		err = sh.Interactive(cfg.Shell.HistoryFile)
	default:
		err = sh.Run(shell.NewLineReader(cmd.InOrStdin()))
	}
	if err != nil {
		return err
	}

	if s.InTransaction() {
		if err := s.Commit(); err != nil {
			return fmt.Errorf("commit on exit: %w", err)
		}
	}
	return nil
}
