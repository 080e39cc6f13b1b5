// Package cli implements the recommend command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/natserract/recommend/pkg/config"
	"github.com/natserract/recommend/pkg/recommend"
	"github.com/natserract/recommend/pkg/recommend/persist"
)

type appKey struct{}

// app holds what every subcommand needs once the root has run.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	client *recommend.Client
	close  func()
	format string
}

func fromContext(ctx context.Context) *app {
	a, _ := ctx.Value(appKey{}).(*app)
	return a
}

// session owns what the root command opened, so it can be released after
// the command returns, failed or not.
type session struct {
	app *app
}

func (s *session) close() {
	if s.app == nil {
		return
	}
	s.app.close()
	_ = s.app.logger.Sync()
	s.app = nil
}

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *session) {
	var (
		debug  bool
		format string
		sess   = &session{}
	)

	cmd := &cobra.Command{
		Use:           "recommend",
		Short:         "Command-line client for the Recommend API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("%w: unknown output format %q", recommend.ErrConfiguration, format)
			}

			logger, err := newLogger(debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("%w: failed to load config: %v", recommend.ErrConfiguration, err)
			}

			p, closeFn, err := persist.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to open token backend: %w", err)
			}

			client, err := recommend.NewClientWithLogger(cfg, logger, recommend.WithPersister(p))
			if err != nil {
				closeFn()
				return err
			}

			a := &app{cfg: cfg, logger: logger, client: client, close: closeFn, format: format}
			sess.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log requests at debug level")
	cmd.PersistentFlags().StringVarP(&format, "output", "o", formatJSON, "Output format (json or yaml)")

	cmd.AddCommand(
		newAuthCmd(),
		newTokenCmd(),
		newAPICmd(),
		newContactCmd(),
		newBatchCmd(),
	)
	return cmd, sess
}

// Execute runs the root command.
func Execute() {
	cmd, sess := newRootCmd()
	err := cmd.ExecuteContext(context.Background())
	sess.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, recommend.ErrAuthentication), errors.Is(err, recommend.ErrUnauthorized):
		return 3
	case errors.Is(err, recommend.ErrConfiguration):
		return 2
	}
	return 1
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
