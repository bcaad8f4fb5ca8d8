// Package cli implements the tracker command line: a view over one
// generation and session that records step progress and results.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"exectrack/internal/config"
	"exectrack/internal/domain"
	"exectrack/internal/logging"
	"exectrack/internal/tracker"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DialFunc connects to the tracker server.
type DialFunc func(target string) (Backend, error)

const (
	serverFlagName     = "server"
	actorFlagName      = "actor"
	sessionFlagName    = "session"
	generationFlagName = "generation"
	policyFlagName     = "policy"
	timeoutFlagName    = "timeout"
	logFileFlagName    = "log-file"
	logLevelFlagName   = "log-level"

	logFileKey  = "log.file"
	logLevelKey = "log.level"
)

const rootLongDescription = `tracker records manual test execution progress.

A view covers the test cases of one generation, optionally inside a test
session. Steps are toggled as they are performed; a result (passed, failed,
blocked or skipped) closes the attempt. Every change is saved immediately.`

// Options are the resolved global flags.
type Options struct {
	Server     string
	Actor      string
	Session    string
	Generation string
	Policy     tracker.WritePolicy
	Timeout    time.Duration
}

type app struct {
	v       *viper.Viper
	dial    DialFunc
	out     io.Writer
	errOut  io.Writer
	logger  *slog.Logger
	closeFn func() error
}

// NewRootCmd builds the tracker command tree. dial is called once per command.
func NewRootCmd(dial DialFunc) *cobra.Command {
	a := &app{
		v:      viper.New(),
		dial:   dial,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	cmd := &cobra.Command{
		Use:           "tracker",
		Short:         "Record manual test execution progress",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			return a.setupLogging()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closeFn != nil {
				return a.closeFn()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	a.configureFlags(cmd)

	cmd.AddCommand(
		a.newShowCmd(),
		a.newStatsCmd(),
		a.newToggleCmd(),
		a.newFlagCmd(),
		a.newUnflagCmd(),
		a.newResultCmd("pass", "Mark a test case passed", "passed"),
		a.newResultCmd("fail", "Mark a test case failed", "failed"),
		a.newResultCmd("block", "Mark a test case blocked", "blocked"),
		a.newResultCmd("skip", "Mark a test case skipped", "skipped"),
		a.newResetCmd(),
		a.newImportCmd(),
	)
	return cmd
}

func (a *app) configureFlags(cmd *cobra.Command) {
	v := a.v
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(serverFlagName, "localhost:9090")
	v.SetDefault(policyFlagName, tracker.OptimisticWriteThrough.String())
	v.SetDefault(timeoutFlagName, 10*time.Second)
	v.SetDefault(logFileKey, filepath.Join(os.TempDir(), "exectrack-tracker.log"))
	v.SetDefault(logLevelKey, "info")

	flags := cmd.PersistentFlags()
	flags.String(serverFlagName, v.GetString(serverFlagName), "tracker server gRPC address")
	flags.StringP(actorFlagName, "u", "", "user recording the progress")
	flags.StringP(sessionFlagName, "s", "", "test session id (empty records outside any session)")
	flags.StringP(generationFlagName, "g", "", "generation whose test cases form the view")
	flags.String(policyFlagName, v.GetString(policyFlagName), "local state after a failed save: optimistic or rollback")
	flags.Duration(timeoutFlagName, v.GetDuration(timeoutFlagName), "timeout for each command")
	flags.String(logFileFlagName, v.GetString(logFileKey), "log file (rotated)")
	flags.String(logLevelFlagName, v.GetString(logLevelKey), "log level")

	bindFlagToConfig(v, flags.Lookup(serverFlagName), serverFlagName)
	bindFlagToConfig(v, flags.Lookup(actorFlagName), actorFlagName)
	bindFlagToConfig(v, flags.Lookup(sessionFlagName), sessionFlagName)
	bindFlagToConfig(v, flags.Lookup(generationFlagName), generationFlagName)
	bindFlagToConfig(v, flags.Lookup(policyFlagName), policyFlagName)
	bindFlagToConfig(v, flags.Lookup(timeoutFlagName), timeoutFlagName)
	bindFlagToConfig(v, flags.Lookup(logFileFlagName), logFileKey)
	bindFlagToConfig(v, flags.Lookup(logLevelFlagName), logLevelKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so env values feed the flag.
func bindFlagToConfig(v *viper.Viper, flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}
	cobra.CheckErr(v.BindPFlag(key, flag))
}

func (a *app) setupLogging() error {
	file := a.v.GetString(logFileKey)
	if file == "" {
		return nil
	}
	logger, w := logging.NewFile(
		logging.FileOptions{Filename: file, MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
		logging.Options{Level: a.v.GetString(logLevelKey), Format: "text"},
	)
	a.logger = logger.With("component", "tracker-cli")
	prev := a.closeFn
	a.closeFn = func() error {
		if prev != nil {
			_ = prev()
		}
		return w.Close()
	}
	return nil
}

func (a *app) options() Options {
	policy, ok := tracker.ParseWritePolicy(a.v.GetString(policyFlagName))
	if !ok {
		policy = tracker.OptimisticWriteThrough
	}
	return Options{
		Server:     a.v.GetString(serverFlagName),
		Actor:      a.v.GetString(actorFlagName),
		Session:    a.v.GetString(sessionFlagName),
		Generation: a.v.GetString(generationFlagName),
		Policy:     policy,
		Timeout:    a.v.GetDuration(timeoutFlagName),
	}
}

// connect validates the global options and dials the server. done cancels
// the command context and closes the connection.
func (a *app) connect(cmd *cobra.Command) (ctx context.Context, done func(), backend Backend, err error) {
	if _, ok := tracker.ParseWritePolicy(a.v.GetString(policyFlagName)); !ok {
		return nil, nil, nil, fmt.Errorf("%w: unknown --policy %q, want optimistic or rollback", domain.ErrValidation, a.v.GetString(policyFlagName))
	}
	opts := a.options()
	backend, err = a.dial(opts.Server)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to %s: %w", opts.Server, err)
	}

	ctx = cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	return ctx, func() {
		cancel()
		if err := backend.Close(); err != nil {
			a.logger.Warn("failed to close connection", "error", err)
		}
	}, backend, nil
}
