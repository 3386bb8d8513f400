package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nikahq/nika/internal/config"
)

// exitError pairs an error with the process exit code it should produce,
// so Execute can report spec §6's exit-code table without every command
// calling os.Exit directly.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCodeFor(err error) (int, bool) {
	var ee *exitError
	for e := err; e != nil; {
		if x, ok := e.(*exitError); ok {
			ee = x
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if ee == nil {
		return 0, false
	}
	return ee.code, true
}

// NewRootCommand builds the nika CLI: a root command carrying the shared
// --config/--concurrency/--provider/--model/--log-format flags, and the
// run/validate/events subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nika",
		Short:         "Declarative workflow engine for infer/exec/fetch/invoke/agent task graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to nika/config.toml (defaults to the platform config directory)")
	root.PersistentFlags().Int("concurrency", 0, "override general.concurrency from the config file")
	root.PersistentFlags().String("provider", "", "override general.default_provider")
	root.PersistentFlags().String("model", "", "override general.default_model")
	root.PersistentFlags().String("log-format", "", "override general.log_format (text|json)")
	root.PersistentFlags().String("log-level", "", "override general.log_level (debug|info|warn|error)")
	root.PersistentFlags().Bool("temporal", false, "run against the Temporal engine backend instead of the in-process one")
	root.PersistentFlags().String("temporal-address", "", "override temporal.address")

	v := viper.New()
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(newRunCommand(v))
	root.AddCommand(newValidateCommand())
	root.AddCommand(newEventsCommand(v))

	return root
}

// loadConfig loads the config file (or defaults) and applies any
// explicitly-set CLI flags on top, following the same override-after-load
// order internal/config applies to environment variables.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, newExitError(3, err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, newExitError(3, err)
	}

	if n := v.GetInt("concurrency"); n > 0 {
		cfg.General.Concurrency = n
	}
	if s := v.GetString("provider"); s != "" {
		cfg.General.DefaultProvider = s
	}
	if s := v.GetString("model"); s != "" {
		cfg.General.DefaultModel = s
	}
	if s := v.GetString("log-format"); s != "" {
		cfg.General.LogFormat = s
	}
	if s := v.GetString("log-level"); s != "" {
		cfg.General.LogLevel = s
	}
	if s := v.GetString("temporal-address"); s != "" {
		cfg.Temporal.Address = s
	}

	return cfg, nil
}

func wrapf(code int, format string, args ...any) error {
	return newExitError(code, fmt.Errorf(format, args...))
}
