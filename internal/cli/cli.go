package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vk/evalgraph/internal/app"
	"github.com/vk/evalgraph/internal/engine"
	"github.com/vk/evalgraph/internal/sandbox"
)

// EnvPrefix prefixes environment variables overriding flags, e.g.
// EVALGRAPH_LOG_LEVEL=debug.
const EnvPrefix = "EVALGRAPH"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	v := viper.New()
	var parsed *app.Config

	cmd := &cobra.Command{
		Use:   "evalgraph [flags] PAGE_PATH",
		Short: "Evaluate the reactive bindings of a low-code page",
		Long: `evalgraph loads a page definition (.hcl or .yaml files, or a directory of
them), evaluates every property binding in dependency order, optionally
applies --set mutations and re-evaluates incrementally, then prints the
value tree and per-property statuses.`,
		Example:       "evalgraph --set Input1.text=hi --trigger Button1.onClick -o yaml ./page",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v, cmd); err != nil {
				return err
			}

			path := v.GetString("page")
			if len(args) > 0 {
				path = args[0]
			}
			slog.Debug("Page path determined.", "path", path)
			if path == "" {
				slog.Debug("No page path provided, printing usage and exiting.")
				return cmd.Usage()
			}

			cfg, err := app.NewConfig(app.Config{
				PagePath:     path,
				LogFormat:    v.GetString("log-format"),
				LogLevel:     v.GetString("log-level"),
				Workers:      v.GetInt("workers"),
				EvalTimeout:  v.GetDuration("eval-timeout"),
				CacheSize:    v.GetInt("cache-size"),
				MetricsPort:  v.GetInt("metrics-port"),
				OutputFormat: v.GetString("output"),
				Set:          v.GetStringSlice("set"),
				Trigger:      v.GetStringSlice("trigger"),
			})
			if err != nil {
				return err
			}
			parsed = cfg
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "Config file (yaml, json or toml) providing flag defaults.")
	flags.StringP("page", "p", "", "Path to the page file or directory.")
	flags.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.Int("workers", engine.DefaultWorkers, "Number of concurrent evaluation workers.")
	flags.Duration("eval-timeout", sandbox.DefaultTimeout, "Deadline for a single binding evaluation.")
	flags.Int("cache-size", 0, "Size of the parsed expression cache. 0 uses the default.")
	flags.Int("metrics-port", 0, "Port for the /health and /metrics server. 0 is disabled.")
	flags.StringP("output", "o", "json", "Report format. Options: 'json' or 'yaml'.")
	flags.StringArray("set", nil, "Entity.property=value mutation applied after the first evaluation. Repeatable.")
	flags.StringArray("trigger", nil, "Entity.property trigger fired after the mutations; the requested action is reported. Repeatable.")

	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	if err := cmd.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if parsed == nil {
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "config", parsed)
	return parsed, false, nil
}

// initConfig layers the config file and EVALGRAPH_* variables under the
// command-line flags.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return fmt.Errorf("config file not found: %s", file)
			}
			return fmt.Errorf("error reading configuration %s: %w", file, err)
		}
		slog.Debug("Using config file.", "path", v.ConfigFileUsed())
	}
	return nil
}
