// Package app provides the commands of the robota-data CLI.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	otelapi "go.opentelemetry.io/otel"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/dispatch"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/otel"
	"github.com/uom-robota/robota-core/internal/telemetry"
	"github.com/uom-robota/robota-core/internal/versions"
)

const telemetryShutdownTimeout = 5 * time.Second

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	v    *viper.Viper
	vars []string
	tel  *telemetry.Telemetry
}

// telemetryFlags maps flags onto telemetry settings, also read from
// ROBOTA_TELEMETRY_* variables
var telemetryFlags = map[string]string{
	"otlp-endpoint": "telemetry.endpoint",
	"otlp-insecure": "telemetry.insecure",
	"otlp-sampling": "telemetry.sampling",
	"metrics":       "telemetry.metrics",
}

// NewRootCmd creates the robota-data root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}
	opts.v.SetEnvPrefix(config.EnvPrefix)
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	opts.v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "robota-data",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Query RoboTA data sources",
		Long: `robota-data reads a RoboTA data source configuration and fetches data
for its logical data types (repository, issues, ci, attendance, ...) from
the GitLab, GitHub, Jenkins, Benchmark, local repository or local path
source each type is bound to.

Placeholders such as {team_number} in the configuration are filled from
--var name=value flags and an optional --env-file.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.v.GetBool("debug") {
				logger.Initialize("debug")
			}
			return opts.startTelemetry(cmd.Context())
		},
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the data source configuration (YAML)")
	flags.String("env-file", "", "Read substitution variables from a .env file")
	flags.StringArrayVar(&opts.vars, "var", nil, "Substitution variable as name=value (repeatable)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("otlp-endpoint", "", "Export traces to this OTLP/HTTP collector (host:port)")
	flags.Bool("otlp-insecure", false, "Use plain HTTP for the OTLP collector")
	flags.Float64("otlp-sampling", 0, "Trace sampling ratio between 0 and 1 (default 1)")
	flags.Bool("metrics", false, "Also export dispatch metrics to the OTLP collector")

	for _, name := range []string{"config", "env-file", "debug"} {
		if err := opts.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}
	for name, key := range telemetryFlags {
		if err := opts.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}

	rootCmd.AddCommand(newCheckCmd(opts))
	rootCmd.AddCommand(newFetchCmd(opts))
	rootCmd.AddCommand(newFetchAllCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))

	return rootCmd
}

// variables merges the env file with --var flags, flags winning.
func (o *rootOptions) variables() (map[string]string, error) {
	vars := map[string]string{}
	if path := o.v.GetString("env-file"); path != "" {
		env, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		maps.Copy(vars, env)
	}
	for _, kv := range o.vars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --var %q, expected name=value", kv)
		}
		vars[strings.TrimSpace(name)] = value
	}
	return vars, nil
}

func (o *rootOptions) template() (*config.Template, error) {
	path := o.v.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.LoadTemplate(config.WithConfigPath(path))
}

// dispatcher loads, resolves and validates the configuration.
func (o *rootOptions) dispatcher() (*dispatch.Dispatcher, error) {
	tpl, err := o.template()
	if err != nil {
		return nil, err
	}
	vars, err := o.variables()
	if err != nil {
		return nil, err
	}
	cfg, err := tpl.Resolve(vars)
	if err != nil {
		return nil, err
	}

	dispatchOpts := []dispatch.Option{dispatch.WithTracer(otelapi.Tracer(otel.TracerName))}
	if tel := o.tel; tel != nil {
		metrics, err := telemetry.NewDispatchMetrics(tel.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create dispatch metrics: %w", err)
		}
		dispatchOpts = []dispatch.Option{
			dispatch.WithTracer(tel.Tracer(otel.TracerName)),
			dispatch.WithMetrics(metrics),
		}
	}
	return dispatch.New(cfg, dispatchOpts...)
}

// startTelemetry sets up OTLP export when an endpoint is configured.
func (o *rootOptions) startTelemetry(ctx context.Context) error {
	cfg := telemetry.Config{
		Endpoint: o.v.GetString("telemetry.endpoint"),
		Insecure: o.v.GetBool("telemetry.insecure"),
		Sampling: o.v.GetFloat64("telemetry.sampling"),
		Metrics:  o.v.GetBool("telemetry.metrics"),
	}
	if cfg.Endpoint == "" {
		return nil
	}
	cfg.Enabled = true
	cfg.ServiceVersion = versions.GetVersionInfo().Version

	tel, err := telemetry.New(ctx, &cfg)
	if err != nil {
		return err
	}
	o.tel = tel
	return nil
}

// run wraps a subcommand so telemetry is flushed whether or not it fails.
func (o *rootOptions) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer o.stopTelemetry(cmd.Context())
		return fn(cmd, args)
	}
}

func (o *rootOptions) stopTelemetry(ctx context.Context) {
	if o.tel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
	defer cancel()
	if err := o.tel.Shutdown(ctx); err != nil {
		logger.Warnf("Failed to flush telemetry: %v", err)
	}
	o.tel = nil
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: opts.run(func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("error retrieving format flag: %w", err)
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("error formatting version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		}),
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
