package cli

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/engine/internal/engine"
	"github.com/lacquerai/engine/internal/execcontext"
	"github.com/lacquerai/engine/internal/server"
	"github.com/lacquerai/engine/internal/style"
)

var (
	// Global flags
	cfgFile      string
	logLevel     string
	outputFormat string
	quiet        bool

	// Engine flags
	ready       bool
	metricsAddr string
)

// rootCmd runs the engine loop when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Line-delimited JSON backend engine",
	Long: `engine reads one JSON object per line from standard input and answers
each with one JSON object per line on standard output.

Every response is flushed as soon as it is written, so a host process can
read it before sending the next request. Malformed lines are answered with
an error response and the engine keeps running until its input is closed.

Logs are written to standard error only.`,
	Example: `  echo '{"command": "ping"}' | engine
  engine --ready --metrics-addr localhost:9090
  engine call ping status`,
	Version:      getVersion(),
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runEngine(execcontext.RunContext{
			Context: ctx,
			StdIn:   cmd.InOrStdin(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.ErrOrStderr(),
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return fang.Execute(context.Background(), rootCmd, fang.WithColorSchemeFunc(func(lightDark lipgloss.LightDarkFunc) fang.ColorScheme {
		return fang.ColorScheme{
			Base:           style.PrimaryTextColor,
			Title:          style.AccentColor,
			Description:    style.PrimaryTextColor,
			Codeblock:      style.CodeColor,
			Program:        style.AccentColor,
			DimmedArgument: style.MutedColor,
			Comment:        style.MutedColor,
			Flag:           style.InfoColor,
			FlagDefault:    style.MutedColor,
			Command:        style.SuccessColor,
			QuotedString:   style.WarningColor,
			Argument:       style.PrimaryTextColor,
			Help:           style.InfoColor,
			Dash:           style.MutedColor,
			ErrorHeader:    [2]color.Color{style.ErrorColor, style.ErrorBgColor},
			ErrorDetails:   style.ErrorColor,
		}
	}))
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.engine/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "disabled", "log level (debug, info, warn, error) (default: disabled)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "text", "output format (text, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	// Engine flags
	rootCmd.Flags().BoolVar(&ready, "ready", false, `write {"status":"ready"} before the first response`)
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")

	// Bind flags to viper
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("ready", rootCmd.Flags().Lookup("ready"))
	_ = viper.BindPFlag("metrics-addr", rootCmd.Flags().Lookup("metrics-addr"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search config in home directory with name ".engine" (without extension).
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.engine")
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath(".engine")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables, e.g. ENGINE_METRICS_ADDR
	viper.SetEnvPrefix("ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in. Standard output belongs to
	// the protocol so the notice goes to standard error.
	if err := viper.ReadInConfig(); err == nil {
		if !viper.GetBool("quiet") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// initLogging configures the global logger. Logs always go to stderr.
func initLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Set log level
	level := viper.GetString("log-level")
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}

	if viper.GetString("output") == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// runEngine serves the protocol on the run context's streams until
// input ends or the context is cancelled.
func runEngine(runCtx execcontext.RunContext) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := engine.NewMetrics(registry)

	ctx, cancel := context.WithCancel(runCtx.Context)
	defer cancel()

	if addr := viper.GetString("metrics-addr"); addr != "" {
		config := server.DefaultConfig()
		config.Addr = addr
		srv := server.New(config, registry)

		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	e := engine.New(
		engine.WithMetrics(metrics),
		engine.WithReady(viper.GetBool("ready")),
	)

	// The loop blocks on reads, so a signal is handled here rather than
	// waiting for the next input line.
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, runCtx.StdIn, runCtx.StdOut)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-runCtx.Context.Done():
		log.Debug().Msg("Received shutdown signal")
		return nil
	}
}

// getVersion returns the version information
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}
