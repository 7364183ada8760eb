package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"finsight/cmd/finsight/config"
	"finsight/internal/pipeline"
	"finsight/internal/reporter"
	"finsight/internal/storage"
	"finsight/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "Transaction enrichment and spending analytics",
	Long: `Finsight ingests personal-finance transaction exports, cleans and
categorizes them, flags anomalies and produces windowed analytics reports:
spending trends, budget variance, savings rate, expense features and a
financial health score.

Examples:
  finsight ingest --file january.csv --user alice
  finsight report trends --user alice --months 6
  finsight report health --user alice --format json --output-file health.json
  finsight budget add --user alice --category Groceries --amount 400 --start 2024-06-01
  finsight stats`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")
	rootCmd.PersistentFlags().String("store", "sqlite", "storage driver: memory, sqlite, postgres")
	rootCmd.PersistentFlags().String("dsn", "finsight.db", "sqlite file or postgres connection string")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag(config.KeyLogFormat, rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag(config.KeyStoreDriver, rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag(config.KeyStoreDSN, rootCmd.PersistentFlags().Lookup("dsn"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(2)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// FINSIGHT_STORE_DSN overrides store.dsn
	viper.SetEnvPrefix("FINSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// app bundles what every command needs once configuration is resolved
type app struct {
	config  *config.Config
	repo    storage.Repository
	service *pipeline.Service
	logger  logger.Logger
}

// loadConfig resolves configuration and installs the global logger
func loadConfig() (*config.Config, error) {
	if viper.GetBool("verbose") && !rootCmd.PersistentFlags().Changed("log-level") {
		viper.Set(config.KeyLogLevel, string(logger.DebugLevel))
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(log)
	return cfg, nil
}

// openApp loads configuration and opens the configured repository
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, cfg.Storage)
}

func newApp(ctx context.Context, cfg *config.Config, store *storage.Config) (*app, error) {
	c, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}

	repo, err := storage.Open(ctx, store)
	if err != nil {
		return nil, err
	}

	service, err := pipeline.NewService(cfg.Pipeline, repo, c)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &app{
		config:  cfg,
		repo:    repo,
		service: service,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
	}, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}

// reportGenerator applies the command's --format and --max-rows flags on top
// of the configured report settings
func (a *app) reportGenerator(cmd *cobra.Command) (*reporter.SafeReportGenerator, error) {
	reportConfig := *a.config.Report
	if cmd.Flags().Changed("format") {
		format, _ := cmd.Flags().GetString("format")
		override, err := config.CreateReportConfig(format)
		if err != nil {
			return nil, err
		}
		reportConfig.Format = override.Format
		reportConfig.ShowNotes = override.ShowNotes
	}
	if cmd.Flags().Lookup("max-rows") != nil && cmd.Flags().Changed("max-rows") {
		reportConfig.MaxRows, _ = cmd.Flags().GetInt("max-rows")
	}
	return reporter.NewSafeReportGenerator(&reportConfig, a.logger)
}

// render writes a report to --output-file when given, else to out
func (a *app) render(cmd *cobra.Command, report reporter.Tabular, out io.Writer) error {
	generator, err := a.reportGenerator(cmd)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("output-file"); path != "" {
		return generator.WriteReportFile(report, path)
	}
	return generator.GenerateReportSafely(report, out)
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "console", "output format: console, json, csv")
	cmd.Flags().StringP("output-file", "o", "", "output file path (default: stdout)")
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
