package cmd

import (
	"context"
	"fmt"
	"strings"

	"finsight/cmd/finsight/config"
	"finsight/internal/pipeline"
	"finsight/internal/storage"
	"finsight/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report <" + strings.Join(pipeline.ReportKinds, "|") + ">",
	Short: "Compute an analytics report for one user",
	Long: `Report computes one analytics report over the stored transactions of a
user, or over export files when --file is given. Reports with a trailing
window end at --as-of, which defaults to now.

Reports:
  trends    monthly spend per category with rolling averages and ranks
  budgets   actual spend against each budget
  savings   monthly income, expenses and savings rate
  expenses  per-transaction features and anomaly flags
  health    financial health score and grade
  insights  data summary, health trend and recent anomalies

Examples:
  finsight report trends --user alice --months 6
  finsight report budgets --user alice --format csv --output-file budgets.csv
  finsight report health --user alice --as-of 2024-05-31
  finsight report insights --user alice --file export.csv`,

	Args:      cobra.ExactArgs(1),
	ValidArgs: pipeline.ReportKinds,
	PreRunE:   validateReportFlags,
	RunE:      runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("user", "u", "", "user id (required)")
	reportCmd.Flags().IntP("months", "m", 0, "trailing window in months (default: per report)")
	reportCmd.Flags().String("as-of", "", "end of the trailing window (YYYY-MM-DD)")
	reportCmd.Flags().StringSlice("file", []string{}, "compute over export files instead of the store, repeatable")
	reportCmd.Flags().Int("max-rows", 0, "limit rows in console and CSV output (0: no limit)")
	reportCmd.Flags().Bool("infer-categories", false, "derive the type of unknown categories from their name")
	addOutputFlags(reportCmd)

	reportCmd.MarkFlagRequired("user")

	viper.BindPFlag(config.KeyInferMissing, reportCmd.Flags().Lookup("infer-categories"))
}

func validateReportFlags(cmd *cobra.Command, args []string) error {
	if user, _ := cmd.Flags().GetString("user"); strings.TrimSpace(user) == "" {
		return errors.ValidationError(errors.CodeMissingField, "user", user, nil)
	}
	if months, _ := cmd.Flags().GetInt("months"); months < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "months", months,
			fmt.Errorf("months cannot be negative"))
	}
	if asOf, _ := cmd.Flags().GetString("as-of"); asOf != "" {
		if _, err := config.ParseDate("as-of", asOf); err != nil {
			return err
		}
	}
	files, _ := cmd.Flags().GetStringSlice("file")
	for i, file := range files {
		if err := validateFileExists(file, fmt.Sprintf("input file %d", i+1)); err != nil {
			return err
		}
	}
	format, _ := cmd.Flags().GetString("format")
	if _, err := config.CreateReportConfig(format); err != nil {
		return err
	}
	return validateOutputFile(cmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	user, _ := cmd.Flags().GetString("user")
	months, _ := cmd.Flags().GetInt("months")
	files, _ := cmd.Flags().GetStringSlice("file")

	a, err := openReportApp(ctx, files, user)
	if err != nil {
		return err
	}
	defer a.Close()

	set, err := a.service.Reports(ctx, user)
	if err != nil {
		return err
	}
	if asOf, _ := cmd.Flags().GetString("as-of"); asOf != "" {
		t, _ := config.ParseDate("as-of", asOf)
		set = set.AsOf(config.EndOfDay(t))
	}

	report, err := set.Build(args[0], months)
	if err != nil {
		return err
	}

	a.logger.WithField("report", args[0]).WithField("user", user).Debug("Report computed")
	return a.render(cmd, report, cmd.OutOrStdout())
}

// openReportApp opens the configured store, or loads the given files into a
// throwaway memory store. Loaded categories get their type from their name.
func openReportApp(ctx context.Context, files []string, user string) (*app, error) {
	if len(files) == 0 {
		return openApp(ctx)
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, &storage.Config{Driver: storage.DriverMemory})
	if err != nil {
		return nil, err
	}

	requests, err := readRequests(ctx, a, files, user)
	if err != nil {
		a.Close()
		return nil, err
	}
	if _, err := a.service.RunMany(ctx, requests); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
