package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"finsight/cmd/finsight/config"
	"finsight/internal/parsers"
	"finsight/internal/pipeline"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Clean, categorize and store transaction exports",
	Long: `Ingest reads one or more CSV or JSON transaction exports, normalizes
column names, drops duplicate and invalid rows, derives categories, merchants
and payment methods, flags anomalies and stores the result.

Files are processed concurrently and independently: a failing file does not
stop the others.

Examples:
  # Single export for one user
  finsight ingest --file january.csv --user alice

  # Several exports into postgres
  finsight ingest --file jan.csv --file feb.json --store postgres \
    --dsn "postgres://localhost/finsight?sslmode=disable"

  # Custom category rules, results as JSON
  finsight ingest --file jan.csv --rules rules.yaml --format json

  # Check a file without storing anything
  finsight ingest --file jan.csv --dry-run`,

	PreRunE: validateIngestFlags,
	RunE:    runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringSlice("file", []string{}, "transaction export to ingest, repeatable (required)")
	ingestCmd.Flags().StringP("user", "u", "", "user id for rows without a user column")
	ingestCmd.Flags().String("rules", "", "YAML category rules file")
	ingestCmd.Flags().String("delimiter", ",", "CSV delimiter: a character or tab, comma, semicolon, pipe")
	ingestCmd.Flags().Int("batch-size", 1000, "records stored per batch")
	ingestCmd.Flags().Bool("progress", false, "show progress indicators")
	ingestCmd.Flags().Bool("dry-run", false, "normalize and score without storing")
	addOutputFlags(ingestCmd)

	ingestCmd.MarkFlagRequired("file")

	viper.BindPFlag(config.KeyRulesFile, ingestCmd.Flags().Lookup("rules"))
	viper.BindPFlag(config.KeyDelimiter, ingestCmd.Flags().Lookup("delimiter"))
	viper.BindPFlag(config.KeyBatchSize, ingestCmd.Flags().Lookup("batch-size"))
}

func validateIngestFlags(cmd *cobra.Command, args []string) error {
	files, _ := cmd.Flags().GetStringSlice("file")
	if len(files) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "file", nil, nil).
			WithSuggestion("Pass at least one --file")
	}
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

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	files, _ := cmd.Flags().GetStringSlice("file")
	user, _ := cmd.Flags().GetString("user")

	requests, err := readRequests(ctx, a, files, user)
	if err != nil {
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		return printDryRun(cmd.OutOrStdout(), a.service, requests)
	}

	if showProgress, _ := cmd.Flags().GetBool("progress"); showProgress {
		a.service.AddProgressCallback(progressPrinter(cmd.ErrOrStderr()))
	}

	results, runErr := a.service.RunMany(ctx, requests)

	generator, err := a.reportGenerator(cmd)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("output-file"); path != "" {
		err = generator.WriteResultsFile(results, path)
	} else {
		err = generator.GenerateResultsSafely(results, cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "Ingested %d files.\n", len(results))
	}
	return runErr
}

// readRequests parses every file before any run starts so that an unreadable
// file fails the command without storing anything
func readRequests(ctx context.Context, a *app, files []string, user string) ([]pipeline.Request, error) {
	requests := make([]pipeline.Request, 0, len(files))
	for _, file := range files {
		parser, err := parsers.ForFile(file, a.config.Parse)
		if err != nil {
			return nil, err
		}

		rows, stats, err := parser.ParseFile(ctx, file)
		if err != nil {
			return nil, err
		}

		log := a.logger.WithFields(logger.Fields{
			"file":     file,
			"rows":     stats.RecordsParsed,
			"encoding": stats.Encoding,
		})
		if stats.HasErrors() {
			log.WithFields(logger.Fields{
				"errors":  stats.ErrorCount,
				"samples": stats.GetSampleErrors(3),
			}).Warn("Some rows could not be parsed")
		} else {
			log.Debug("Parsed input file")
		}

		requests = append(requests, pipeline.Request{UserID: user, Source: file, Rows: rows})
	}
	return requests, nil
}

func printDryRun(out io.Writer, service *pipeline.Service, requests []pipeline.Request) error {
	for _, req := range requests {
		prepared, err := service.Prepare(req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s, %d anomalies (not stored)\n",
			req.Source, prepared.Rejections, prepared.Anomalies)
		for _, sample := range prepared.Rejections.SampleRejections(5) {
			fmt.Fprintf(out, "  - %s\n", sample)
		}
	}
	return nil
}

// progressPrinter prints one line per step; runs report concurrently
func progressPrinter(w io.Writer) pipeline.ProgressCallback {
	var mu sync.Mutex
	return func(p pipeline.Progress) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%s] [%d/%d] %s (%.1f%% complete, %d stored)\n",
			p.Source, p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.PercentComplete, p.RecordsStored)
	}
}

func validateFileExists(filePath, description string) error {
	if strings.TrimSpace(filePath) == "" {
		return errors.ValidationError(errors.CodeMissingField, description, filePath, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeFileCorrupted, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}

func validateOutputFile(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("output-file")
	if path == "" {
		return nil
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return errors.ValidationError(errors.CodeInvalidFormat, "output-file", path,
			fmt.Errorf("output path is a directory"))
	}
	return nil
}
