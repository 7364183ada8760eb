package cmd

import (
	"fmt"
	"os"

	"finsight/internal/classifier"
	"finsight/pkg/errors"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect category rules",
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the effective category rules as YAML",
	Long: `Export prints the rules used to categorize descriptions, in evaluation
order. The output can be edited and passed back with --rules.

Examples:
  finsight rules export > rules.yaml
  finsight rules export --rules custom.yaml --output-file merged.yaml`,
	RunE: runRulesExport,
}

var rulesTestCmd = &cobra.Command{
	Use:   "test <description>...",
	Short: "Show the category each description is assigned",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRulesTest,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesExportCmd, rulesTestCmd)

	rulesCmd.PersistentFlags().String("rules", "", "YAML category rules file (default: built-in rules)")
	rulesExportCmd.Flags().StringP("output-file", "o", "", "output file path (default: stdout)")
}

func loadClassifier(cmd *cobra.Command) (*classifier.Classifier, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if path, _ := cmd.Flags().GetString("rules"); path != "" {
		cfg.RulesFile = path
	}
	return cfg.Classifier()
}

func runRulesExport(cmd *cobra.Command, args []string) error {
	c, err := loadClassifier(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output-file"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		defer file.Close()
		out = file
	}
	return classifier.SaveRules(out, c.Rules())
}

func runRulesTest(cmd *cobra.Command, args []string) error {
	c, err := loadClassifier(cmd)
	if err != nil {
		return err
	}
	for _, description := range args {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Classify(description), description)
	}
	return nil
}
