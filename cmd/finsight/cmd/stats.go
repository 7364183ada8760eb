package cmd

import (
	"context"
	"fmt"

	"finsight/internal/storage"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the store holds",
	Long: `Stats counts stored transactions, users, categories and budgets. SQL
stores also report their schema version.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	addOutputFlags(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.repo.Stats(ctx)
	if err != nil {
		return err
	}

	table := &statsTable{Driver: a.config.Storage.Driver, Stats: stats}
	if a.config.Storage.Driver != storage.DriverMemory {
		version, dirty, err := storage.SchemaVersion(a.config.Storage.Driver, a.config.Storage.DSN)
		if err != nil {
			return err
		}
		table.SchemaVersion, table.Dirty = version, dirty
	}
	return a.render(cmd, table, cmd.OutOrStdout())
}

// statsTable is the tabular view of repository counts
type statsTable struct {
	Driver        storage.Driver `json:"driver"`
	SchemaVersion uint           `json:"schema_version,omitempty"`
	Dirty         bool           `json:"dirty,omitempty"`
	storage.Stats
}

func (t *statsTable) Title() string { return fmt.Sprintf("Store statistics (%s)", t.Driver) }

func (t *statsTable) Header() []string { return []string{"Metric", "Value"} }

func (t *statsTable) Rows() [][]string {
	rows := [][]string{
		{"Transactions", fmt.Sprint(t.Transactions)},
		{"Users", fmt.Sprint(t.Users)},
		{"Categories", fmt.Sprint(t.Categories)},
		{"Budgets", fmt.Sprint(t.Budgets)},
	}
	if t.Driver != storage.DriverMemory {
		rows = append(rows, []string{"Schema Version", fmt.Sprint(t.SchemaVersion)})
		if t.Dirty {
			rows = append(rows, []string{"Schema Dirty", "true"})
		}
	}
	return rows
}

func (t *statsTable) Empty() bool { return false }
