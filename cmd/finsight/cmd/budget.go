package cmd

import (
	"context"
	"fmt"
	"strings"

	"finsight/cmd/finsight/config"
	"finsight/internal/models"
	"finsight/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage spending budgets",
}

var budgetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a budget for one category",
	Long: `Add stores a planned spend for one category over a date range. The end
date defaults to the end of the period starting at --start.

Examples:
  finsight budget add --user alice --category Groceries --amount 400 --start 2024-06-01
  finsight budget add --user alice --category Dining --amount 50 --period weekly \
    --start 2024-06-03 --end 2024-06-09`,
	RunE: runBudgetAdd,
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the budgets of a user",
	RunE:  runBudgetList,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetAddCmd, budgetListCmd)

	addBudgetFlags(budgetAddCmd)

	budgetListCmd.Flags().StringP("user", "u", "", "user id (default: every user)")
	addOutputFlags(budgetListCmd)
}

// addBudgetFlags defines the flags read by budgetFromFlags
func addBudgetFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "user id (required)")
	cmd.Flags().StringP("category", "c", "", "category name (required)")
	cmd.Flags().String("amount", "", "budgeted amount (required)")
	cmd.Flags().String("period", string(models.BudgetPeriodMonthly), "period: weekly, monthly, yearly")
	cmd.Flags().String("start", "", "start date, YYYY-MM-DD (required)")
	cmd.Flags().String("end", "", "end date, YYYY-MM-DD (default: end of period)")
	for _, name := range []string{"user", "category", "amount", "start"} {
		cmd.MarkFlagRequired(name)
	}
}

// budgetFromFlags builds and validates the budget described by the add flags
func budgetFromFlags(cmd *cobra.Command) (*models.Budget, error) {
	user, _ := cmd.Flags().GetString("user")
	category, _ := cmd.Flags().GetString("category")
	amountStr, _ := cmd.Flags().GetString("amount")
	periodStr, _ := cmd.Flags().GetString("period")
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")

	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "amount", amountStr, err)
	}
	if !amount.GreaterThan(decimal.Zero) {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "amount", amountStr,
			fmt.Errorf("budget amount must be positive"))
	}

	period := models.BudgetPeriod(strings.ToLower(periodStr))
	if !period.IsValid() {
		return nil, errors.ValidationError(errors.CodeInvalidFormat, "period", periodStr, nil).
			WithSuggestion("Use one of: weekly, monthly, yearly")
	}

	start, err := config.ParseDate("start", startStr)
	if err != nil {
		return nil, err
	}
	end := config.BudgetEnd(start, period)
	if endStr != "" {
		if end, err = config.ParseDate("end", endStr); err != nil {
			return nil, err
		}
	}

	budget := &models.Budget{
		UserID:       strings.TrimSpace(user),
		CategoryName: strings.TrimSpace(category),
		Amount:       amount,
		Period:       period,
		StartDate:    start,
		EndDate:      end,
	}
	if err := budget.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidFormat, "budget", budget.CategoryName, err)
	}
	return budget, nil
}

func runBudgetAdd(cmd *cobra.Command, args []string) error {
	budget, err := budgetFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.repo.AppendBudget(ctx, budget); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added %s budget of %s for %s (%s to %s)\n",
		budget.Period, budget.Amount.StringFixed(2), budget.CategoryName,
		budget.StartDate.Format("2006-01-02"), budget.EndDate.Format("2006-01-02"))
	return nil
}

func runBudgetList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, _ := cmd.Flags().GetString("user")
	budgets, err := a.repo.ListBudgets(ctx, user)
	if err != nil {
		return err
	}
	return a.render(cmd, &budgetTable{User: user, Budgets: budgets}, cmd.OutOrStdout())
}

// budgetTable is the tabular view of stored budgets
type budgetTable struct {
	User    string          `json:"user_id,omitempty"`
	Budgets []models.Budget `json:"budgets"`
}

func (t *budgetTable) Title() string {
	if t.User == "" {
		return "Budgets"
	}
	return "Budgets for " + t.User
}

func (t *budgetTable) Header() []string {
	return []string{"User", "Category", "Period", "Amount", "Start", "End"}
}

func (t *budgetTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Budgets))
	for _, b := range t.Budgets {
		rows = append(rows, []string{
			b.UserID, b.CategoryName, string(b.Period), b.Amount.StringFixed(2),
			b.StartDate.Format("2006-01-02"), b.EndDate.Format("2006-01-02"),
		})
	}
	return rows
}

func (t *budgetTable) Empty() bool { return len(t.Budgets) == 0 }
