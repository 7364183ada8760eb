package normalizer

import (
	"fmt"
	"strings"

	"finsight/pkg/errors"
)

// Config holds column aliases and enrichment options for the normalizer.
// Alias lists are matched against standardized column names (lowercase,
// spaces and hyphens replaced by underscores) and tried in order.
type Config struct {
	DateAliases          []string `json:"date_aliases" yaml:"date_aliases"`
	AmountAliases        []string `json:"amount_aliases" yaml:"amount_aliases"`
	DescriptionAliases   []string `json:"description_aliases" yaml:"description_aliases"`
	UserAliases          []string `json:"user_aliases" yaml:"user_aliases"`
	IDAliases            []string `json:"id_aliases" yaml:"id_aliases"`
	MerchantAliases      []string `json:"merchant_aliases" yaml:"merchant_aliases"`
	PaymentMethodAliases []string `json:"payment_method_aliases" yaml:"payment_method_aliases"`
	CategoryAliases      []string `json:"category_aliases" yaml:"category_aliases"`
	RecurringAliases     []string `json:"recurring_aliases" yaml:"recurring_aliases"`
	LocationAliases      []string `json:"location_aliases" yaml:"location_aliases"`
	TagsAliases          []string `json:"tags_aliases" yaml:"tags_aliases"`

	// DefaultUserID is assigned to rows without a user column value
	DefaultUserID string `json:"default_user_id" yaml:"default_user_id"`

	// PreferSuppliedFields keeps non-empty category, merchant and payment
	// method values from the input instead of deriving them
	PreferSuppliedFields bool `json:"prefer_supplied_fields" yaml:"prefer_supplied_fields"`

	// MaxRecordedRejections caps the per-row rejection detail kept in
	// RejectionStats. Counters are always exact. Zero keeps everything.
	MaxRecordedRejections int `json:"max_recorded_rejections" yaml:"max_recorded_rejections"`
}

// DefaultConfig returns the default alias table
func DefaultConfig() *Config {
	return &Config{
		DateAliases:           []string{"date", "transaction_date", "posted_date", "posting_date", "booking_date"},
		AmountAliases:         []string{"amount", "amt", "transaction_amount", "value"},
		DescriptionAliases:    []string{"description", "desc", "memo", "narrative", "details"},
		UserAliases:           []string{"user_id", "userid", "user"},
		IDAliases:             []string{"id", "transaction_id", "trx_id", "txn_id"},
		MerchantAliases:       []string{"merchant", "merchant_name", "payee"},
		PaymentMethodAliases:  []string{"payment_method", "payment_type", "method"},
		CategoryAliases:       []string{"category", "category_name"},
		RecurringAliases:      []string{"is_recurring", "recurring"},
		LocationAliases:       []string{"location", "city"},
		TagsAliases:           []string{"tags", "labels"},
		DefaultUserID:         "default",
		MaxRecordedRejections: 1000,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	required := map[string][]string{
		"date_aliases":        c.DateAliases,
		"amount_aliases":      c.AmountAliases,
		"description_aliases": c.DescriptionAliases,
	}
	for name, aliases := range required {
		if len(aliases) == 0 {
			return errors.ConfigurationError(errors.CodeMissingConfig, name, nil, nil)
		}
	}

	seen := map[string]string{}
	for name, aliases := range c.aliasTable() {
		for _, alias := range aliases {
			std := StandardizeColumn(alias)
			if std == "" {
				return errors.ConfigurationError(errors.CodeInvalidConfig, name, alias,
					fmt.Errorf("empty alias"))
			}
			if other, dup := seen[std]; dup && other != name {
				return errors.ConfigurationError(errors.CodeInvalidConfig, name, alias,
					fmt.Errorf("alias also used by %s", other))
			}
			seen[std] = name
		}
	}

	if strings.TrimSpace(c.DefaultUserID) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "default_user_id", nil, nil)
	}
	if c.MaxRecordedRejections < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_recorded_rejections", c.MaxRecordedRejections, nil)
	}
	return nil
}

func (c *Config) aliasTable() map[string][]string {
	return map[string][]string{
		"date_aliases":           c.DateAliases,
		"amount_aliases":         c.AmountAliases,
		"description_aliases":    c.DescriptionAliases,
		"user_aliases":           c.UserAliases,
		"id_aliases":             c.IDAliases,
		"merchant_aliases":       c.MerchantAliases,
		"payment_method_aliases": c.PaymentMethodAliases,
		"category_aliases":       c.CategoryAliases,
		"recurring_aliases":      c.RecurringAliases,
		"location_aliases":       c.LocationAliases,
		"tags_aliases":           c.TagsAliases,
	}
}

// StandardizeColumn lowercases a column name and joins words with underscores
func StandardizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '-'
	}), "_")
}
