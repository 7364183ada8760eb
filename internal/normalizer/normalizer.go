// Package normalizer turns loosely-typed input rows into canonical,
// enriched transaction records.
//
// Rows pass through a fixed sequence of steps: schema resolution, exact
// duplicate removal, required field checks, amount coercion, date parsing,
// feature derivation and enrichment. Every dropped row is counted against the
// step that rejected it. Normalizing the rendered output of a previous run
// yields the same records.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"finsight/internal/classifier"
	"finsight/internal/models"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/shopspring/decimal"
)

// Normalizer cleans and enriches transaction rows
type Normalizer struct {
	config     *Config
	classifier *classifier.Classifier
	logger     logger.Logger
}

// NewNormalizer creates a normalizer. A nil config uses DefaultConfig and a
// nil classifier uses the built-in rules.
func NewNormalizer(config *Config, c *classifier.Classifier) (*Normalizer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		c = classifier.NewDefaultClassifier()
	}

	return &Normalizer{
		config:     config,
		classifier: c,
		logger:     logger.GetGlobalLogger().WithComponent("normalizer"),
	}, nil
}

// schema maps each canonical field to the standardized input column that feeds it
type schema struct {
	id, user, amount, description, date         string
	merchant, payment, category, recurring, loc string
	tags                                        string

	// mapped holds every column a field is read from
	mapped map[string]bool
}

// Normalize runs every step over the batch. The only batch-level error is a
// missing date column; row-level failures are reported in RejectionStats.
func (n *Normalizer) Normalize(rows []models.Row) ([]models.TransactionRecord, *RejectionStats, error) {
	stats := newRejectionStats(len(rows), n.config.MaxRecordedRejections)
	if len(rows) == 0 {
		return []models.TransactionRecord{}, stats, nil
	}

	standardized, columns := standardizeRows(rows)

	sch, err := n.resolveSchema(columns)
	if err != nil {
		n.logger.WithFields(logger.Fields{"columns": columns}).Error("No date column in batch")
		return nil, stats, err
	}
	stats.DateColumn = sch.date

	raws := make([]models.RawRecord, len(standardized))
	for i, row := range standardized {
		raws[i] = sch.project(i+1, row)
	}

	seen := make(map[string]int, len(raws))
	unique := raws[:0:0]
	for _, raw := range raws {
		key := raw.Key()
		if first, dup := seen[key]; dup {
			stats.reject(Rejection{
				Row:   raw.Line,
				Stage: StageDuplicate,
				Err: errors.New(errors.CategoryValidation, errors.CodeDuplicateRow,
					fmt.Sprintf("row %d duplicates row %d", raw.Line, first)).
					WithContext("line", raw.Line),
			})
			continue
		}
		seen[key] = raw.Line
		unique = append(unique, raw)
	}

	complete := unique[:0:0]
	for _, raw := range unique {
		switch {
		case raw.Amount == nil:
			stats.reject(missingField(raw.Line, sch.amountName()))
		case raw.Description == nil:
			stats.reject(missingField(raw.Line, sch.descriptionName()))
		default:
			complete = append(complete, raw)
		}
	}

	type coerced struct {
		raw    models.RawRecord
		amount decimal.Decimal
	}
	withAmount := make([]coerced, 0, len(complete))
	for _, raw := range complete {
		amount, err := models.ParseDecimalFromString(*raw.Amount)
		if err != nil {
			stats.reject(Rejection{
				Row:   raw.Line,
				Stage: StageAmount,
				Field: sch.amount,
				Value: *raw.Amount,
				Err:   errors.CoercionError(errors.CodeInvalidAmount, sch.amount, raw.Line, *raw.Amount, err),
			})
			continue
		}
		withAmount = append(withAmount, coerced{raw: raw, amount: amount})
	}

	records := make([]models.TransactionRecord, 0, len(withAmount))
	canonical := make(map[string]struct{}, len(withAmount))
	for _, c := range withAmount {
		var date time.Time
		var dateErr error
		if c.raw.Date == nil {
			dateErr = fmt.Errorf("date is empty")
		} else {
			date, dateErr = models.ParseTimeWithFormats(*c.raw.Date)
		}
		if dateErr != nil {
			value := ""
			if c.raw.Date != nil {
				value = *c.raw.Date
			}
			stats.reject(Rejection{
				Row:   c.raw.Line,
				Stage: StageDate,
				Field: sch.date,
				Value: value,
				Err:   errors.CoercionError(errors.CodeInvalidDate, sch.date, c.raw.Line, value, dateErr),
			})
			continue
		}

		record := n.buildRecord(c.raw, c.amount, date)

		// distinct raw spellings ("10.00" and "10") can collapse to one record
		key := canonicalKey(&record)
		if _, dup := canonical[key]; dup {
			stats.reject(Rejection{
				Row:   c.raw.Line,
				Stage: StageDuplicate,
				Err: errors.New(errors.CategoryValidation, errors.CodeDuplicateRow,
					fmt.Sprintf("row %d duplicates an earlier row after normalization", c.raw.Line)).
					WithContext("line", c.raw.Line),
			})
			continue
		}
		canonical[key] = struct{}{}
		records = append(records, record)
	}
	stats.Accepted = len(records)

	fields := logger.Fields{
		"total":          stats.TotalRows,
		"accepted":       stats.Accepted,
		"duplicates":     stats.Duplicates,
		"missing_fields": stats.MissingFields,
		"invalid_amount": stats.InvalidAmount,
		"invalid_date":   stats.InvalidDate,
		"date_column":    stats.DateColumn,
	}
	if stats.Dropped() > 0 {
		n.logger.WithFields(fields).Warn("Rows dropped during normalization")
	} else {
		n.logger.WithFields(fields).Info("Batch normalized")
	}

	return records, stats, nil
}

func (n *Normalizer) resolveSchema(columns map[string]bool) (*schema, error) {
	pick := func(aliases []string) string {
		for _, alias := range aliases {
			if std := StandardizeColumn(alias); columns[std] {
				return std
			}
		}
		return ""
	}

	sch := &schema{
		id:          pick(n.config.IDAliases),
		user:        pick(n.config.UserAliases),
		amount:      pick(n.config.AmountAliases),
		description: pick(n.config.DescriptionAliases),
		date:        pick(n.config.DateAliases),
		merchant:    pick(n.config.MerchantAliases),
		payment:     pick(n.config.PaymentMethodAliases),
		category:    pick(n.config.CategoryAliases),
		recurring:   pick(n.config.RecurringAliases),
		loc:         pick(n.config.LocationAliases),
		tags:        pick(n.config.TagsAliases),
	}
	sch.mapped = map[string]bool{}
	for _, col := range []string{sch.id, sch.user, sch.amount, sch.description, sch.date,
		sch.merchant, sch.payment, sch.category, sch.recurring, sch.loc, sch.tags} {
		if col != "" {
			sch.mapped[col] = true
		}
	}
	if sch.date == "" {
		found := make([]string, 0, len(columns))
		for col := range columns {
			found = append(found, col)
		}
		return nil, errors.SchemaError(n.config.DateAliases, found)
	}
	return sch, nil
}

func (s *schema) amountName() string {
	if s.amount == "" {
		return "amount"
	}
	return s.amount
}

func (s *schema) descriptionName() string {
	if s.description == "" {
		return "description"
	}
	return s.description
}

func (s *schema) project(line int, row map[string]string) models.RawRecord {
	get := func(col string) *string {
		if col == "" {
			return nil
		}
		v, ok := row[col]
		if !ok || v == "" {
			return nil
		}
		return &v
	}

	return models.RawRecord{
		Line:          line,
		ID:            get(s.id),
		UserID:        get(s.user),
		Amount:        get(s.amount),
		Description:   get(s.description),
		Date:          get(s.date),
		Merchant:      get(s.merchant),
		PaymentMethod: get(s.payment),
		Category:      get(s.category),
		IsRecurring:   get(s.recurring),
		Location:      get(s.loc),
		Tags:          get(s.tags),
		RowDigest:     s.rowDigest(row),
	}
}

// rowDigest fingerprints the non-empty unmapped columns of a row. A digest
// rendered by a previous run is kept unchanged when nothing else is unmapped.
func (s *schema) rowDigest(row map[string]string) *string {
	var parts []string
	for col, v := range row {
		if s.mapped[col] || col == models.ColumnRowDigest || v == "" {
			continue
		}
		parts = append(parts, col+"="+v)
	}

	carried := row[models.ColumnRowDigest]
	if len(parts) == 0 {
		if carried == "" {
			return nil
		}
		return &carried
	}
	if carried != "" {
		parts = append(parts, models.ColumnRowDigest+"="+carried)
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	digest := hex.EncodeToString(sum[:8])
	return &digest
}

func (n *Normalizer) buildRecord(raw models.RawRecord, amount decimal.Decimal, date time.Time) models.TransactionRecord {
	description := *raw.Description
	dayOfWeek := (int(date.Weekday()) + 6) % 7

	record := models.TransactionRecord{
		ID:              deref(raw.ID),
		UserID:          n.config.DefaultUserID,
		Amount:          amount,
		Description:     description,
		TransactionDate: date,
		Location:        deref(raw.Location),
		RowDigest:       deref(raw.RowDigest),
		Month:           int(date.Month()),
		DayOfWeek:       dayOfWeek,
		IsWeekend:       dayOfWeek >= 5,
		AmountAbs:       amount.Abs(),
	}
	if raw.UserID != nil {
		record.UserID = *raw.UserID
	}
	if raw.Tags != nil {
		record.Tags = splitTags(*raw.Tags)
	}
	if raw.IsRecurring != nil {
		recurring, err := models.ParseBool(*raw.IsRecurring)
		if err != nil {
			n.logger.WithFields(logger.Fields{"line": raw.Line, "value": *raw.IsRecurring}).
				Debug("Unreadable recurring flag treated as false")
		}
		record.IsRecurring = recurring
	}

	record.CategoryName = n.classifier.Classify(description)
	record.Merchant = ExtractMerchant(description)
	record.PaymentMethod = DetectPaymentMethod(description)
	if n.config.PreferSuppliedFields {
		if raw.Category != nil {
			record.CategoryName = *raw.Category
		}
		if raw.Merchant != nil {
			record.Merchant = *raw.Merchant
		}
		if raw.PaymentMethod != nil {
			record.PaymentMethod = *raw.PaymentMethod
		}
	}

	return record
}

func canonicalKey(r *models.TransactionRecord) string {
	return strings.Join([]string{
		r.ID,
		r.UserID,
		r.CategoryName,
		r.Amount.String(),
		r.Description,
		r.TransactionDate.UTC().Format(time.RFC3339Nano),
		r.Merchant,
		r.PaymentMethod,
		strconv.FormatBool(r.IsRecurring),
		r.Location,
		strings.Join(r.Tags, ";"),
		r.RowDigest,
	}, "\x1f")
}

func missingField(line int, field string) Rejection {
	return Rejection{
		Row:   line,
		Stage: StageMissingField,
		Field: field,
		Err:   errors.ValidationError(errors.CodeMissingField, field, nil, nil).WithContext("line", line),
	}
}

// standardizeRows renames every column to its standardized form and renders
// values as trimmed strings. When two columns standardize to the same name the
// one that sorts first wins.
func standardizeRows(rows []models.Row) ([]map[string]string, map[string]bool) {
	columns := map[string]bool{}
	out := make([]map[string]string, len(rows))

	for i, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		std := make(map[string]string, len(row))
		for _, k := range keys {
			name := StandardizeColumn(k)
			if name == "" {
				continue
			}
			columns[name] = true
			if _, taken := std[name]; taken {
				continue
			}
			std[name] = stringify(row[k])
		}
		out[i] = std
	}
	return out, columns
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case decimal.Decimal:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []string:
		return strings.Join(val, ";")
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
