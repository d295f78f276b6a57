package normalize

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/revguard/reconciler/internal/config"
	"github.com/revguard/reconciler/internal/currency"
	"github.com/revguard/reconciler/internal/domain"
)

// RawRow is one parsed input row: header-keyed cell values plus a
// reference to where it came from.
type RawRow struct {
	Ref    domain.RowRef
	Fields map[string]string
}

// Normalizer canonicalizes raw rows into typed records: consistent
// currency, consistent units, explicit period boundaries. It is a pure
// transform; bad rows come back as RowErrors, never as partial records.
type Normalizer struct {
	cfg  *config.Config
	conv *currency.Converter
}

// New creates a Normalizer for the given run configuration.
func New(cfg *config.Config) *Normalizer {
	return &Normalizer{cfg: cfg, conv: currency.NewConverter(cfg.Currency)}
}

// Normalize canonicalizes all rows of one source dataset. Rows that fail
// are excluded and reported; valid rows are unaffected by their
// neighbors.
func (n *Normalizer) Normalize(source domain.SourceType, rows []RawRow) ([]domain.NormalizedRecord, []domain.RowError) {
	var (
		records []domain.NormalizedRecord
		errs    []domain.RowError
	)
	for i := range rows {
		rec, err := n.normalizeRow(source, &rows[i])
		if err != nil {
			errs = append(errs, rowError(err))
			continue
		}
		records = append(records, rec)
	}
	if len(errs) > 0 {
		zap.L().Warn("normalize: rows excluded",
			zap.String("source", string(source)),
			zap.Int("valid", len(records)),
			zap.Int("excluded", len(errs)),
		)
	}
	return records, errs
}

func (n *Normalizer) normalizeRow(source domain.SourceType, row *RawRow) (domain.NormalizedRecord, error) {
	switch source {
	case domain.SourceBilling:
		rec, err := n.billing(row)
		return domain.NormalizedRecord{Source: source, Billing: rec}, err
	case domain.SourceContract:
		rec, err := n.contract(row)
		return domain.NormalizedRecord{Source: source, Contract: rec}, err
	case domain.SourceUsage:
		rec, err := n.usage(row)
		return domain.NormalizedRecord{Source: source, Usage: rec}, err
	case domain.SourceService:
		rec, err := n.service(row)
		return domain.NormalizedRecord{Source: source, Service: rec}, err
	}
	return domain.NormalizedRecord{}, &SchemaError{Ref: row.Ref, Field: "source_type"}
}

func (n *Normalizer) billing(row *RawRow) (*domain.BillingRecord, error) {
	cols := n.cfg.Columns.Billing
	customer, err := requireField(row, cols, "customer_id")
	if err != nil {
		return nil, err
	}
	service, err := requireField(row, cols, "service_id")
	if err != nil {
		return nil, err
	}
	start, end, err := period(row, cols)
	if err != nil {
		return nil, err
	}
	rate, err := requireFloat(row, cols, "billed_rate")
	if err != nil {
		return nil, err
	}
	amount, err := requireFloat(row, cols, "billed_amount")
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, &ValidationError{Ref: row.Ref, Field: "billed_amount", Msg: "negative amount"}
	}
	if rate < 0 {
		return nil, &ValidationError{Ref: row.Ref, Field: "billed_rate", Msg: "negative rate"}
	}

	// Amounts arrive in a declared currency; canonicalize before any
	// comparison happens downstream.
	if code := field(row, cols, "currency"); code != "" && code != n.conv.Canonical() {
		convAmount, err := n.conv.ToCanonical(amount, code)
		if err != nil {
			return nil, &UnitError{Ref: row.Ref, Unit: code}
		}
		convRate, err := n.conv.ToCanonical(rate, code)
		if err != nil {
			return nil, &UnitError{Ref: row.Ref, Unit: code}
		}
		amount, rate = convAmount, convRate
	}

	return &domain.BillingRecord{
		InvoiceID:    field(row, cols, "invoice_id"),
		CustomerID:   customer,
		ServiceID:    service,
		PeriodStart:  start,
		PeriodEnd:    end,
		BilledRate:   rate,
		BilledAmount: amount,
		ChargeCode:   field(row, cols, "charge_code"),
		Ref:          row.Ref,
	}, nil
}

func (n *Normalizer) contract(row *RawRow) (*domain.ContractRecord, error) {
	cols := n.cfg.Columns.Contract
	customer, err := requireField(row, cols, "customer_id")
	if err != nil {
		return nil, err
	}
	service, err := requireField(row, cols, "service_id")
	if err != nil {
		return nil, err
	}
	start, end, err := period(row, cols)
	if err != nil {
		return nil, err
	}
	rate, err := requireFloat(row, cols, "agreed_rate")
	if err != nil {
		return nil, err
	}
	if rate < 0 {
		return nil, &ValidationError{Ref: row.Ref, Field: "agreed_rate", Msg: "negative rate"}
	}

	return &domain.ContractRecord{
		AgreedTermsID: field(row, cols, "agreed_terms_id"),
		CustomerID:    customer,
		ServiceID:     service,
		PeriodStart:   start,
		PeriodEnd:     end,
		AgreedRate:    rate,
		Ref:           row.Ref,
	}, nil
}

func (n *Normalizer) usage(row *RawRow) (*domain.UsageRecord, error) {
	cols := n.cfg.Columns.Usage
	customer, err := requireField(row, cols, "customer_id")
	if err != nil {
		return nil, err
	}
	service, err := requireField(row, cols, "service_id")
	if err != nil {
		return nil, err
	}
	start, end, err := period(row, cols)
	if err != nil {
		return nil, err
	}
	qty, err := requireFloat(row, cols, "usage_quantity")
	if err != nil {
		return nil, err
	}
	if qty < 0 {
		return nil, &ValidationError{Ref: row.Ref, Field: "usage_quantity", Msg: "negative quantity"}
	}

	unit := field(row, cols, "unit")
	if unit == "" {
		unit = "unitless"
	}
	mapping, ok := n.cfg.Units[unit]
	if !ok {
		return nil, &UnitError{Ref: row.Ref, Unit: unit}
	}
	qty *= mapping.Factor

	return &domain.UsageRecord{
		CustomerID:    customer,
		ServiceID:     service,
		PeriodStart:   start,
		PeriodEnd:     end,
		UsageQuantity: qty,
		Unit:          mapping.Canonical,
		Ref:           row.Ref,
	}, nil
}

func (n *Normalizer) service(row *RawRow) (*domain.ServiceRecord, error) {
	cols := n.cfg.Columns.Service
	customer, err := requireField(row, cols, "customer_id")
	if err != nil {
		return nil, err
	}
	service, err := requireField(row, cols, "service_id")
	if err != nil {
		return nil, err
	}
	start, end, err := period(row, cols)
	if err != nil {
		return nil, err
	}

	status := domain.ServiceStatus(strings.ToLower(field(row, cols, "service_status")))
	if status == "" {
		status = domain.ServiceActive
	}

	var activation time.Time
	if s := field(row, cols, "activation_date"); s != "" {
		activation, err = parseDate(row.Ref, "activation_date", s)
		if err != nil {
			return nil, err
		}
	}

	return &domain.ServiceRecord{
		CustomerID:     customer,
		ServiceID:      service,
		PeriodStart:    start,
		PeriodEnd:      end,
		Status:         status,
		ActivationDate: activation,
		Ref:            row.Ref,
	}, nil
}

// --- field helpers ---

// field resolves a canonical field name through the column mapping and
// returns its trimmed value, or "" when absent.
func field(row *RawRow, cols map[string]string, name string) string {
	col := name
	if mapped, ok := cols[name]; ok && mapped != "" {
		col = mapped
	}
	return strings.TrimSpace(row.Fields[col])
}

func requireField(row *RawRow, cols map[string]string, name string) (string, error) {
	v := field(row, cols, name)
	if v == "" {
		return "", &SchemaError{Ref: row.Ref, Field: name}
	}
	return v, nil
}

func requireFloat(row *RawRow, cols map[string]string, name string) (float64, error) {
	s, err := requireField(row, cols, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ValidationError{Ref: row.Ref, Field: name, Msg: "not numeric: " + s}
	}
	return v, nil
}

func period(row *RawRow, cols map[string]string) (time.Time, time.Time, error) {
	startStr, err := requireField(row, cols, "period_start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endStr, err := requireField(row, cols, "period_end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := parseDate(row.Ref, "period_start", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(row.Ref, "period_end", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, &ValidationError{Ref: row.Ref, Field: "period_start", Msg: "period_start must precede period_end"}
	}
	return start, end, nil
}

func parseDate(ref domain.RowRef, fieldName, s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, &ValidationError{Ref: ref, Field: fieldName, Msg: "unparsable date: " + s}
		}
	}
	return t.UTC(), nil
}
