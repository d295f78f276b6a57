package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/revguard/reconciler/internal/domain"
	"github.com/revguard/reconciler/internal/normalize"
)

// columnAliases maps well-known source column names onto the canonical
// field names the normalizer expects. Anything not listed passes through
// unchanged; per-deployment mappings go in the columns config instead.
var columnAliases = map[string]string{
	"service_type":   "service_id",
	"total_charge":   "billed_amount",
	"contract_id":    "agreed_terms_id",
	"recorded_usage": "usage_quantity",
	"status":         "service_status",
	"start_date":     "period_start",
	"end_date":       "period_end",
}

// ParseCSV parses one CSV dataset (billing or service provisioning) into
// raw rows for the normalizer. Values are not validated here; the
// normalizer owns the error taxonomy and reports bad rows individually.
//
// Rows carrying a single "date" column instead of explicit period
// boundaries are assigned the calendar month of that date, which is the
// billing period convention of the upstream invoicing system.
func ParseCSV(data []byte, source domain.SourceType, dataset string) ([]normalize.RawRow, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		cols[i] = name
	}

	var rows []normalize.RawRow
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		fields := make(map[string]string, len(cols))
		for i, v := range row {
			if i < len(cols) {
				fields[cols[i]] = strings.TrimSpace(v)
			}
		}
		expandDatePeriod(fields)

		rows = append(rows, normalize.RawRow{
			Ref:    domain.RowRef{Source: source, Dataset: dataset, Line: lineNum},
			Fields: fields,
		})
	}
	return rows, nil
}

// expandDatePeriod fills period_start/period_end from a bare "date"
// column: the period is the calendar month containing the date. Rows
// with explicit boundaries are left alone.
func expandDatePeriod(fields map[string]string) {
	if fields["period_start"] != "" && fields["period_end"] != "" {
		return
	}
	dateStr := fields["date"]
	if dateStr == "" {
		return
	}
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return // normalizer reports the missing period
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	fields["period_start"] = start.Format("2006-01-02")
	fields["period_end"] = start.AddDate(0, 1, 0).Format("2006-01-02")
}
