package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/revguard/reconciler/internal/domain"
)

// RecordRepo stores ingested datasets and their normalized records.
type RecordRepo struct {
	db *sql.DB
}

func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// DatasetExistsByHash checks whether a dataset with the given file hash
// has already been ingested (idempotency check).
func (r *RecordRepo) DatasetExistsByHash(hash string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM datasets WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

func (r *RecordRepo) InsertDataset(d *domain.Dataset) error {
	_, err := r.db.Exec(
		`INSERT INTO datasets
		(id, source, name, file_hash, record_count, row_errors, ingested_at)
		VALUES (?,?,?,?,?,?,?)`,
		d.ID, string(d.Source), d.Name, d.FileHash, d.RecordCount, d.RowErrors,
		d.IngestedAt.Format(time.RFC3339),
	)
	return err
}

func (r *RecordRepo) ListDatasets() ([]domain.Dataset, error) {
	rows, err := r.db.Query(
		"SELECT id, source, name, file_hash, record_count, row_errors, ingested_at FROM datasets ORDER BY ingested_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []domain.Dataset
	for rows.Next() {
		var d domain.Dataset
		var source, ingested string
		if err := rows.Scan(&d.ID, &source, &d.Name, &d.FileHash, &d.RecordCount, &d.RowErrors, &ingested); err != nil {
			return nil, err
		}
		d.Source = domain.SourceType(source)
		d.IngestedAt, _ = time.Parse(time.RFC3339, ingested)
		datasets = append(datasets, d)
	}
	return datasets, rows.Err()
}

// BulkInsertRecords stores one dataset's normalized records.
func (r *RecordRepo) BulkInsertRecords(datasetID string, records []domain.NormalizedRecord) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO records
		(dataset_id, source, customer_id, service_id, period_start, period_end,
		 rate, amount, quantity, unit, charge_code, invoice_id, terms_id,
		 status, activation_date, ref_line)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range records {
		rec := &records[i]
		customer, service := rec.Key()
		start, end := rec.Period()

		var (
			rate, amount, quantity      float64
			unit, chargeCode, invoiceID string
			termsID, status             string
			activation                  any
		)
		switch rec.Source {
		case domain.SourceBilling:
			rate = rec.Billing.BilledRate
			amount = rec.Billing.BilledAmount
			chargeCode = rec.Billing.ChargeCode
			invoiceID = rec.Billing.InvoiceID
		case domain.SourceContract:
			rate = rec.Contract.AgreedRate
			termsID = rec.Contract.AgreedTermsID
		case domain.SourceUsage:
			quantity = rec.Usage.UsageQuantity
			unit = rec.Usage.Unit
		case domain.SourceService:
			status = string(rec.Service.Status)
			if !rec.Service.ActivationDate.IsZero() {
				activation = rec.Service.ActivationDate.Format(time.RFC3339)
			}
		}

		_, err := stmt.Exec(
			datasetID, string(rec.Source), customer, service,
			start.Format(time.RFC3339), end.Format(time.RFC3339),
			rate, amount, quantity, unit, chargeCode, invoiceID, termsID,
			status, activation, rec.Ref().Line,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert record %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// CountRecords returns the total number of stored normalized records.
func (r *RecordRepo) CountRecords() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count)
	return count, err
}

// GetAllRecords loads every stored normalized record, rebuilt into the
// tagged-union form the engine consumes. Ordered by dataset and line for
// deterministic reruns.
func (r *RecordRepo) GetAllRecords() ([]domain.NormalizedRecord, error) {
	rows, err := r.db.Query(
		`SELECT rec.source, rec.customer_id, rec.service_id, rec.period_start, rec.period_end,
		        rec.rate, rec.amount, rec.quantity, rec.unit, rec.charge_code, rec.invoice_id,
		        rec.terms_id, rec.status, rec.activation_date, rec.ref_line, d.name
		 FROM records rec JOIN datasets d ON d.id = rec.dataset_id
		 ORDER BY d.ingested_at, d.id, rec.ref_line, rec.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.NormalizedRecord
	for rows.Next() {
		var (
			source, startStr, endStr    string
			rate, amount, quantity      float64
			unit, chargeCode, invoiceID string
			termsID, status, dataset    string
			activation                  sql.NullString
			refLine                     int
			customer, service           string
		)
		if err := rows.Scan(&source, &customer, &service, &startStr, &endStr,
			&rate, &amount, &quantity, &unit, &chargeCode, &invoiceID,
			&termsID, &status, &activation, &refLine, &dataset); err != nil {
			return nil, err
		}

		start, _ := time.Parse(time.RFC3339, startStr)
		end, _ := time.Parse(time.RFC3339, endStr)
		ref := domain.RowRef{Source: domain.SourceType(source), Dataset: dataset, Line: refLine}

		rec := domain.NormalizedRecord{Source: domain.SourceType(source)}
		switch rec.Source {
		case domain.SourceBilling:
			rec.Billing = &domain.BillingRecord{
				InvoiceID: invoiceID, CustomerID: customer, ServiceID: service,
				PeriodStart: start, PeriodEnd: end,
				BilledRate: rate, BilledAmount: amount, ChargeCode: chargeCode, Ref: ref,
			}
		case domain.SourceContract:
			rec.Contract = &domain.ContractRecord{
				AgreedTermsID: termsID, CustomerID: customer, ServiceID: service,
				PeriodStart: start, PeriodEnd: end, AgreedRate: rate, Ref: ref,
			}
		case domain.SourceUsage:
			rec.Usage = &domain.UsageRecord{
				CustomerID: customer, ServiceID: service,
				PeriodStart: start, PeriodEnd: end,
				UsageQuantity: quantity, Unit: unit, Ref: ref,
			}
		case domain.SourceService:
			svc := &domain.ServiceRecord{
				CustomerID: customer, ServiceID: service,
				PeriodStart: start, PeriodEnd: end,
				Status: domain.ServiceStatus(status), Ref: ref,
			}
			if activation.Valid {
				svc.ActivationDate, _ = time.Parse(time.RFC3339, activation.String)
			}
			rec.Service = svc
		default:
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
