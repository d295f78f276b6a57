package domain

import "time"

// Dataset is one ingested source file, tracked for idempotency: the same
// file hash is never ingested twice.
type Dataset struct {
	ID          string     `json:"id"`
	Source      SourceType `json:"source"`
	Name        string     `json:"name"`
	FileHash    string     `json:"file_hash"`
	RecordCount int        `json:"record_count"`
	RowErrors   int        `json:"row_errors"`
	IngestedAt  time.Time  `json:"ingested_at"`
}
