package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/revguard/reconciler/internal/domain"
	"github.com/revguard/reconciler/internal/normalize"
)

// ParseJSON parses one JSON dataset (contracts or usage logs): an array
// of flat objects. Object keys go through the same alias table as CSV
// headers; numbers keep their source formatting via json.Number so a
// rerun over the same file normalizes identically.
func ParseJSON(data []byte, source domain.SourceType, dataset string) ([]normalize.RawRow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var objects []map[string]any
	if err := dec.Decode(&objects); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}

	rows := make([]normalize.RawRow, 0, len(objects))
	for i, obj := range objects {
		fields := make(map[string]string, len(obj))
		for k, v := range obj {
			name := strings.ToLower(strings.TrimSpace(k))
			if alias, ok := columnAliases[name]; ok {
				name = alias
			}
			fields[name] = jsonValue(v)
		}
		expandDatePeriod(fields)

		rows = append(rows, normalize.RawRow{
			// Line is the 1-based element index; JSON arrays have no
			// physical line to point at.
			Ref:    domain.RowRef{Source: source, Dataset: dataset, Line: i + 1},
			Fields: fields,
		})
	}
	return rows, nil
}

func jsonValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
