package normalize

import (
	"fmt"

	"github.com/revguard/reconciler/internal/domain"
)

// SchemaError reports a required field absent from a raw row. Fatal for
// the row only; the run continues without it.
type SchemaError struct {
	Ref   domain.RowRef
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s %s line %d: missing required field %q", e.Ref.Source, e.Ref.Dataset, e.Ref.Line, e.Field)
}

// ValidationError reports a field value that violates a record invariant:
// a negative amount, a zero-length period, a non-numeric rate or quantity.
type ValidationError struct {
	Ref   domain.RowRef
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s line %d: field %q: %s", e.Ref.Source, e.Ref.Dataset, e.Ref.Line, e.Field, e.Msg)
}

// UnitError reports a unit or currency with no canonical mapping. Values
// are never silently coerced.
type UnitError struct {
	Ref  domain.RowRef
	Unit string
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s %s line %d: unmappable unit %q", e.Ref.Source, e.Ref.Dataset, e.Ref.Line, e.Unit)
}

// InsufficientDataError is the only run-fatal condition: zero valid
// normalized records across all four sources.
type InsufficientDataError struct {
	RowErrors int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("no valid records in any source (%d row errors)", e.RowErrors)
}

// rowError converts a normalization error into its reportable form.
func rowError(err error) domain.RowError {
	switch e := err.(type) {
	case *SchemaError:
		return domain.RowError{Ref: e.Ref, Kind: "schema", Message: e.Error()}
	case *ValidationError:
		return domain.RowError{Ref: e.Ref, Kind: "validation", Message: e.Error()}
	case *UnitError:
		return domain.RowError{Ref: e.Ref, Kind: "unit", Message: e.Error()}
	default:
		return domain.RowError{Kind: "validation", Message: err.Error()}
	}
}
