package record

import "fmt"

// StructuralError is fatal: a data row's field count does not match the
// header. The whole run aborts before any classification happens, because a
// shape mismatch means the file itself is corrupt, not one row's data.
type StructuralError struct {
	Line     int // 1-based line number of the offending row
	Expected int
	Got      int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("csv structure error at line %d: expected %d columns, got %d", e.Line, e.Expected, e.Got)
}

// FieldConversionWarning is recoverable: one field's value could not be
// interpreted numerically. The field is dropped and the record continues.
type FieldConversionWarning struct {
	Line   int
	Column string
	Raw    string
}

func (w *FieldConversionWarning) Error() string {
	return fmt.Sprintf("line %d: could not convert %s=%q, dropping field", w.Line, w.Column, w.Raw)
}

// UnknownColumnWarning is recoverable: a header column is not declared for
// the row's target table. The field is rejected, never passed through.
type UnknownColumnWarning struct {
	Line   int
	Table  string
	Column string
}

func (w *UnknownColumnWarning) Error() string {
	return fmt.Sprintf("line %d: column %q not declared for table %s, dropping field", w.Line, w.Column, w.Table)
}

// UnknownTableWarning is recoverable: the row names a table that is not
// declared in the schema. The whole row is excluded.
type UnknownTableWarning struct {
	Line  int
	Table string
}

func (w *UnknownTableWarning) Error() string {
	return fmt.Sprintf("line %d: skipping row with invalid table: %s", w.Line, w.Table)
}
