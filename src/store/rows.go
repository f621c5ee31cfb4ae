// src/store/rows.go
package store

import "database/sql"

// RowShape discriminates the two storage shapes rows may arrive in. Old
// journal files (pre max_shares) still surface after a legacy restore; the
// tag is assigned once at the read boundary so nothing downstream re-probes
// field presence.
type RowShape int

const (
	ShapeCurrent RowShape = iota
	ShapeLegacy
)

// Row is one storage row read generically: raw column values keyed by column
// name, plus its classified shape.
type Row struct {
	Shape  RowShape
	Values map[string]any
}

// Has reports whether the row carries the named column with a non-NULL value.
func (r Row) Has(column string) bool {
	v, ok := r.Values[column]
	return ok && v != nil
}

// ReadRows drains a *sql.Rows into tagged generic rows. The caller keeps
// ownership of rows and must still check rows.Err via the returned error.
func ReadRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		values := make(map[string]any, len(cols))
		for i, c := range cols {
			values[c] = raw[i]
		}
		out = append(out, Row{Shape: classifyShape(values), Values: values})
	}
	return out, rows.Err()
}

// classifyShape tags a row by the presence of its distinguishing column. The
// legacy position shape predates max_shares and carried the open quantity in
// a "shares" column.
func classifyShape(values map[string]any) RowShape {
	if _, ok := values["max_shares"]; ok {
		return ShapeCurrent
	}
	if _, ok := values["shares"]; ok {
		return ShapeLegacy
	}
	return ShapeCurrent
}
