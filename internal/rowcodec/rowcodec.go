// Package rowcodec maps between *sql.Rows and Go structs tagged with
// `db:"column_name"`. The tag walk happens once per type via a small
// cache, not per query.
package rowcodec

import (
	"database/sql"
	"fmt"
	"reflect"
	"sync"
)

type fieldInfo struct {
	index  []int
	column string
}

var cache sync.Map // reflect.Type -> []fieldInfo

func fieldsOf(t reflect.Type) []fieldInfo {
	if v, ok := cache.Load(t); ok {
		return v.([]fieldInfo)
	}
	var fields []fieldInfo
	walk(t, nil, &fields)
	cache.Store(t, fields)
	return fields
}

func walk(t reflect.Type, prefix []int, out *[]fieldInfo) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		idx := append(append([]int{}, prefix...), i)
		*out = append(*out, fieldInfo{index: idx, column: tag})
	}
}

// Columns returns the db-tagged column names of T, in struct field order.
func Columns[T any]() []string {
	var zero T
	fields := fieldsOf(reflect.TypeOf(zero))
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.column
	}
	return cols
}

// ScanRow decodes the current row of rows into a freshly allocated T,
// matching columns by rows.Columns() against the db tag of each field.
// Optional fields must be declared as pointer types; ScanRow leaves them
// nil for SQL NULL.
func ScanRow[T any](rows *sql.Rows) (T, error) {
	var out T
	cols, err := rows.Columns()
	if err != nil {
		return out, err
	}

	fields := fieldsOf(reflect.TypeOf(out))
	byCol := make(map[string]fieldInfo, len(fields))
	for _, f := range fields {
		byCol[f.column] = f
	}

	v := reflect.ValueOf(&out).Elem()
	dests := make([]any, len(cols))
	for i, c := range cols {
		f, ok := byCol[c]
		if !ok {
			return out, fmt.Errorf("rowcodec: no field tagged db:%q on %T", c, out)
		}
		dests[i] = v.FieldByIndex(f.index).Addr().Interface()
	}

	if err := rows.Scan(dests...); err != nil {
		return out, err
	}
	return out, nil
}

// ScanAll drains rows into a slice of T using ScanRow, closing rows before
// returning.
func ScanAll[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		row, err := ScanRow[T](rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Values returns the db-tagged field values of x, in struct field order,
// suitable as positional arguments to an INSERT built over Columns[T]().
func Values(x any) []any {
	v := reflect.ValueOf(x)
	fields := fieldsOf(v.Type())
	vals := make([]any, len(fields))
	for i, f := range fields {
		vals[i] = v.FieldByIndex(f.index).Interface()
	}
	return vals
}
