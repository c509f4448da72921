package postgres

import (
	"reflect"
	"sync"
)

// fieldInfo is a struct field carrying a db tag.
type fieldInfo struct {
	index []int
	dbTag string
}

// typeCache holds []fieldInfo per reflect.Type.
var typeCache sync.Map

// dbFields returns the tagged fields of t, following embedded structs.
// Reflection runs once per type.
func dbFields(t reflect.Type) []fieldInfo {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.([]fieldInfo)
	}

	var fields []fieldInfo
	if t.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(t) {
			if f.Anonymous {
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			fields = append(fields, fieldInfo{index: f.Index, dbTag: tag})
		}
	}

	typeCache.Store(t, fields)
	return fields
}

// ExtractDBColumns returns the column names of T's db tags, in field order.
//
//	columns := ExtractDBColumns[entity.DocumentLine]()
//	// ["id", "document_id", "line_no", "item_id", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	fields := dbFields(reflect.TypeOf(zero))
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.dbTag
	}
	return cols
}

// StructToMap converts a struct to a column map using db tags.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := dbFields(rv.Type())
	res := make(map[string]any, len(fields))
	for _, f := range fields {
		res[f.dbTag] = rv.FieldByIndex(f.index).Interface()
	}
	return res
}

// RowValues returns v's values in columns order, ready for CopyFromSlice.
// Unknown columns yield nil.
func RowValues(v any, columns []string) []any {
	m := StructToMap(v)
	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = m[col]
	}
	return row
}

// Pick keeps only the listed columns of m.
func Pick(m map[string]any, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, col := range columns {
		if v, ok := m[col]; ok {
			out[col] = v
		}
	}
	return out
}
