// Package psvtag decodes parsed PSV rows into typed struct slices using
// `psv:"ColumnName"` struct tags, the way the teacher corpus binds tagged
// struct fields against decoded catalog tables.
package psvtag

import (
	"fmt"
	"reflect"
	"strconv"

	"keg/ngdp"
	"keg/psv"
)

// Unmarshal decodes every row of doc into a freshly allocated element of
// out's slice type. out must be a non-nil pointer to a slice of struct
// (or pointer-to-struct) values.
func Unmarshal(doc *psv.Document, out any) error {
	const op = "psvtag.Unmarshal"

	ptr := reflect.ValueOf(out)
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() || ptr.Elem().Kind() != reflect.Slice {
		return ngdp.New(ngdp.Malformed, op, fmt.Errorf("out must be a non-nil pointer to a slice, got %T", out))
	}
	sliceVal := ptr.Elem()
	elemType := sliceVal.Type().Elem()

	elemIsPtr := elemType.Kind() == reflect.Pointer
	structType := elemType
	if elemIsPtr {
		structType = elemType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return ngdp.New(ngdp.Malformed, op, fmt.Errorf("element type must be struct or *struct, got %s", elemType))
	}

	fields := fieldsOf(structType)

	result := reflect.MakeSlice(sliceVal.Type(), 0, len(doc.Rows))
	for i, row := range doc.Rows {
		structVal := reflect.New(structType).Elem()
		for _, f := range fields {
			raw, ok := row[f.column]
			if !ok {
				continue
			}
			if err := setField(structVal.FieldByIndex(f.index), raw); err != nil {
				return ngdp.New(ngdp.Malformed, op, fmt.Errorf("row %d, column %q: %w", i, f.column, err))
			}
		}
		if elemIsPtr {
			p := reflect.New(structType)
			p.Elem().Set(structVal)
			result = reflect.Append(result, p)
		} else {
			result = reflect.Append(result, structVal)
		}
	}
	sliceVal.Set(result)
	return nil
}

type taggedField struct {
	column string
	index  []int
}

func fieldsOf(t reflect.Type) []taggedField {
	fields := make([]taggedField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		column := sf.Tag.Get("psv")
		if column == "" {
			column = sf.Name
		}
		if column == "-" {
			continue
		}
		fields = append(fields, taggedField{column: column, index: sf.Index})
	}
	return fields
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if raw == "" {
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if raw == "" {
			return nil
		}
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	default:
		if tu, ok := field.Addr().Interface().(interface{ UnmarshalText([]byte) error }); ok {
			return tu.UnmarshalText([]byte(raw))
		}
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
