package sheet

import (
	"context"
	"encoding/csv"
	"os"
	"strings"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/model"
)

// Pair couples an internal field name with the engine's column name.
type Pair struct {
	Internal string
	External string
}

// Field is one column of a Descriptor.
type Field struct {
	Internal string
	External string
	Conv     Converter
}

// Descriptor maps one engine sheet onto one record kind. Fields are kept in
// the engine's column order.
type Descriptor struct {
	Sheet  string
	Kind   model.Kind
	Fields []Field
}

// New pairs the columns with their converters positionally.
func New(sheetName string, kind model.Kind, pairs []Pair, convs ...Converter) (Descriptor, error) {
	if len(pairs) != len(convs) {
		return Descriptor{}, exception.Newf(exception.KindConfiguration, "sheet",
			"%s declares %d columns but %d converters", sheetName, len(pairs), len(convs))
	}
	d := Descriptor{Sheet: sheetName, Kind: kind, Fields: make([]Field, len(pairs))}
	for i, p := range pairs {
		if convs[i] == nil {
			return Descriptor{}, exception.Newf(exception.KindConfiguration, "sheet",
				"%s column %s has no converter", sheetName, p.External)
		}
		d.Fields[i] = Field{Internal: p.Internal, External: p.External, Conv: convs[i]}
	}
	return d, nil
}

// MustNew is New for static tables.
func MustNew(sheetName string, kind model.Kind, pairs []Pair, convs ...Converter) Descriptor {
	d, err := New(sheetName, kind, pairs, convs...)
	if err != nil {
		panic(err)
	}
	return d
}

// Validate checks the internal field names against the record shape
// declared in model.Fields, including their order.
func (d Descriptor) Validate() error {
	shape, ok := model.Fields[d.Kind]
	if !ok {
		return exception.Newf(exception.KindConfiguration, "sheet", "%s maps unknown kind %s", d.Sheet, d.Kind)
	}
	if len(shape) != len(d.Fields) {
		return exception.Newf(exception.KindConfiguration, "sheet",
			"%s has %d fields, %s declares %d", d.Sheet, len(d.Fields), d.Kind, len(shape))
	}
	for i, f := range d.Fields {
		if f.Internal != shape[i] {
			return exception.Newf(exception.KindConfiguration, "sheet",
				"%s field %d is %q, %s expects %q", d.Sheet, i, f.Internal, d.Kind, shape[i])
		}
	}
	return nil
}

// Header returns the engine column names in order.
func (d Descriptor) Header() []string {
	h := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		h[i] = f.External
	}
	return h
}

// HasName reports whether records of this sheet carry a name.
func (d Descriptor) HasName() bool {
	for _, f := range d.Fields {
		if f.Internal == "name" {
			return true
		}
	}
	return false
}

// Decode turns one CSV row into field values. Reference columns are
// resolved within projectID.
func (d Descriptor) Decode(ctx context.Context, row map[string]string, lookup Lookup, projectID int64) (map[string]any, error) {
	out := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		cell, ok := row[f.External]
		if !ok {
			return nil, exception.Newf(exception.KindProtocol, "sheet", "%s has no column %s", d.Sheet, f.External)
		}
		v, err := forward(ctx, f.Conv, strings.TrimSpace(cell), lookup, projectID)
		if err != nil {
			if exception.KindOf(err) != exception.KindInternal {
				return nil, err
			}
			return nil, exception.Newf(exception.KindProtocol, "sheet", "%s.%s: cannot decode %q", d.Sheet, f.External, cell, err)
		}
		out[f.Internal] = v
	}
	return out, nil
}

// Encode turns field values into one CSV row in column order. Missing
// fields are written blank and keys the descriptor does not declare are
// ignored.
func (d Descriptor) Encode(ctx context.Context, values map[string]any, lookup Lookup) ([]string, error) {
	row := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		cell, err := reverse(ctx, f.Conv, values[f.Internal], lookup)
		if err != nil {
			if exception.KindOf(err) != exception.KindInternal {
				return nil, err
			}
			return nil, exception.Newf(exception.KindValidation, "sheet", "%s.%s: cannot encode", d.Sheet, f.Internal, err)
		}
		row = append(row, cell)
	}
	return row, nil
}

// WriteCSV writes the header and rows to path, replacing any existing file.
func (d Descriptor) WriteCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return exception.New(exception.KindProtocol, "sheet", "cannot create "+path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(d.Header()); err != nil {
		f.Close()
		return exception.New(exception.KindProtocol, "sheet", "cannot write "+path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return exception.New(exception.KindProtocol, "sheet", "cannot write "+path, err)
	}
	return f.Close()
}
