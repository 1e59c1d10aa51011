package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	core "landscapesim/pkg/batch/job/core"
	exception "landscapesim/pkg/batch/util/exception"
)

// Row is one CSV record keyed by header column name.
type Row map[string]string

// CSVItemReader reads a headed CSV file row by row. Before, when set, is
// called on Open to produce the file, and the file is removed on Close unless
// Keep is set.
type CSVItemReader struct {
	Path   string
	Before func(ctx context.Context, path string) error
	Keep   bool

	file   *os.File
	csv    *csv.Reader
	header []string
}

var _ core.ItemReader[Row] = (*CSVItemReader)(nil)

// NewCSVItemReader creates a reader for path.
func NewCSVItemReader(path string, before func(ctx context.Context, path string) error, keep bool) *CSVItemReader {
	return &CSVItemReader{Path: path, Before: before, Keep: keep}
}

// Open produces the file if needed and reads the header. When the header
// cannot be read the file is closed and removed before Open returns.
func (r *CSVItemReader) Open(ctx context.Context, ec core.ExecutionContext) error {
	if r.Before != nil {
		if err := r.Before(ctx, r.Path); err != nil {
			return err
		}
	}
	f, err := os.Open(r.Path)
	if err != nil {
		return exception.New(exception.KindProtocol, "csv_reader", "cannot open "+r.Path, err)
	}
	r.file = f
	r.csv = csv.NewReader(f)
	r.csv.FieldsPerRecord = -1
	header, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		r.header = nil
		return nil
	}
	if err != nil {
		_ = r.Close(ctx)
		return exception.New(exception.KindProtocol, "csv_reader", "cannot read header of "+r.Path, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	r.header = header
	if ec != nil {
		ec.Put("csv.file", r.Path)
		ec.Put("csv.columns", len(header))
	}
	return nil
}

// Read returns the next row or io.EOF.
func (r *CSVItemReader) Read(_ context.Context) (Row, error) {
	if r.header == nil {
		return nil, io.EOF
	}
	rec, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, exception.New(exception.KindProtocol, "csv_reader", "malformed row in "+r.Path, err)
	}
	if len(rec) > len(r.header) {
		return nil, exception.Newf(exception.KindProtocol, "csv_reader", "row has %d fields, header has %d in %s", len(rec), len(r.header), r.Path)
	}
	row := make(Row, len(r.header))
	for i, h := range r.header {
		if i < len(rec) {
			row[h] = rec[i]
		} else {
			row[h] = ""
		}
	}
	return row, nil
}

// Close releases the file and deletes it unless Keep is set.
func (r *CSVItemReader) Close(_ context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if !r.Keep {
		if rmErr := os.Remove(r.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	return err
}
