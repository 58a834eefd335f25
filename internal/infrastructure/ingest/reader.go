// Package ingest reads stacked (row key, column key, value) tables from
// delimited text into matrix records.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// ctxCheckEvery is how many lines are read between context checks.
const ctxCheckEvery = 4096

// Options selects the columns that hold the row key, column key and value.
type Options struct {
	RowField    string
	ColumnField string
	ValueField  string
	// Delimiter separates fields.  Zero means tab for *.tsv files and comma
	// otherwise.
	Delimiter rune
}

// OptionsFor returns the field names declared by table t.
func OptionsFor(t matrix.TableType) (Options, error) {
	meta, err := t.Meta()
	if err != nil {
		return Options{}, err
	}
	if meta.IsSummary() {
		return Options{}, errors.Newf(errors.ErrCodeUnknownTableType,
			"table %s is a summary table and cannot be built from records", t)
	}
	return Options{RowField: meta.RowField, ColumnField: meta.ColumnField, ValueField: meta.ValueField}, nil
}

// Result is the outcome of reading one table.
type Result struct {
	Records []matrix.StackedRecord
	// Lines counts data lines, excluding the header.
	Lines int
	// BlankKeys counts lines skipped because a key was empty.
	BlankKeys int
	// BlankValues counts lines skipped because the value was empty.
	BlankValues int
}

// Reader parses stacked tables.
type Reader struct {
	opts   Options
	logger logging.Logger
}

// NewReader returns a Reader for opts.
func NewReader(opts Options, logger logging.Logger) *Reader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Reader{opts: opts, logger: logger.Named("ingest")}
}

// ReadFile reads path.  Files ending in .gz are decompressed; the delimiter
// is sniffed from the name without that suffix.
func (r *Reader) ReadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeNotFound, "input table does not exist").WithDetail(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "open input table").WithDetail(path)
	}
	defer f.Close()

	var src io.Reader = f
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "input is not valid gzip").WithDetail(path)
		}
		defer gz.Close()
		src = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	delim := r.opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name)
	}

	res, err := r.read(ctx, src, delim)
	if err != nil {
		return nil, err
	}
	r.logger.Info("input table read",
		logging.String(logging.FieldPath, filepath.Base(path)),
		logging.Int("lines", res.Lines),
		logging.Int("records", len(res.Records)),
		logging.Int("blank_keys", res.BlankKeys),
		logging.Int("blank_values", res.BlankValues))
	return res, nil
}

// Read parses src using the configured delimiter, or comma if none is set.
func (r *Reader) Read(ctx context.Context, src io.Reader) (*Result, error) {
	delim := r.opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	return r.read(ctx, src, delim)
}

func (r *Reader) read(ctx context.Context, src io.Reader, delim rune) (*Result, error) {
	cr := csv.NewReader(bufio.NewReader(src))
	cr.Comma = delim
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	if delim == '\t' {
		cr.LazyQuotes = true
	}

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeBadRequest, "input table is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "read header")
	}
	rowIdx, colIdx, valIdx, err := r.columns(header)
	if err != nil {
		return nil, err
	}
	width := max3(rowIdx, colIdx, valIdx) + 1

	res := &Result{}
	for line := 2; ; line++ {
		if res.Lines%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed input line").
				WithDetail(fmt.Sprintf("line %d", line))
		}
		res.Lines++
		if len(rec) < width {
			return nil, errors.Newf(errors.ErrCodeBadRequest, "line %d has %d fields, need %d", line, len(rec), width)
		}

		rowKey := strings.TrimSpace(rec[rowIdx])
		colKey := strings.TrimSpace(rec[colIdx])
		if rowKey == "" || colKey == "" {
			res.BlankKeys++
			continue
		}
		if !utf8.ValidString(rowKey) || !utf8.ValidString(colKey) {
			return nil, errors.InvalidParam(fmt.Sprintf("line %d: key is not valid UTF-8", line))
		}
		raw := strings.TrimSpace(rec[valIdx])
		if raw == "" {
			res.BlankValues++
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.InvalidParam(fmt.Sprintf("line %d: %s value %q is not a number", line, r.opts.ValueField, raw))
		}
		res.Records = append(res.Records, matrix.StackedRecord{RowKey: rowKey, ColKey: colKey, Value: v})
	}
	return res, nil
}

// columns locates the configured fields in header.
func (r *Reader) columns(header []string) (int, int, int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	var idx [3]int
	for i, field := range []string{r.opts.RowField, r.opts.ColumnField, r.opts.ValueField} {
		p, ok := pos[field]
		if !ok {
			return 0, 0, 0, errors.InvalidParam(fmt.Sprintf("header has no %q column", field)).
				WithDetail(strings.Join(header, ","))
		}
		idx[i] = p
	}
	return idx[0], idx[1], idx[2], nil
}

func sniffDelimiter(name string) rune {
	if strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".tab") {
		return '\t'
	}
	return ','
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
