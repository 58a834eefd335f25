package archive

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// SummaryArchive is a deserialized summary archive.
type SummaryArchive struct {
	Table    matrix.TableType
	Date     string
	ZipPath  string
	Summary  *matrix.Summary
	Metadata Metadata
}

// SummaryCodec reads and writes summary archives: a "label,count,total" CSV
// plus a metadata sidecar listing the labels and measure fields.
type SummaryCodec struct {
	codec *Codec
}

// NewSummaryCodec returns a SummaryCodec that logs through logger.
func NewSummaryCodec(logger logging.Logger) *SummaryCodec {
	return &SummaryCodec{codec: NewCodec(logger)}
}

func summaryMeta(t matrix.TableType) (matrix.TableMeta, error) {
	meta, err := t.Meta()
	if err != nil {
		return meta, err
	}
	if !meta.IsSummary() {
		return meta, errors.Newf(errors.ErrCodeUnknownTableType, "table %s is not a summary table", t)
	}
	return meta, nil
}

// Serialize writes s to <destDir>/<prefix>_<date>.zip and returns its path.
func (c *SummaryCodec) Serialize(s *matrix.Summary, t matrix.TableType, date, destDir string) (string, error) {
	meta, err := summaryMeta(t)
	if err != nil {
		return "", err
	}
	base, err := matrix.FileBase(t, date)
	if err != nil {
		return "", err
	}
	if err := checkLabels(meta.RowField, s.Labels().Labels()); err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "create archive directory")
	}

	csvPath := filepath.Join(destDir, base+meta.MatrixExtension)
	metaPath := filepath.Join(destDir, base+metadataExt)
	zipPath := filepath.Join(destDir, base+".zip")

	if err := removeFiles(csvPath, metaPath, zipPath); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "remove stale artifacts")
	}
	defer removeFiles(csvPath, metaPath)

	if err := writeSummaryCSV(csvPath, s.Rows()); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "write summary table").WithDetail(csvPath)
	}
	md := newMetadata(meta, date)
	md.Row = s.Labels().Labels()
	md.Nnz = s.Len()
	if err := writeMetadata(metaPath, md); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "write metadata").WithDetail(metaPath)
	}
	size, err := writeZip(zipPath, csvPath, metaPath)
	if err != nil {
		os.Remove(zipPath)
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "write zip").WithDetail(zipPath)
	}

	c.codec.logger.Info("summary archive written",
		logging.String(logging.FieldTable, string(t)),
		logging.String(logging.FieldDate, date),
		logging.String(logging.FieldPath, zipPath),
		logging.Int("labels", s.Len()),
		logging.Int64("bytes", size))
	return zipPath, nil
}

// Deserialize reads a summary archive; see Codec.Deserialize for overwrite.
func (c *SummaryCodec) Deserialize(zipPath, destDir string, overwrite bool) (*SummaryArchive, error) {
	t, date, err := matrix.ParseFileName(zipPath)
	if err != nil {
		return nil, err
	}
	meta, err := summaryMeta(t)
	if err != nil {
		return nil, err
	}
	base, err := matrix.FileBase(t, date)
	if err != nil {
		return nil, err
	}
	csvName := base + meta.MatrixExtension
	metaName := base + metadataExt
	if err := c.codec.extract(zipPath, destDir, overwrite, csvName, metaName); err != nil {
		return nil, err
	}

	md, err := readMetadata(filepath.Join(destDir, metaName), t)
	if err != nil {
		return nil, err
	}
	rows, err := readSummaryCSV(filepath.Join(destDir, csvName))
	if err != nil {
		return nil, err
	}
	if len(rows) != len(md.Row) {
		return nil, errors.Newf(errors.ErrCodeCorruptMetadata,
			"summary has %d rows, metadata lists %d labels", len(rows), len(md.Row))
	}
	for i, r := range rows {
		if r.Label != md.Row[i] {
			return nil, errors.Newf(errors.ErrCodeCorruptMetadata,
				"summary row %d is %q, metadata says %q", i, r.Label, md.Row[i])
		}
	}

	axis, err := t.SummaryAxis()
	if err != nil {
		return nil, err
	}
	s, err := matrix.NewSummaryFromRows(meta.RowField, axis, rows)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCorruptMetadata, "summary rows are inconsistent")
	}
	return &SummaryArchive{Table: t, Date: date, ZipPath: zipPath, Summary: s, Metadata: md}, nil
}

var summaryHeader = []string{"label", matrix.FieldCount, matrix.FieldTotal}

func writeSummaryCSV(path string, rows []matrix.SummaryRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	w.Write(summaryHeader)
	for _, r := range rows {
		w.Write([]string{
			r.Label,
			strconv.Itoa(r.Count),
			strconv.FormatFloat(r.Total, 'g', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readSummaryCSV(path string) ([]matrix.SummaryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArchiveSerialization, "open summary table").WithDetail(path)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = len(summaryHeader)
	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCorruptMetadata, "summary header unreadable")
	}
	for i, h := range summaryHeader {
		if header[i] != h {
			return nil, errors.Newf(errors.ErrCodeCorruptMetadata, "summary header %v, want %v", header, summaryHeader)
		}
	}

	var rows []matrix.SummaryRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCorruptMetadata, "summary row unreadable")
		}
		count, err1 := strconv.Atoi(rec[1])
		total, err2 := strconv.ParseFloat(rec[2], 64)
		if err1 != nil || err2 != nil || count < 0 || total < 0 {
			return nil, errors.New(errors.ErrCodeCorruptMetadata, "summary measures must be non-negative numbers").
				WithDetail(fmt.Sprintf("line %d: %v", line, rec))
		}
		rows = append(rows, matrix.SummaryRow{Label: rec[0], Count: count, Total: total})
	}
	return rows, nil
}
