// Package archive persists matrices and summaries as zip archives named
// <prefix>_<YYYY_MM_DD>.zip.  A matrix archive holds a binary coordinate
// payload plus a JSON metadata sidecar carrying the axis labels; a summary
// archive holds a CSV of per-label measures plus the same kind of sidecar.
package archive

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

const metadataExt = ".json"

// Archive is a deserialized matrix archive.
type Archive struct {
	Table    matrix.TableType
	Date     string
	ZipPath  string
	Matrix   *matrix.SparseMatrix
	Metadata Metadata
}

// Codec reads and writes matrix archives.
type Codec struct {
	logger logging.Logger
}

// NewCodec returns a Codec that logs through logger.
func NewCodec(logger logging.Logger) *Codec {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Codec{logger: logger.Named("archive")}
}

// Serialize writes m to <destDir>/<prefix>_<date>.zip and returns its path.
// Stale artifacts with the same base name are removed first; the
// intermediate payload and metadata files are always removed afterwards.
func (c *Codec) Serialize(m *matrix.SparseMatrix, t matrix.TableType, date, destDir string) (string, error) {
	start := time.Now()
	meta, err := t.Meta()
	if err != nil {
		return "", err
	}
	if meta.IsSummary() {
		return "", errors.Newf(errors.ErrCodeUnknownTableType,
			"table %s is a summary table; use SummaryCodec", t)
	}
	base, err := matrix.FileBase(t, date)
	if err != nil {
		return "", err
	}
	if err := checkLabels(meta.RowField, m.Rows().Labels()); err != nil {
		return "", err
	}
	if err := checkLabels(meta.ColumnField, m.Columns().Labels()); err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "create archive directory")
	}

	payloadPath := filepath.Join(destDir, base+meta.MatrixExtension)
	metaPath := filepath.Join(destDir, base+metadataExt)
	zipPath := filepath.Join(destDir, base+".zip")

	if err := removeFiles(payloadPath, metaPath, zipPath); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "remove stale artifacts")
	}
	defer removeFiles(payloadPath, metaPath)

	if err := writePayloadFile(payloadPath, m); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "write payload").WithDetail(payloadPath)
	}

	md := newMetadata(meta, date)
	md.Row = m.Rows().Labels()
	md.Column = m.Columns().Labels()
	md.Nnz = m.Nnz()
	if err := writeMetadata(metaPath, md); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "write metadata").WithDetail(metaPath)
	}

	size, err := writeZip(zipPath, payloadPath, metaPath)
	if err != nil {
		os.Remove(zipPath)
		return "", errors.Wrap(err, errors.ErrCodeArchiveSerialization, "write zip").WithDetail(zipPath)
	}

	rows, cols := m.Shape()
	c.logger.Info("matrix archive written",
		logging.String(logging.FieldTable, string(t)),
		logging.String(logging.FieldDate, date),
		logging.String(logging.FieldPath, zipPath),
		logging.Int("rows", rows),
		logging.Int("columns", cols),
		logging.Int("nnz", m.Nnz()),
		logging.Int64("bytes", size),
		logging.Duration("elapsed", time.Since(start)))
	return zipPath, nil
}

// Deserialize reads a matrix archive.  Table type and date come from the
// file name.  Members are extracted into destDir; when overwrite is false
// and both members already exist there, the extracted copies are reused.
func (c *Codec) Deserialize(zipPath, destDir string, overwrite bool) (*Archive, error) {
	t, date, err := matrix.ParseFileName(zipPath)
	if err != nil {
		return nil, err
	}
	meta, err := t.Meta()
	if err != nil {
		return nil, err
	}
	if meta.IsSummary() {
		return nil, errors.Newf(errors.ErrCodeUnknownTableType,
			"archive %s holds a summary table; use SummaryCodec", filepath.Base(zipPath))
	}
	base, err := matrix.FileBase(t, date)
	if err != nil {
		return nil, err
	}

	payloadName := base + meta.MatrixExtension
	metaName := base + metadataExt
	if err := c.extract(zipPath, destDir, overwrite, payloadName, metaName); err != nil {
		return nil, err
	}

	md, err := readMetadata(filepath.Join(destDir, metaName), t)
	if err != nil {
		return nil, err
	}
	if md.Column == nil {
		return nil, errors.New(errors.ErrCodeCorruptMetadata, "metadata has no column labels").WithDetail(metaName)
	}
	rows, err := axisFromLabels(meta.RowField, md.Row)
	if err != nil {
		return nil, err
	}
	cols, err := axisFromLabels(meta.ColumnField, md.Column)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(destDir, payloadName))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArchiveSerialization, "read payload").WithDetail(payloadName)
	}
	hdr, entries, err := readPayload(data)
	if err != nil {
		return nil, err
	}
	if hdr.Rows != rows.Size() || hdr.Cols != cols.Size() {
		return nil, errors.Newf(errors.ErrCodeCorruptMetadata,
			"payload shape %dx%d does not match metadata labels %dx%d",
			hdr.Rows, hdr.Cols, rows.Size(), cols.Size())
	}
	m, err := matrix.NewFromEntries(rows, cols, entries)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCorruptMetadata, "payload entries are inconsistent")
	}

	c.logger.Debug("matrix archive read",
		logging.String(logging.FieldTable, string(t)),
		logging.String(logging.FieldDate, date),
		logging.Int("nnz", m.Nnz()))
	return &Archive{Table: t, Date: date, ZipPath: zipPath, Matrix: m, Metadata: md}, nil
}

// extract copies the named members of zipPath into destDir.
func (c *Codec) extract(zipPath, destDir string, overwrite bool, names ...string) error {
	if _, err := os.Stat(zipPath); err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeMissingArchiveFile, "archive does not exist").WithDetail(zipPath)
		}
		return errors.Wrap(err, errors.ErrCodeArchiveSerialization, "stat archive").WithDetail(zipPath)
	}
	if !overwrite && allExist(destDir, names...) {
		c.logger.Debug("reusing extracted archive members", logging.String(logging.FieldPath, destDir))
		return nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveSerialization, "create extraction directory")
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveSerialization, "open zip").WithDetail(zipPath)
	}
	defer zr.Close()

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		members[filepath.Base(f.Name)] = f
	}
	for _, name := range names {
		f, ok := members[name]
		if !ok {
			return errors.Newf(errors.ErrCodeMissingExpectedArtifact,
				"archive %s does not contain %s", filepath.Base(zipPath), name)
		}
		if err := extractMember(f, filepath.Join(destDir, name)); err != nil {
			return errors.Wrap(err, errors.ErrCodeArchiveSerialization, "extract member").WithDetail(name)
		}
	}
	return nil
}

func extractMember(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func writePayloadFile(path string, m *matrix.SparseMatrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := writePayload(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeZip deflates members into a new zip at zipPath and returns its size.
func writeZip(zipPath string, members ...string) (int64, error) {
	f, err := os.Create(zipPath)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(f)
	zw := zip.NewWriter(bw)

	for _, path := range members {
		if err := addMember(zw, path); err != nil {
			f.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	return info.Size(), f.Close()
}

func addMember(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(path),
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func removeFiles(paths ...string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func allExist(dir string, names ...string) bool {
	for _, n := range names {
		if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
			return false
		}
	}
	return true
}
