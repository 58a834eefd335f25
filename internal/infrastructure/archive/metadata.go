package archive

import (
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// Metadata is the JSON sidecar stored next to a payload.  Row and Column
// hold the axis labels in code order; the remaining fields describe the
// table so an archive can be interpreted without out-of-band knowledge.
type Metadata struct {
	Row    []string `json:"row"`
	Column []string `json:"column"`

	Table       matrix.TableType `json:"table"`
	Date        string           `json:"date"`
	RowField    string           `json:"row_field"`
	ColumnField string           `json:"column_field"`
	ValueField  string           `json:"value_field"`
	Fields      []string         `json:"fields,omitempty"`
	Nnz         int              `json:"nnz"`
	CreatedAt   time.Time        `json:"created_at"`
}

func newMetadata(meta matrix.TableMeta, date string) Metadata {
	return Metadata{
		Table:       meta.Code,
		Date:        date,
		RowField:    meta.RowField,
		ColumnField: meta.ColumnField,
		ValueField:  meta.ValueField,
		Fields:      meta.Fields,
		CreatedAt:   time.Now().UTC(),
	}
}

func writeMetadata(path string, md Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// checkLabels rejects labels the JSON sidecar cannot carry byte for byte.
func checkLabels(name string, labels []string) error {
	for i, l := range labels {
		if !utf8.ValidString(l) {
			return errors.Newf(errors.ErrCodeArchiveSerialization,
				"%s label at code %d is not valid UTF-8", name, i).WithDetail(strconv.Quote(l))
		}
	}
	return nil
}

// readMetadata parses a metadata file and checks it describes table t.
func readMetadata(path string, t matrix.TableType) (Metadata, error) {
	var md Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return md, errors.Wrap(err, errors.ErrCodeArchiveSerialization, "read metadata")
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, errors.Wrap(err, errors.ErrCodeCorruptMetadata, "metadata is not valid JSON").
			WithDetail(path)
	}
	if md.Table != "" && md.Table != t {
		return md, errors.Newf(errors.ErrCodeCorruptMetadata,
			"metadata describes table %s, archive name says %s", md.Table, t)
	}
	if md.Row == nil {
		return md, errors.New(errors.ErrCodeCorruptMetadata, "metadata has no row labels").WithDetail(path)
	}
	return md, nil
}

// axisFromLabels builds an axis and rejects label lists that the axis would
// silently normalise (duplicates or empty strings).
func axisFromLabels(name string, labels []string) (*matrix.CategoricalAxis, error) {
	ax := matrix.NewCategoricalAxis(name, labels)
	if ax.Size() != len(labels) {
		return nil, errors.Newf(errors.ErrCodeCorruptMetadata,
			"%s labels contain duplicates or empty values", name)
	}
	return ax, nil
}
