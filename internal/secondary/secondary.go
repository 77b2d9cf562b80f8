// Package secondary loads the optional per-image table produced by an
// upstream classifier and joins it onto ledger rows by file name.
package secondary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"taxosort/internal/logging"
)

// Required columns of a secondary table.
const (
	ColumnName     = "img_name"
	ColumnTop1     = "top1"
	ColumnTop1Prob = "top1_prob"
)

// Record is one secondary classification. Values are kept verbatim.
type Record struct {
	ImgName  string
	Top1     string
	Top1Prob string
}

// Source maps base file names to secondary records.
type Source map[string]Record

// Lookup returns the record for the file name of path. A missing entry yields
// a zero Record.
func (s Source) Lookup(path string) Record {
	if s == nil {
		return Record{}
	}
	return s[filepath.Base(path)]
}

// Read parses the secondary table at path. Rows with a repeated img_name
// replace earlier ones.
func Read(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, want := range []string{ColumnName, ColumnTop1, ColumnTop1Prob} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("missing column %q", want)
		}
	}

	field := func(rec []string, name string) string {
		idx := cols[name]
		if idx >= len(rec) {
			return ""
		}
		return rec[idx]
	}
	out := make(Source)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(field(rec, ColumnName))
		if name == "" {
			continue
		}
		out[name] = Record{
			ImgName:  name,
			Top1:     field(rec, ColumnTop1),
			Top1Prob: field(rec, ColumnTop1Prob),
		}
	}
	return out, nil
}

// Load reads the secondary table at path. An empty path means no source is
// configured. Any failure is logged and yields an empty Source so the run can
// continue without the secondary columns.
func Load(path string, logger *slog.Logger) Source {
	logger = logging.NewComponentLogger(logger, "secondary")
	if strings.TrimSpace(path) == "" {
		return Source{}
	}
	src, err := Read(path)
	if err != nil {
		logging.WarnWithContext(logger, "secondary source unavailable", "secondary_load_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.secondary_source"),
			logging.String(logging.FieldImpact, "top1 and top1_prob columns are left empty"),
		)
		return Source{}
	}
	logger.Info("secondary source loaded", logging.String("path", path), logging.Int("entries", len(src)))
	return src
}
