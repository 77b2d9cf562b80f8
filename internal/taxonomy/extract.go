package taxonomy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"taxosort/internal/logging"
)

// DefaultExtractColumn is the GBIF occurrence column holding family names.
const DefaultExtractColumn = "family"

// Extract collects the unique non-empty values of column across the given
// tab-separated GBIF occurrence exports. Files that cannot be read or lack the
// column are logged and skipped; an error is returned only when every file
// fails.
func Extract(paths []string, column string, logger *slog.Logger) ([]string, error) {
	logger = logging.NewComponentLogger(logger, "taxonomy")
	if strings.TrimSpace(column) == "" {
		column = DefaultExtractColumn
	}
	unique := make(map[string]struct{})
	var failures int
	for _, path := range paths {
		count, err := extractFile(path, column, unique)
		if err != nil {
			failures++
			logging.WarnWithContext(logger, "occurrence file skipped", "extract_file_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "labels from this file are missing"),
			)
			continue
		}
		logger.Info("occurrence file scanned", logging.String("path", filepath.Base(path)), logging.Int("rows", count))
	}
	if len(paths) > 0 && failures == len(paths) {
		return nil, errors.New("extract: no occurrence file could be read")
	}
	labels := make([]string, 0, len(unique))
	for label := range unique {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, nil
}

func extractFile(path, column string, into map[string]struct{}) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	idx := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("column %q not found", column)
	}

	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read row %d: %w", rows+1, err)
		}
		rows++
		if idx >= len(record) {
			continue
		}
		if value := strings.TrimSpace(record[idx]); value != "" {
			into[value] = struct{}{}
		}
	}
	return rows, nil
}

// WriteTargetFile writes labels one per line behind a "# Total families: N"
// comment, in the format ReadLabels accepts.
func WriteTargetFile(path string, labels []string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create target directory: %w", err)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Total families: %d\n\n", len(labels))
	for _, label := range labels {
		b.WriteString(label)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write target file: %w", err)
	}
	return nil
}
