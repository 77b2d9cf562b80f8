package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var knownSchemas = []Schema{SchemaFamily, SchemaMerged, SchemaCascade, SchemaGated}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}

// belongsToOtherSchema reports whether header is a valid header of a schema
// other than s, which marks a mode mix-up rather than a damaged file.
func belongsToOtherSchema(s Schema, header []string) bool {
	for _, other := range knownSchemas {
		if other.Name != s.Name && other.matchesHeader(header) {
			return true
		}
	}
	return false
}

// scan streams every complete data row of the ledger at path to fn. A
// trailing row without its newline is ignored.
func scan(path string, schema Schema, fn func(Record)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	limit, err := completeLength(path, info.Size())
	if err != nil {
		return err
	}
	if limit == 0 {
		return nil
	}

	r := csv.NewReader(io.LimitReader(f, limit))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !schema.matchesHeader(header) {
		if belongsToOtherSchema(schema, header) {
			return fmt.Errorf("%w: %s has header %q, mode %s expects %q",
				ErrSchemaMismatch, path, strings.Join(header, ","), schema.Name, strings.Join(schema.Header, ","))
		}
		return fmt.Errorf("unrecognized header %q", strings.Join(header, ","))
	}
	r.FieldsPerRecord = schema.Width()
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(Record(rec))
	}
}

func readKeys(path string, schema Schema) (map[string]struct{}, int, int, error) {
	keys := make(map[string]struct{})
	rows, dups := 0, 0
	err := scan(path, schema, func(rec Record) {
		rows++
		key := schema.Key(rec)
		if _, seen := keys[key]; seen {
			dups++
			return
		}
		keys[key] = struct{}{}
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return keys, rows, dups, nil
}

// ReadRows returns every complete data row of the ledger at path.
func ReadRows(path string, schema Schema) ([]Record, error) {
	var rows []Record
	if err := scan(path, schema, func(rec Record) { rows = append(rows, rec) }); err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", path, err)
	}
	return rows, nil
}

// VerifyReport summarises the health of a ledger file.
type VerifyReport struct {
	Path          string
	HeaderOK      bool
	Rows          int
	Keys          int
	DuplicateKeys int
	Malformed     int
	PartialTail   bool
	ParseError    string
	Categories    map[string]int
}

// Healthy reports whether the ledger can be resumed without repair.
func (r VerifyReport) Healthy() bool {
	return r.HeaderOK && r.DuplicateKeys == 0 && r.Malformed == 0 && !r.PartialTail && r.ParseError == ""
}

// Verify inspects the ledger at path without modifying it. Rows with the
// wrong field count are counted and skipped; a quoting error stops the scan.
func Verify(path string, schema Schema) (VerifyReport, error) {
	report := VerifyReport{Path: path, Categories: make(map[string]int)}
	f, err := os.Open(path)
	if err != nil {
		return report, fmt.Errorf("ledger: verify: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return report, fmt.Errorf("ledger: verify: %w", err)
	}
	limit, err := completeLength(path, info.Size())
	if err != nil {
		return report, fmt.Errorf("ledger: verify: %w", err)
	}
	report.PartialTail = limit < info.Size()
	if limit == 0 {
		return report, nil
	}

	r := csv.NewReader(io.LimitReader(f, limit))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		report.ParseError = err.Error()
		return report, nil
	}
	report.HeaderOK = schema.matchesHeader(header)
	if !report.HeaderOK {
		return report, nil
	}

	seen := make(map[string]struct{})
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.ParseError = err.Error()
			break
		}
		if len(rec) != schema.Width() {
			report.Malformed++
			continue
		}
		report.Rows++
		key := schema.Key(rec)
		if _, dup := seen[key]; dup {
			report.DuplicateKeys++
			continue
		}
		seen[key] = struct{}{}
		report.Categories[schema.Category(rec)]++
	}
	report.Keys = len(seen)
	return report, nil
}
