package ledger

import (
	"fmt"
	"slices"
)

// Schema describes the column layout of a ledger file.
type Schema struct {
	Name           string
	Header         []string
	KeyColumn      int
	CategoryColumn int
}

var (
	// SchemaFamily is the path-keyed single-rank ledger.
	SchemaFamily = Schema{
		Name:           "family",
		Header:         []string{"Image_Path", "Family", "Family_Confidence", "Classification_Category"},
		KeyColumn:      0,
		CategoryColumn: 3,
	}
	// SchemaMerged is keyed by file name and carries the secondary source columns first.
	SchemaMerged = Schema{
		Name:           "merged",
		Header:         []string{"img_name", "top1", "top1_prob", "Family_BioClip", "Family_Confidence_BioClip", "Classification_Category_BioClip"},
		KeyColumn:      0,
		CategoryColumn: 5,
	}
	// SchemaCascade records both ranks of the order-then-family cascade.
	SchemaCascade = Schema{
		Name:           "cascade",
		Header:         []string{"Image_Path", "Order", "Order_Confidence", "Family", "Family_Confidence", "Classification_Category"},
		KeyColumn:      0,
		CategoryColumn: 5,
	}
	// SchemaGated records both ranks behind the class-level gate.
	SchemaGated = Schema{
		Name:           "gated",
		Header:         []string{"Image_Path", "Order", "Order_Confidence", "Family", "Family_Confidence", "Classification_Category"},
		KeyColumn:      0,
		CategoryColumn: 5,
	}
)

// SchemaFor returns the schema used by a pipeline mode.
func SchemaFor(mode string) (Schema, error) {
	switch mode {
	case SchemaFamily.Name:
		return SchemaFamily, nil
	case SchemaMerged.Name:
		return SchemaMerged, nil
	case SchemaCascade.Name:
		return SchemaCascade, nil
	case SchemaGated.Name:
		return SchemaGated, nil
	}
	return Schema{}, fmt.Errorf("ledger: no schema for mode %q", mode)
}

// KeyedByName reports whether rows are keyed by base file name rather than full path.
func (s Schema) KeyedByName() bool {
	return s.Header[s.KeyColumn] == "img_name"
}

// Width returns the number of columns.
func (s Schema) Width() int {
	return len(s.Header)
}

// Key returns the key field of a record.
func (s Schema) Key(rec Record) string {
	if s.KeyColumn >= len(rec) {
		return ""
	}
	return rec[s.KeyColumn]
}

// Category returns the routing category of a record.
func (s Schema) Category(rec Record) string {
	if s.CategoryColumn >= len(rec) {
		return ""
	}
	return rec[s.CategoryColumn]
}

func (s Schema) matchesHeader(header []string) bool {
	if len(header) > 0 {
		header = append([]string{trimBOM(header[0])}, header[1:]...)
	}
	return slices.Equal(header, s.Header)
}
