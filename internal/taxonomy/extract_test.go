package taxonomy_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taxosort/internal/logging"
	"taxosort/internal/taxonomy"
)

func TestExtractCollectsUniqueFamilies(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "occurrence_a.csv")
	second := filepath.Join(dir, "occurrence_b.csv")
	broken := filepath.Join(dir, "no_family.csv")
	if err := os.WriteFile(first, []byte("gbifID\tfamily\tgenus\n1\tVespidae\tVespa\n2\tApidae\tApis\n3\t\tUnknown\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("family\tnote\n\"Syrphidae\"\tsaid \"hi\"\nApidae\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(broken, []byte("gbifID\tgenus\n1\tApis\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	labels, err := taxonomy.Extract([]string{first, second, broken}, "", logging.NewNop())
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if strings.Join(labels, ",") != "Apidae,Syrphidae,Vespidae" {
		t.Fatalf("unexpected families %v", labels)
	}
}

func TestExtractFailsWhenNoFileReadable(t *testing.T) {
	if _, err := taxonomy.Extract([]string{filepath.Join(t.TempDir(), "missing.csv")}, "family", logging.NewNop()); err == nil {
		t.Fatal("expected error when every file fails")
	}
}

func TestWriteTargetFileRoundTripsThroughReadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "gbif_families.txt")
	if err := taxonomy.WriteTargetFile(path, []string{"Apidae", "Vespidae"}); err != nil {
		t.Fatalf("WriteTargetFile returned error: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(content), "# Total families: 2\n") {
		t.Fatalf("unexpected header: %q", content)
	}
	labels, err := taxonomy.ReadLabels(path)
	if err != nil {
		t.Fatalf("ReadLabels returned error: %v", err)
	}
	if strings.Join(labels, ",") != "Apidae,Vespidae" {
		t.Fatalf("unexpected labels %v", labels)
	}
}
