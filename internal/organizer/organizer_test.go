package organizer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"taxosort/internal/config"
	"taxosort/internal/ledger"
	"taxosort/internal/organizer"
	"taxosort/internal/router"
	"taxosort/internal/services"
)

func writeImage(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func newOrganizer(t *testing.T, action string) (*organizer.Organizer, string, string) {
	t.Helper()
	base := t.TempDir()
	input := filepath.Join(base, "input")
	root := filepath.Join(base, "organized")
	org, err := organizer.New(root, action, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return org, input, root
}

func TestPlaceCopiesIntoCategoryAndIsIdempotent(t *testing.T) {
	org, input, root := newOrganizer(t, config.ActionCopy)
	src := filepath.Join(input, "cam1", "a.jpg")
	writeImage(t, src, "bee")

	d := router.Decision{Key: src, Path: src, Category: "HyCoDiLe/Apidae"}
	first, err := org.Place(context.Background(), d)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	want := filepath.Join(root, "HyCoDiLe", "Apidae", "a.jpg")
	if first.Destination != want || first.Outcome != organizer.OutcomePlaced {
		t.Fatalf("unexpected placement %+v", first)
	}
	if readFile(t, want) != "bee" || readFile(t, src) != "bee" {
		t.Fatal("copy should leave source and destination equal")
	}

	second, err := org.Place(context.Background(), d)
	if err != nil {
		t.Fatalf("second Place: %v", err)
	}
	if second.Outcome != organizer.OutcomePresent || second.Destination != want {
		t.Fatalf("expected no-op, got %+v", second)
	}
}

func TestPlaceTrustsCopiedSizeAndModTime(t *testing.T) {
	org, input, root := newOrganizer(t, config.ActionCopy)
	src := filepath.Join(input, "a.jpg")
	writeImage(t, src, "bee")
	d := router.Decision{Path: src, Category: "Apidae"}
	if _, err := org.Place(context.Background(), d); err != nil {
		t.Fatalf("Place: %v", err)
	}

	dst := filepath.Join(root, "Apidae", "a.jpg")
	srcInfo, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !dstInfo.ModTime().Equal(srcInfo.ModTime()) {
		t.Fatalf("copy should keep the source mod time, got %v want %v", dstInfo.ModTime(), srcInfo.ModTime())
	}

	// Rewrite the copy with same-size bytes and restore its time: the repeat
	// placement must not read file contents.
	writeImage(t, dst, "BEE")
	if err := os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		t.Fatal(err)
	}
	again, err := org.Place(context.Background(), d)
	if err != nil {
		t.Fatalf("repeat Place: %v", err)
	}
	if again.Outcome != organizer.OutcomePresent || again.Destination != dst {
		t.Fatalf("expected existing copy trusted, got %+v", again)
	}
}

func TestPlaceSuffixesConflictingDestination(t *testing.T) {
	org, input, root := newOrganizer(t, config.ActionCopy)
	writeImage(t, filepath.Join(root, "Apidae", "a.jpg"), "someone else")
	src := filepath.Join(input, "a.jpg")
	writeImage(t, src, "bee")

	d := router.Decision{Path: src, Category: "Apidae"}
	got, err := org.Place(context.Background(), d)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	want := filepath.Join(root, "Apidae", "a-1.jpg")
	if got.Destination != want || got.Outcome != organizer.OutcomeRenamed {
		t.Fatalf("unexpected placement %+v", got)
	}
	if readFile(t, filepath.Join(root, "Apidae", "a.jpg")) != "someone else" {
		t.Fatal("existing file must not be overwritten")
	}

	again, err := org.Place(context.Background(), d)
	if err != nil {
		t.Fatalf("second Place: %v", err)
	}
	if again.Destination != want || again.Outcome != organizer.OutcomePresent {
		t.Fatalf("expected suffixed copy to be recognised, got %+v", again)
	}
}

func TestPlaceMoveAndRepeatAfterMove(t *testing.T) {
	org, input, root := newOrganizer(t, config.ActionMove)
	src := filepath.Join(input, "a.jpg")
	writeImage(t, src, "fly")

	d := router.Decision{Path: src, Category: "Other/Diptera"}
	if _, err := org.Place(context.Background(), d); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected source moved, stat err=%v", err)
	}
	got, err := org.Place(context.Background(), d)
	if err != nil {
		t.Fatalf("repeat Place: %v", err)
	}
	if got.Outcome != organizer.OutcomePresent || got.Destination != filepath.Join(root, "Other", "Diptera", "a.jpg") {
		t.Fatalf("unexpected repeat placement %+v", got)
	}
}

func TestPlaceMissingSource(t *testing.T) {
	org, input, _ := newOrganizer(t, config.ActionCopy)
	_, err := org.Place(context.Background(), router.Decision{Path: filepath.Join(input, "gone.jpg"), Category: "uncertain"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReconcileRebuildsFromRows(t *testing.T) {
	org, input, root := newOrganizer(t, config.ActionCopy)
	a := filepath.Join(input, "x", "a.jpg")
	b := filepath.Join(input, "y", "b.jpg")
	writeImage(t, a, "a")
	writeImage(t, b, "b")

	rows := []ledger.Record{
		{"a.jpg", "", "", "Apidae", "0.9", "Apidae"},
		{"b.jpg", "wasp", "0.8", "Formicidae", "0.5", "other_families"},
		{"c.jpg", "", "", "", "0", "uncertain"},
	}
	index := map[string]string{"a.jpg": a, "b.jpg": b}
	resolve := organizer.NameResolver(ledger.SchemaMerged, index)

	report, err := org.Reconcile(context.Background(), ledger.SchemaMerged, rows, resolve)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Rows != 3 || report.Placed != 2 || report.Unresolved != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if readFile(t, filepath.Join(root, "other_families", "b.jpg")) != "b" {
		t.Fatal("expected b projected into other_families")
	}

	report, err = org.Reconcile(context.Background(), ledger.SchemaMerged, rows, resolve)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if report.Present != 2 || report.Placed != 0 {
		t.Fatalf("expected idempotent rebuild, got %+v", report)
	}
}

func TestReconcileHonoursCancellation(t *testing.T) {
	org, _, _ := newOrganizer(t, config.ActionCopy)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows := []ledger.Record{{"/img/a.jpg", "Apidae", "0.9", "Apidae"}}
	if _, err := org.Reconcile(ctx, ledger.SchemaFamily, rows, organizer.KeyResolver(ledger.SchemaFamily)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRejectsUnknownAction(t *testing.T) {
	if _, err := organizer.New(t.TempDir(), "link", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
