package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"taxosort/internal/preflight"
	"taxosort/internal/runstore"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Classifier", statusError, "connection refused", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Classifier:", "[ERROR] connection refused")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Ledger", statusOK, "", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
	if !strings.Contains(got, "[OK]") {
		t.Fatalf("expected OK marker, got %q", got)
	}
}

func TestCheckStatus(t *testing.T) {
	cases := []struct {
		result preflight.Result
		want   statusKind
	}{
		{preflight.Result{Passed: true}, statusOK},
		{preflight.Result{Optional: true}, statusWarn},
		{preflight.Result{}, statusError},
	}
	for _, tc := range cases {
		if got := checkStatus(tc.result); got != tc.want {
			t.Fatalf("checkStatus(%+v) = %v, want %v", tc.result, got, tc.want)
		}
	}
}

func TestRenderRunsTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-time.Minute)
	runs := []*runstore.Run{{
		ID:          "0f8fad5b-d9cb-469f-a165-70867728950e",
		Mode:        "cascade",
		LedgerPath:  "/data/out/cascade.csv",
		Status:      runstore.StatusCompleted,
		StartedAt:   now.Add(-2 * time.Hour),
		FinishedAt:  &finished,
		Processed:   1234,
		AlreadyDone: 10,
	}}
	out := renderRunsTable(runs, now)
	for _, want := range []string{"0f8fad5b", "2 hours ago", "1h59m0s", "cascade", "completed", "1,234", "cascade.csv"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table:\n%s", want, out)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
