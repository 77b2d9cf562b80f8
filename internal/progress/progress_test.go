package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"taxosort/internal/discovery"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRunSummary(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	run := NewRun(2, 2, Options{Writer: &bytes.Buffer{}, Now: clock.now})

	a := discovery.Item{Path: "/img/a.jpg", Key: "/img/a.jpg"}
	b := discovery.Item{Path: "/img/b.jpg", Key: "/img/b.jpg"}
	run.Begin(a)
	clock.advance(3 * time.Second)
	if got := run.Done(a, "Apidae"); got != 3*time.Second {
		t.Fatalf("unexpected item duration %v", got)
	}
	run.Begin(b)
	clock.advance(5 * time.Second)
	run.Done(b, "other_families")
	run.Finish()

	s := run.Summary()
	if s.Processed != 2 || s.AlreadyDone != 2 || s.Total != 4 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.Elapsed != 8*time.Second || s.Average != 2*time.Second || s.PerImage != 4*time.Second {
		t.Fatalf("unexpected timings %+v", s)
	}
	if run.Last() != 5*time.Second {
		t.Fatalf("unexpected last duration %v", run.Last())
	}
	if s.Categories["Apidae"] != 1 || s.Categories["other_families"] != 1 {
		t.Fatalf("unexpected categories %v", s.Categories)
	}
}

func TestEmptyRunAveragesOverOne(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	run := NewRun(0, 0, Options{Writer: &bytes.Buffer{}, Now: clock.now})
	clock.advance(time.Second)
	s := run.Summary()
	if s.Average != time.Second || s.PerImage != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestRunElapsedIncludesStartup(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	started := clock.now()
	clock.advance(4 * time.Second)
	run := NewRun(1, 0, Options{Writer: &bytes.Buffer{}, Now: clock.now, Started: started})

	a := discovery.Item{Path: "/img/a.jpg", Key: "/img/a.jpg"}
	run.Begin(a)
	clock.advance(2 * time.Second)
	run.Done(a, "Apidae")

	s := run.Summary()
	if s.Elapsed != 6*time.Second || s.Average != 6*time.Second {
		t.Fatalf("expected startup counted in elapsed, got %+v", s)
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Summary{
		Processed:   1200,
		AlreadyDone: 34,
		Total:       1234,
		Elapsed:     time.Hour + 2*time.Minute + 3*time.Second,
		Average:     3 * time.Second,
		PerImage:    3 * time.Second,
		Categories:  map[string]int{"Apidae": 1000, "uncertain": 200},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"1,200 images classified in 1:02:03", "Total in ledger:   1,234", "Apidae", "uncertain", "1,000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Index(out, "Apidae") > strings.Index(out, "uncertain") {
		t.Fatalf("expected larger category first:\n%s", out)
	}
}
