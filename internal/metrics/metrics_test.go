package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"taxosort/internal/classifier"
)

func TestRecorderOptions(t *testing.T) {
	Convey("Given recorder options", t, func() {
		Convey("When a custom namespace and registry are supplied", func() {
			registry := prometheus.NewRegistry()
			rec := New(
				WithNamespace("trial"),
				WithRegistry(registry),
				WithHistogramBuckets([]float64{1, 2}),
				WithConstLabels(map[string]string{"mode": "cascade"}),
			)
			rec.ObserveItem("Apidae", time.Second)

			Convey("Then metrics are registered under that namespace", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, mf := range families {
					names = append(names, mf.GetName())
				}
				So(names, ShouldContain, "trial_items_classified_total")
				So(names, ShouldContain, "trial_classify_duration_seconds")
			})
		})

		Convey("When blank options are supplied", func() {
			rec := New(WithNamespace("  "), WithHistogramBuckets(nil), WithRegistry(nil))

			Convey("Then defaults are kept", func() {
				So(rec.namespace, ShouldEqual, defaultNamespace)
				So(rec.buckets, ShouldNotBeEmpty)
				So(rec.registry, ShouldNotBeNil)
			})
		})
	})
}

func TestRecorderCounts(t *testing.T) {
	Convey("Given a recorder", t, func() {
		rec := New()

		Convey("When items and requests are observed", func() {
			rec.ObserveItem("Apidae", 2*time.Second)
			rec.ObserveItem("Apidae", time.Second)
			rec.ObserveItem("uncertain", time.Second)
			observe := rec.ClassifierObserver()
			observe("predict", classifier.RankFamily, classifier.OutcomeRetry, time.Second)
			observe("predict", classifier.RankFamily, classifier.OutcomeOK, time.Second)
			rec.SetLedgerRows(42)
			rec.SetRemaining(7)

			Convey("Then counters and gauges reflect them", func() {
				So(testutil.ToFloat64(rec.itemsClassified.WithLabelValues("Apidae")), ShouldEqual, 2)
				So(testutil.ToFloat64(rec.itemsClassified.WithLabelValues("uncertain")), ShouldEqual, 1)
				So(testutil.ToFloat64(rec.requests.WithLabelValues("predict", "family", "retry")), ShouldEqual, 1)
				So(testutil.ToFloat64(rec.requests.WithLabelValues("predict", "family", "ok")), ShouldEqual, 1)
				So(testutil.ToFloat64(rec.ledgerRows), ShouldEqual, 42)
				So(testutil.ToFloat64(rec.remaining), ShouldEqual, 7)
			})
		})
	})
}

func TestWriteTextfile(t *testing.T) {
	Convey("Given a recorder with a finished run", t, func() {
		rec := New()
		rec.ObserveItem("other_families", time.Second)
		rec.MarkRunFinished("completed", time.Unix(1700000000, 0))
		path := filepath.Join(t.TempDir(), "textfile", "taxosort.prom")

		Convey("When the textfile is written", func() {
			err := rec.WriteTextfile(path)

			Convey("Then it contains the exposition", func() {
				So(err, ShouldBeNil)
				data, readErr := os.ReadFile(path)
				So(readErr, ShouldBeNil)
				text := string(data)
				So(strings.Contains(text, `taxosort_items_classified_total{category="other_families"} 1`), ShouldBeTrue)
				So(strings.Contains(text, `taxosort_last_run_timestamp_seconds{status="completed"} 1.7e+09`), ShouldBeTrue)
			})
		})
	})
}
