package organizer

import (
	"context"
	"errors"
	"path/filepath"

	"taxosort/internal/ledger"
	"taxosort/internal/logging"
	"taxosort/internal/services"
)

// Resolver maps a ledger row to the image it describes. ok is false when the
// image cannot be located.
type Resolver func(rec ledger.Record) (path string, ok bool)

// KeyResolver resolves path-keyed rows to their key.
func KeyResolver(schema ledger.Schema) Resolver {
	return func(rec ledger.Record) (string, bool) {
		key := schema.Key(rec)
		return key, key != ""
	}
}

// NameResolver resolves name-keyed rows through an index of file name to path.
func NameResolver(schema ledger.Schema, index map[string]string) Resolver {
	return func(rec ledger.Record) (string, bool) {
		path, ok := index[filepath.Base(schema.Key(rec))]
		return path, ok
	}
}

// ReconcileReport counts the outcomes of a rebuild.
type ReconcileReport struct {
	Rows       int
	Placed     int
	Present    int
	Renamed    int
	Unresolved int
	Missing    int
}

// Reconcile projects every ledger row. Rows whose image cannot be found are
// counted and skipped; any other failure stops the rebuild.
func (o *Organizer) Reconcile(ctx context.Context, schema ledger.Schema, rows []ledger.Record, resolve Resolver) (ReconcileReport, error) {
	logger := logging.WithContext(ctx, o.logger)
	var report ReconcileReport
	for _, rec := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Rows++
		src, ok := resolve(rec)
		if !ok {
			report.Unresolved++
			continue
		}
		placement, err := o.place(ctx, src, schema.Category(rec))
		switch {
		case errors.Is(err, services.ErrNotFound):
			report.Missing++
			continue
		case err != nil:
			return report, err
		}
		switch placement.Outcome {
		case OutcomePlaced:
			report.Placed++
		case OutcomeRenamed:
			report.Renamed++
		default:
			report.Present++
		}
	}
	if report.Missing > 0 || report.Unresolved > 0 {
		logging.WarnWithContext(logger, "some ledger rows have no image on disk", "organizer_rows_unmatched",
			logging.Int("missing", report.Missing),
			logging.Int("unresolved", report.Unresolved),
			logging.String(logging.FieldErrorHint, "images may have been deleted or moved outside taxosort"),
			logging.String(logging.FieldImpact, "those rows are not projected"),
		)
	}
	logger.Info("organizer reconcile complete",
		logging.Int("rows", report.Rows),
		logging.Int("placed", report.Placed),
		logging.Int("present", report.Present),
		logging.Int("renamed", report.Renamed),
	)
	return report, nil
}
