package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, mode, ledger_path, input_dir, status, started_at, finished_at,
    discovered, already_done, processed, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*Run, error) {
	var (
		run        Run
		inputDir   sql.NullString
		startedAt  string
		finishedAt sql.NullString
		errMessage sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Mode,
		&run.LedgerPath,
		&inputDir,
		&run.Status,
		&startedAt,
		&finishedAt,
		&run.Discovered,
		&run.AlreadyDone,
		&run.Processed,
		&errMessage,
	); err != nil {
		return nil, err
	}
	run.InputDir = inputDir.String
	run.Error = errMessage.String
	started, err := parseTimeString(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = started
	if finishedAt.Valid {
		finished, err := parseTimeString(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &finished
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
