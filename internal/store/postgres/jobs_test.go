package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/groblegark/wealthd/internal/model"
)

// jobRowColumns is the column list for scanJob results.
var jobRowColumns = []string{
	"id", "type", "payload", "status", "attempts", "locked_at", "last_error", "created_at",
}

func TestQueryClaimJob(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	cutoff := now.Add(-5 * time.Minute)

	mock.ExpectQuery(`SELECT id FROM jobs\s+WHERE \(status = 'PENDING' AND \(locked_at IS NULL OR locked_at < \$1\)\)\s+OR \(status = 'RUNNING' AND locked_at < \$1\)\s+ORDER BY created_at ASC, id ASC\s+LIMIT 1`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))

	claimed := sqlmock.NewRows(jobRowColumns).
		AddRow("job-1", "ENRICH_VALUATION", []byte(`{"event_id":"evt-1"}`), "RUNNING", 1, now, nil, now)
	mock.ExpectQuery(`UPDATE jobs\s+SET status = 'RUNNING', locked_at = NOW\(\), attempts = attempts \+ 1\s+WHERE id = \$1\s+AND \(\(status = 'PENDING' AND \(locked_at IS NULL OR locked_at < \$2\)\)\s+OR \(status = 'RUNNING' AND locked_at < \$2\)\)`).
		WithArgs("job-1", cutoff).
		WillReturnRows(claimed)

	job, err := queryClaimJob(context.Background(), db, cutoff)
	if err != nil {
		t.Fatalf("queryClaimJob: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimed job")
	}
	if job.Status != model.JobRunning {
		t.Errorf("status = %s, want RUNNING", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", job.Attempts)
	}
	if job.LockedAt == nil {
		t.Error("locked_at not set")
	}
}

func TestQueryClaimJobNoneAvailable(t *testing.T) {
	db, mock := newMockDB(t)
	cutoff := time.Now().UTC()

	mock.ExpectQuery(`SELECT id FROM jobs`).
		WithArgs(cutoff).
		WillReturnError(sql.ErrNoRows)

	job, err := queryClaimJob(context.Background(), db, cutoff)
	if err != nil {
		t.Fatalf("queryClaimJob: %v", err)
	}
	if job != nil {
		t.Errorf("expected no job, got %v", job)
	}
}

func TestQueryClaimJobLostRace(t *testing.T) {
	db, mock := newMockDB(t)
	cutoff := time.Now().UTC()

	mock.ExpectQuery(`SELECT id FROM jobs`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))

	// The conditional update matches nothing: a concurrent claimant won.
	mock.ExpectQuery(`UPDATE jobs`).
		WithArgs("job-1", cutoff).
		WillReturnError(sql.ErrNoRows)

	job, err := queryClaimJob(context.Background(), db, cutoff)
	if err != nil {
		t.Fatalf("queryClaimJob: %v", err)
	}
	if job != nil {
		t.Errorf("lost race should yield no job, got %v", job)
	}
}

func TestJobTerminalTransitions(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE jobs\s+SET status = 'DONE', locked_at = NULL\s+WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := queryCompleteJob(context.Background(), db, "job-1"); err != nil {
		t.Fatalf("queryCompleteJob: %v", err)
	}

	mock.ExpectExec(`UPDATE jobs\s+SET status = 'PENDING', locked_at = NULL, last_error = \$2\s+WHERE id = \$1`).
		WithArgs("job-2", "transient failure").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := queryReleaseJob(context.Background(), db, "job-2", "transient failure"); err != nil {
		t.Fatalf("queryReleaseJob: %v", err)
	}

	mock.ExpectExec(`UPDATE jobs\s+SET status = 'FAILED', locked_at = NULL, last_error = \$2\s+WHERE id = \$1`).
		WithArgs("job-3", "gave up").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := queryFailJob(context.Background(), db, "job-3", "gave up"); err != nil {
		t.Fatalf("queryFailJob: %v", err)
	}
}

func TestQueryResetFailedJobs(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE jobs\s+SET status = 'PENDING', attempts = 0, locked_at = NULL, last_error = NULL\s+WHERE status = 'FAILED'`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := queryResetFailedJobs(context.Background(), db)
	if err != nil {
		t.Fatalf("queryResetFailedJobs: %v", err)
	}
	if n != 3 {
		t.Errorf("reset count = %d, want 3", n)
	}
}

func TestQueryListJobsFilter(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(jobRowColumns).
		AddRow("job-1", "RECONCILE_EVENT", nil, "FAILED", 3, nil, "handler error", now)

	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE status = \$1 ORDER BY created_at ASC LIMIT \$2`).
		WithArgs("FAILED", 10).
		WillReturnRows(rows)

	jobs, err := queryListJobs(context.Background(), db, model.JobFilter{Status: model.JobFailed, Limit: 10})
	if err != nil {
		t.Fatalf("queryListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	if jobs[0].LastError != "handler error" {
		t.Errorf("last error = %q", jobs[0].LastError)
	}
}
