package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store"
)

// jobColumns is the column list used for SELECT statements on the jobs table.
const jobColumns = `id, type, payload, status, attempts, locked_at, last_error, created_at`

func queryCreateJob(ctx context.Context, db executor, j *model.Job) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO jobs (id, type, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		j.ID, string(j.Type), jsonbBytes(j.Payload), string(j.Status),
	).Scan(&j.CreatedAt)
}

func queryGetJob(ctx context.Context, db executor, id string) (*model.Job, error) {
	row := db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return j, err
}

func queryListJobs(ctx context.Context, db executor, filter model.JobFilter) ([]*model.Job, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Status != "" {
		whereClauses = append(whereClauses, "status = "+nextArg())
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		whereClauses = append(whereClauses, "type = "+nextArg())
		args = append(args, string(filter.Type))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// queryClaimJob selects the oldest claimable job, then claims it with a
// conditional UPDATE re-checking the claim predicate. Claimable means PENDING
// with no fresh lock, or RUNNING with an expired lock (orphaned by a crashed
// executor). A zero-row update means another executor won the race; the
// caller gets (nil, nil) and waits for the next poll.
func queryClaimJob(ctx context.Context, db executor, lockedBefore time.Time) (*model.Job, error) {
	var candidateID string
	err := db.QueryRowContext(ctx, `
		SELECT id FROM jobs
		WHERE (status = 'PENDING' AND (locked_at IS NULL OR locked_at < $1))
		   OR (status = 'RUNNING' AND locked_at < $1)
		ORDER BY created_at ASC, id ASC
		LIMIT 1`,
		lockedBefore,
	).Scan(&candidateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	row := db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'RUNNING', locked_at = NOW(), attempts = attempts + 1
		WHERE id = $1
		  AND ((status = 'PENDING' AND (locked_at IS NULL OR locked_at < $2))
		    OR (status = 'RUNNING' AND locked_at < $2))
		RETURNING `+jobColumns,
		candidateID, lockedBefore,
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race to a concurrent claimant.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", candidateID, err)
	}
	return j, nil
}

func queryCompleteJob(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'DONE', locked_at = NULL
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryReleaseJob(ctx context.Context, db executor, id, lastError string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'PENDING', locked_at = NULL, last_error = $2
		WHERE id = $1`,
		id, lastError,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryFailJob(ctx context.Context, db executor, id, lastError string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'FAILED', locked_at = NULL, last_error = $2
		WHERE id = $1`,
		id, lastError,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryResetFailedJobs(ctx context.Context, db executor) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'PENDING', attempts = 0, locked_at = NULL, last_error = NULL
		WHERE status = 'FAILED'`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func queryUpsertAssetPrice(ctx context.Context, db executor, p *model.AssetPrice) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO asset_prices (asset_symbol, fiat_currency, price_minor, as_of)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_symbol, fiat_currency, as_of) DO UPDATE
		SET price_minor = $3`,
		p.AssetSymbol, p.FiatCurrency, p.PriceMinor, p.AsOf,
	)
	return err
}

func queryLatestAssetPrice(ctx context.Context, db executor, assetSymbol, fiatCurrency string, asOf time.Time) (*model.AssetPrice, error) {
	p := &model.AssetPrice{}
	err := db.QueryRowContext(ctx, `
		SELECT asset_symbol, fiat_currency, price_minor, as_of
		FROM asset_prices
		WHERE asset_symbol = $1 AND fiat_currency = $2 AND as_of <= $3
		ORDER BY as_of DESC
		LIMIT 1`,
		assetSymbol, fiatCurrency, asOf,
	).Scan(&p.AssetSymbol, &p.FiatCurrency, &p.PriceMinor, &p.AsOf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
