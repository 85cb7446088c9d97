package export

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type runRepoPG struct{ db queryable }

// NewRunRepoPG creates a RunRepository backed by the export_run table.
func NewRunRepoPG(pool *pgxpool.Pool) RunRepository { return &runRepoPG{db: pool} }

const runColumns = `id, hqmf_id, cms_id, test_case_count, qrda_failures, html_failures,
	COALESCE(archive_prefix, ''), started_at, duration_ms`

func (r *runRepoPG) Create(ctx context.Context, run *ExportRun) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO export_run (id, hqmf_id, cms_id, test_case_count, qrda_failures, html_failures,
		                         archive_prefix, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		run.ID, run.HQMFID, run.CMSID, run.TestCaseCount, run.QRDAFailures, run.HTMLFailures,
		run.ArchivePrefix, run.StartedAt, run.Duration)
	if err != nil {
		return fmt.Errorf("create export run: %w", err)
	}
	return nil
}

func (r *runRepoPG) List(ctx context.Context, limit, offset int) ([]*ExportRun, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM export_run`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count export runs: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+runColumns+` FROM export_run ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list export runs: %w", err)
	}
	defer rows.Close()

	var runs []*ExportRun
	for rows.Next() {
		var run ExportRun
		var started time.Time
		if err := rows.Scan(&run.ID, &run.HQMFID, &run.CMSID, &run.TestCaseCount, &run.QRDAFailures,
			&run.HTMLFailures, &run.ArchivePrefix, &started, &run.Duration); err != nil {
			return nil, 0, err
		}
		run.StartedAt = started.UTC()
		runs = append(runs, &run)
	}
	return runs, total, rows.Err()
}
