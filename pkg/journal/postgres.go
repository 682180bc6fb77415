package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/menta2k/image-labeler/pkg/types"
)

var schema = []string{`
create table if not exists label_runs (
	id               bigserial primary key,
	image_filename   text        not null,
	stage            text        not null,
	success          boolean     not null,
	error            text        not null default '',
	original_label   text        not null default '',
	translated_label text        not null default '',
	started_at       timestamptz not null,
	finished_at      timestamptz not null
)`,
	`create index if not exists label_runs_finished_idx on label_runs (finished_at desc)`,
}

// Postgres stores runs in the label_runs table
type Postgres struct{ DB *sql.DB }

// Open connects with the pgx driver, tunes the pool and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{DB: db} }

// EnsureSchema creates the table and index when missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create label_runs: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, run types.Run) error {
	const q = `
insert into label_runs(image_filename, stage, success, error, original_label, translated_label, started_at, finished_at)
values ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := p.DB.ExecContext(ctx, q,
		run.ImageFilename, run.Stage, run.Success, run.Error,
		run.OriginalLabel, run.TranslatedLabel, run.StartedAt, run.FinishedAt)
	return err
}

// Recent returns the latest runs, newest first
func (p *Postgres) Recent(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
select id, image_filename, stage, success, error, original_label, translated_label, started_at, finished_at
from label_runs
order by finished_at desc, id desc
limit $1`
	rows, err := p.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []types.Run{}
	for rows.Next() {
		var r types.Run
		if err := rows.Scan(&r.ID, &r.ImageFilename, &r.Stage, &r.Success, &r.Error,
			&r.OriginalLabel, &r.TranslatedLabel, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
