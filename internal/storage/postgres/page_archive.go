// Package postgres archives finished crawl pages into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const defaultTable = "crawl_pages"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool used for archive rows.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

var archiveColumns = []string{
	"job_id", "seq", "url", "depth", "status_code", "title", "description",
	"content_length", "image_count", "link_count", "failure_kind", "error_text",
	"used_headless", "crawled_at",
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Close()
}

// PageArchive writes one row per PageResult of a finished job.
type PageArchive struct {
	pool  pool
	table string
}

// Open connects a pgx pool and returns an archive over it.
func Open(ctx context.Context, cfg Config) (*PageArchive, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	archive, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return archive, nil
}

// NewWithPool builds an archive over an existing pool.
func NewWithPool(p pool, table string) (*PageArchive, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PageArchive{pool: p, table: table}, nil
}

// Close releases the pool.
func (a *PageArchive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

// EnsureSchema creates the archive table when it is missing.
func (a *PageArchive) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id         TEXT        NOT NULL,
	seq            INTEGER     NOT NULL,
	url            TEXT        NOT NULL,
	depth          INTEGER     NOT NULL,
	status_code    INTEGER     NOT NULL,
	title          TEXT        NOT NULL,
	description    TEXT        NOT NULL,
	content_length INTEGER     NOT NULL,
	image_count    INTEGER     NOT NULL,
	link_count     INTEGER     NOT NULL,
	failure_kind   TEXT,
	error_text     TEXT,
	used_headless  BOOLEAN     NOT NULL DEFAULT FALSE,
	crawled_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, seq)
)`, a.table)
	if _, err := a.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", a.table, err)
	}
	return nil
}

// ArchivePages copies the pages of jobID in a single COPY, which either
// lands every row or none. seq is the position of the page in the report.
func (a *PageArchive) ArchivePages(ctx context.Context, jobID string, pages []crawler.PageResult) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	if len(pages) == 0 {
		return nil
	}
	n, err := a.pool.CopyFrom(ctx, pgx.Identifier{a.table}, archiveColumns, pgx.CopyFromRows(copyRows(jobID, pages)))
	if err != nil {
		return fmt.Errorf("copy pages of %s: %w", jobID, err)
	}
	if n != int64(len(pages)) {
		return fmt.Errorf("copy pages of %s: wrote %d of %d rows", jobID, n, len(pages))
	}
	return nil
}

func copyRows(jobID string, pages []crawler.PageResult) [][]any {
	rows := make([][]any, 0, len(pages))
	for i, page := range pages {
		rows = append(rows, rowArgs(jobID, i, page))
	}
	return rows
}

func rowArgs(jobID string, seq int, page crawler.PageResult) []any {
	return []any{
		jobID,
		seq,
		page.URL,
		page.Depth,
		page.StatusCode,
		page.Title,
		page.Description,
		page.ContentLength,
		len(page.Images),
		len(page.Links),
		nullable(string(page.FailureKind)),
		nullable(page.Error),
		page.UsedHeadless,
		page.CrawledAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
