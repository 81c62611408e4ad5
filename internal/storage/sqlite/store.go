package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"newsradar/internal/domain"
)

// PublishedLayout is the minute-resolution layout of published_at.
const PublishedLayout = "2006-01-02 15:04"

const insertBatchSize = 50

var recordColumns = []string{
	"item_id", "published_at", "content", "impact_score", "sentiment", "summary",
	"sector", "sub_sector", "item_type", "impact_horizon", "key_trigger",
	"related_stocks", "logic", "created_at",
}

// Store is the append-only record table.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS news_records (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id        TEXT NOT NULL,
		published_at   TEXT NOT NULL,
		content        TEXT NOT NULL,
		impact_score   INTEGER NOT NULL,
		sentiment      REAL NOT NULL DEFAULT 0,
		summary        TEXT DEFAULT '',
		sector         TEXT DEFAULT '',
		sub_sector     TEXT DEFAULT '',
		item_type      TEXT DEFAULT '',
		impact_horizon TEXT DEFAULT '',
		key_trigger    TEXT DEFAULT '',
		related_stocks TEXT DEFAULT '[]',
		logic          TEXT DEFAULT '',
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_news_records_published_at ON news_records(published_at);
	CREATE INDEX IF NOT EXISTS idx_news_records_sector ON news_records(sector);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open creates the database file and table when missing.
func Open(path string, loc *time.Location) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return New(db, loc), nil
}

func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{db: db, loc: loc}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AppendRecords writes records in one transaction. Any failure rolls the
// whole batch back and wraps domain.ErrPersistFailed.
func (s *Store) AppendRecords(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrPersistFailed, err)
	}
	defer tx.Rollback()

	for start := 0; start < len(records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(records) {
			end = len(records)
		}
		insert := sq.Insert("news_records").Columns(recordColumns...)
		for _, r := range records[start:end] {
			stocks, err := json.Marshal(nonNilStocks(r.RelatedStocks))
			if err != nil {
				return fmt.Errorf("%w: encode related_stocks: %v", domain.ErrPersistFailed, err)
			}
			created := r.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			insert = insert.Values(
				r.ID,
				r.PublishedAt.In(s.loc).Format(PublishedLayout),
				r.Text,
				r.Score,
				r.Sentiment,
				r.Summary,
				r.Sector,
				r.SubSector,
				r.Type,
				r.ImpactHorizon,
				r.KeyTrigger,
				string(stocks),
				r.Logic,
				created.UTC(),
			)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("%w: build insert: %v", domain.ErrPersistFailed, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%w: insert: %v", domain.ErrPersistFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrPersistFailed, err)
	}
	return nil
}

// LoadSince returns records published at or after since, oldest first.
// A zero since loads everything. Rows with an unreadable timestamp are
// skipped.
func (s *Store) LoadSince(ctx context.Context, since time.Time) ([]domain.Record, error) {
	q := sq.Select(append([]string{"id"}, recordColumns...)...).From("news_records").OrderBy("id ASC")
	if !since.IsZero() {
		q = q.Where(sq.GtOrEq{"published_at": since.In(s.loc).Format(PublishedLayout)})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			r         domain.Record
			published string
			stocks    sql.NullString
		)
		if err := rows.Scan(
			&r.RowID, &r.ID, &published, &r.Text, &r.Score, &r.Sentiment, &r.Summary,
			&r.Sector, &r.SubSector, &r.Type, &r.ImpactHorizon, &r.KeyTrigger,
			&stocks, &r.Logic, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		ts, err := time.ParseInLocation(PublishedLayout, strings.TrimSpace(published), s.loc)
		if err != nil {
			log.Printf("store skipping row id=%d bad published_at=%q", r.RowID, published)
			continue
		}
		r.PublishedAt = ts
		if stocks.Valid && stocks.String != "" {
			if err := json.Unmarshal([]byte(stocks.String), &r.RelatedStocks); err != nil {
				log.Printf("store row id=%d bad related_stocks: %v", r.RowID, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// RecentContents returns the raw text of the newest limit records, newest
// first.
func (s *Store) RecentContents(ctx context.Context, limit int) ([]string, error) {
	query, args, err := sq.Select("content").From("news_records").
		OrderBy("id DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("news_records").ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func nonNilStocks(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
