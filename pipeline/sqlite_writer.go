package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aluiziolira/shopcrawl/models"
)

const productsSchema = `
CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	price REAL,
	currency TEXT,
	availability TEXT,
	rating REAL,
	review_count INTEGER,
	search_term TEXT,
	scraped_at DATETIME NOT NULL,
	raw_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_products_run ON products(run_id);
CREATE INDEX IF NOT EXISTS idx_products_platform ON products(platform);
`

// SQLiteWriter appends products to a SQLite dataset, one row per record.
type SQLiteWriter struct {
	db    *sql.DB
	runID string
}

// NewSQLiteWriter opens or creates the database at path.
func NewSQLiteWriter(path, runID string) (*SQLiteWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, productsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create products table: %w", err)
	}
	return &SQLiteWriter{db: db, runID: runID}, nil
}

// Write inserts a batch inside a single transaction.
func (sw *SQLiteWriter) Write(products []*models.ProductRecord) error {
	ctx := context.Background()
	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO products (run_id, platform, title, url, price, currency, availability, rating, review_count, search_term, scraped_at, raw_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		var raw sql.NullString
		if len(p.Raw) > 0 {
			b, err := json.Marshal(p.Raw)
			if err != nil {
				return fmt.Errorf("encode raw fields: %w", err)
			}
			raw = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			sw.runID, string(p.Platform), p.Title, p.URL,
			nullFloat(p.Price), p.Currency, p.Availability,
			nullFloat(p.Rating), nullInt(p.ReviewCount), p.SearchTerm,
			p.ScrapedAt.UTC(), raw,
		); err != nil {
			return fmt.Errorf("insert product %s: %w", p.URL, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of rows stored for this writer's run.
func (sw *SQLiteWriter) Count(ctx context.Context) (int, error) {
	var n int
	err := sw.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE run_id = ?", sw.runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (sw *SQLiteWriter) Close() error {
	return sw.db.Close()
}

// Validate ensures the run stored at least one row.
func (sw *SQLiteWriter) Validate() error {
	n, err := sw.Count(context.Background())
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sqlite dataset has no products for run %s", sw.runID)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
