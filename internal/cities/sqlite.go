package cities

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS cities (
	idx     INTEGER PRIMARY KEY,
	name    TEXT NOT NULL,
	country TEXT NOT NULL,
	lat     REAL NOT NULL,
	lon     REAL NOT NULL
)`

// SQLStore serves the bundled list from an in-memory SQLite database.
// SQLite's LOWER only folds ASCII, so non-ASCII names match case-sensitively.
type SQLStore struct {
	db *sqlx.DB
}

type cityRow struct {
	Idx int `db:"idx"`
	City
}

// MemoryDSN returns a shared-cache in-memory DSN for the named database.
func MemoryDSN(name string) string {
	if name == "" {
		return "file::memory:?cache=shared"
	}
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// OpenSQLStore connects to dsn and seeds it with list, replacing any rows
// already present.
func OpenSQLStore(ctx context.Context, dsn string, list []City) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to city database: %w", err)
	}
	// One connection keeps the in-memory database alive and avoids shared-cache table locks.
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db}
	if err := s.seed(ctx, list); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) seed(ctx context.Context, list []City) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create cities table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cities`); err != nil {
		return fmt.Errorf("clear cities: %w", err)
	}
	if len(list) > 0 {
		rows := make([]cityRow, len(list))
		for i, c := range list {
			rows[i] = cityRow{Idx: i, City: c}
		}
		// 5 params per row keeps each statement under SQLite's variable limit.
		const chunkSize = 100
		for i := 0; i < len(rows); i += chunkSize {
			end := i + chunkSize
			if end > len(rows) {
				end = len(rows)
			}
			_, err := tx.NamedExecContext(ctx,
				`INSERT INTO cities (idx, name, country, lat, lon) VALUES (:idx, :name, :country, :lat, :lon)`,
				rows[i:end])
			if err != nil {
				return fmt.Errorf("insert cities: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Match(ctx context.Context, query string, limit int) ([]City, error) {
	if query == "" || limit <= 0 {
		return []City{}, nil
	}
	pattern := escapeLike(strings.ToLower(query))
	q := `
		SELECT name, country, lat, lon
		FROM cities
		WHERE LOWER(name) LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY CASE WHEN LOWER(name) LIKE ? || '%' ESCAPE '\' THEN 0 ELSE 1 END, idx
		LIMIT ?
	`
	out := []City{}
	if err := s.db.SelectContext(ctx, &out, q, pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("match cities: %w", err)
	}
	return out, nil
}

func (s *SQLStore) All(ctx context.Context) ([]City, error) {
	out := []City{}
	if err := s.db.SelectContext(ctx, &out, `SELECT name, country, lat, lon FROM cities ORDER BY idx`); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return out, nil
}

// Close releases the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
