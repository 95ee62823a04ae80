package clients

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/json"
	_ "modernc.org/sqlite"
)

const createResponsesTable = `
CREATE TABLE IF NOT EXISTS responses (
	key         TEXT PRIMARY KEY,
	status_code INTEGER NOT NULL,
	header      TEXT NOT NULL,
	body        BLOB NOT NULL,
	stored_at   INTEGER NOT NULL
)`

// SQLiteCache is a Cache persisted in a SQLite file so responses survive
// across runs.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens or creates the cache database at path.
func OpenSQLiteCache(ctx context.Context, path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createResponsesTable); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	var (
		status   int
		header   string
		body     []byte
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT status_code, header, body, stored_at FROM responses WHERE key = ?`, key,
	).Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	h := make(http.Header)
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return nil, false, err
	}

	return &CachedResponse{
		StatusCode: status,
		Header:     h,
		Body:       body,
		StoredAt:   time.Unix(0, storedAt),
	}, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, resp *CachedResponse) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses (key, status_code, header, body, stored_at) VALUES (?, ?, ?, ?, ?)`,
		key, resp.StatusCode, string(header), resp.Body, resp.StoredAt.UnixNano(),
	)
	return err
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM responses WHERE key = ?`, key)
	return err
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
