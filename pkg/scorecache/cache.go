// Package scorecache keeps resolved CVSS lookups in a process-wide TTL
// cache backed by sqlite, so useful entries survive a restart.
package scorecache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one cached score lookup.
type Entry struct {
	CVEID          string
	BaseScore      float64
	Severity       string
	Vector         string
	Exploitability *float64
	Impact         *float64
	ScoreVersion   string
	CreatedAt      time.Time
}

// Cache is safe for concurrent use. Reads hit an in-memory index;
// writes go through a single serialized path covering the index and the
// sqlite store. A disabled cache always misses and never touches disk.
type Cache struct {
	ttl     time.Duration
	enabled bool
	db      *sql.DB

	mu      sync.RWMutex
	entries map[string]Entry

	now func() time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS scores (
	"cve_id" TEXT NOT NULL PRIMARY KEY,
	"base_score" REAL,
	"severity" TEXT,
	"vector" TEXT,
	"exploitability" REAL,
	"impact" REAL,
	"score_version" TEXT,
	"created_at" INTEGER);`

// Open loads the cache from the sqlite file at path, creating it when
// missing. Rows already past the TTL are pruned on load.
func Open(path string, ttl time.Duration, enabled bool) (*Cache, error) {
	c := &Cache{
		ttl:     ttl,
		enabled: enabled,
		entries: make(map[string]Entry),
		now:     time.Now,
	}

	if !enabled {
		return c, nil
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open score cache %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init score cache: %w", err)
	}

	cutoff := time.Now().Add(-ttl).Unix()
	if _, err := db.Exec(`DELETE FROM scores WHERE created_at <= ?`, cutoff); err != nil {
		db.Close()
		return nil, fmt.Errorf("prune score cache: %w", err)
	}

	rows, err := db.Query(`SELECT cve_id, base_score, severity, vector, exploitability, impact, score_version, created_at FROM scores`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load score cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var exploitability, impact sql.NullFloat64
		var created int64

		err = rows.Scan(&e.CVEID, &e.BaseScore, &e.Severity, &e.Vector,
			&exploitability, &impact, &e.ScoreVersion, &created)
		if err != nil {
			continue
		}

		if exploitability.Valid {
			v := exploitability.Float64
			e.Exploitability = &v
		}
		if impact.Valid {
			v := impact.Float64
			e.Impact = &v
		}
		e.CreatedAt = time.Unix(created, 0)

		c.entries[e.CVEID] = e
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load score cache: %w", err)
	}

	c.db = db
	return c, nil
}

// Get returns the cached entry for the identifier. Entries older than
// the TTL count as absent; the stale row stays until the next Put
// overwrites it.
func (c *Cache) Get(cveID string) (Entry, bool) {
	if !c.enabled {
		return Entry{}, false
	}

	c.mu.RLock()
	e, ok := c.entries[cveID]
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.CreatedAt) >= c.ttl {
		return Entry{}, false
	}
	return e, true
}

// Put stores an entry, stamping it with the current time. Writes are
// serialized so the persisted store never interleaves.
func (c *Cache) Put(e Entry) error {
	if !c.enabled {
		return nil
	}

	e.CreatedAt = c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var exploitability, impact sql.NullFloat64
	if e.Exploitability != nil {
		exploitability = sql.NullFloat64{Float64: *e.Exploitability, Valid: true}
	}
	if e.Impact != nil {
		impact = sql.NullFloat64{Float64: *e.Impact, Valid: true}
	}

	_, err := c.db.Exec(`INSERT INTO scores
		(cve_id, base_score, severity, vector, exploitability, impact, score_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cve_id) DO UPDATE SET
		base_score=excluded.base_score, severity=excluded.severity,
		vector=excluded.vector, exploitability=excluded.exploitability,
		impact=excluded.impact, score_version=excluded.score_version,
		created_at=excluded.created_at`,
		e.CVEID, e.BaseScore, e.Severity, e.Vector,
		exploitability, impact, e.ScoreVersion, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("persist score cache entry %s: %w", e.CVEID, err)
	}

	c.entries[e.CVEID] = e
	return nil
}

// Len reports the number of entries currently indexed, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
