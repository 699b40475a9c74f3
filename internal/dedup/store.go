package dedup

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	_ "modernc.org/sqlite"

	apperrors "github.com/finbert-ci/collector/internal/errors"
)

// Tier A target false-positive rate. False negatives are impossible by
// construction, so a positive only ever costs one Tier B lookup.
const falsePositiveRate = 0.001

const busyTimeoutMS = 5000

// Store answers "have we seen this post id before?" with a bloom filter in
// front of a durable SQLite table. The filter gives O(1) definitive
// negatives; the table confirms positives and survives restarts, seeding
// the filter again on open.
//
// The store is single-writer: the open sequence takes SQLite's exclusive
// lock and holds it until Close, so a second concurrent run fails fast.
type Store struct {
	db       *sql.DB
	filter   *bloom.BloomFilter
	path     string
	capacity int
}

// Stats summarizes the persistent tier for end-of-run logging.
type Stats struct {
	TotalSeen     int64
	OldestSeenUTC int64
	NewestSeenUTC int64
	Capacity      int
	ErrorRate     float64
}

// Open opens (creating if needed) the seen-post store at path and rebuilds
// the bloom filter from it. Returns KindDedupLock when another process
// holds the store, KindDedupOpen on any other failure.
func Open(path string, capacity int) (*Store, error) {
	return open(path, capacity, busyTimeoutMS)
}

func open(path string, capacity, busyMS int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDedupOpen, apperrors.ComponentDedup,
				"failed to create store directory", err)
		}
	}

	// locking_mode(EXCLUSIVE) plus the throwaway write in acquireLock takes
	// and keeps the file lock for the lifetime of the connection. synchronous(FULL)
	// makes every committed insert durable before Exec returns.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=locking_mode(EXCLUSIVE)",
		path, busyMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDedupOpen, apperrors.ComponentDedup,
			"failed to open seen-post database", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		if isBusy(err) {
			return nil, apperrors.Wrap(apperrors.KindDedupLock, apperrors.ComponentDedup,
				"seen-post database is locked by another run", err)
		}
		return nil, apperrors.Wrap(apperrors.KindDedupOpen, apperrors.ComponentDedup,
			"failed to initialize seen-post database", err)
	}

	if err := acquireLock(db); err != nil {
		db.Close()
		if isBusy(err) {
			return nil, apperrors.Wrap(apperrors.KindDedupLock, apperrors.ComponentDedup,
				"seen-post database is locked by another run", err)
		}
		return nil, apperrors.Wrap(apperrors.KindDedupOpen, apperrors.ComponentDedup,
			"failed to lock seen-post database", err)
	}

	s := &Store{
		db:       db,
		filter:   bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		path:     path,
		capacity: capacity,
	}

	if err := s.rebuildFilter(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS seen_posts (
		  post_id        TEXT PRIMARY KEY,
		  first_seen_utc INTEGER NOT NULL
		)`)
	return err
}

// acquireLock performs a throwaway write so the EXCLUSIVE locking mode
// takes the file lock at open rather than at the run's first insert.
// CREATE TABLE IF NOT EXISTS is a no-op read on an existing store and
// would leave the file shareable until then.
func acquireLock(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO seen_posts (post_id, first_seen_utc) VALUES ('', 0)`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM seen_posts WHERE post_id = ''`); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rebuildFilter seeds Tier A from every id in Tier B. Exceeding the
// configured capacity degrades the false-positive rate but is not fatal.
func (s *Store) rebuildFilter() error {
	rows, err := s.db.Query(`SELECT post_id FROM seen_posts`)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDedupOpen, apperrors.ComponentDedup,
			"failed to load seen ids for filter rebuild", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return apperrors.Wrap(apperrors.KindDedupOpen, apperrors.ComponentDedup,
				"failed to scan seen id", err)
		}
		s.filter.AddString(id)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(apperrors.KindDedupOpen, apperrors.ComponentDedup,
			"failed to iterate seen ids", err)
	}

	if loaded > s.capacity {
		slog.Warn("[Dedup] Seen ids exceed filter capacity, false-positive rate degraded",
			slog.Int("loaded", loaded),
			slog.Int("capacity", s.capacity))
	}
	slog.Info("[Dedup] Filter rebuilt from store",
		slog.Int("seen_ids", loaded),
		slog.String("path", s.path))
	return nil
}

// Seen reports whether id was marked in this or any earlier run. A filter
// miss is definitive; a filter hit is confirmed against the table.
func (s *Store) Seen(id string) (bool, error) {
	if !s.filter.TestString(id) {
		return false, nil
	}

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM seen_posts WHERE post_id = ?`, id).Scan(&n)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindDedupRead, apperrors.ComponentDedup,
			"failed to confirm seen id", err)
	}
	return n > 0, nil
}

// MarkSeen records id durably and then adds it to the filter. The table
// insert goes first: if it fails the filter is left untouched so the id
// stays eligible for a future run.
func (s *Store) MarkSeen(id string, firstSeenUTC int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO seen_posts (post_id, first_seen_utc) VALUES (?, ?)`,
		id, firstSeenUTC)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDedupWrite, apperrors.ComponentDedup,
			"failed to persist seen id", err)
	}
	s.filter.AddString(id)
	return nil
}

// Stats reads summary figures from the persistent tier.
func (s *Store) Stats() (Stats, error) {
	st := Stats{Capacity: s.capacity, ErrorRate: falsePositiveRate}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRow(
		`SELECT COUNT(*), MIN(first_seen_utc), MAX(first_seen_utc) FROM seen_posts`,
	).Scan(&st.TotalSeen, &oldest, &newest)
	if err != nil {
		return Stats{}, apperrors.Wrap(apperrors.KindDedupRead, apperrors.ComponentDedup,
			"failed to read store stats", err)
	}
	st.OldestSeenUTC = oldest.Int64
	st.NewestSeenUTC = newest.Int64
	return st, nil
}

// Close releases the database and its exclusive lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}
