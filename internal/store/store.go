// Package store persists synthesized clips in sqlite so they survive
// restarts. Audio is zstd-compressed on the way in when that shrinks it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no record has the requested hash.
var ErrNotFound = errors.New("store: record not found")

// DefaultCompressionLevel is the zstd level used when none is configured.
const DefaultCompressionLevel = 3

// Only payloads larger than this are compressed.
const compressThreshold = 1024

// Record is one durable clip.
type Record struct {
	Hash         string
	VoiceID      string
	Text         string
	Audio        []byte
	AudioURL     string
	Format       string
	Size         int64 // uncompressed audio size
	AccessCount  int64
	LastAccessed time.Time
	Created      time.Time
}

// VoiceStat summarises the records of one voice.
type VoiceStat struct {
	VoiceID  string
	Entries  int64
	Accesses int64
	Bytes    int64
}

// Store is a sqlite-backed clip store.
type Store struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	clock   clockwork.Clock
}

// Option configures a Store.
type Option func(*options)

type options struct {
	level int
	clock clockwork.Clock
}

// WithCompressionLevel sets the zstd level (1-22).
func WithCompressionLevel(level int) Option {
	return func(o *options) {
		if level > 0 {
			o.level = level
		}
	}
}

// WithClock sets the clock used for access timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	o := options{level: DefaultCompressionLevel, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: creating dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(o.level)))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to create zstd decoder: %w", err)
	}

	return &Store{db: db, encoder: encoder, decoder: decoder, clock: o.clock}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS voice_cache (
	hash TEXT PRIMARY KEY,
	voice_id TEXT NOT NULL,
	text TEXT NOT NULL,
	audio BLOB NOT NULL,
	audio_url TEXT,
	compressed INTEGER NOT NULL DEFAULT 0,
	format TEXT NOT NULL,
	size INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL,
	created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS voice_cache_voice ON voice_cache(voice_id);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("store: migrate voice_cache: %w", err)
	}
	return nil
}

// Get returns the record for hash with its audio decompressed.
func (s *Store) Get(ctx context.Context, hash string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT hash, voice_id, text, audio, COALESCE(audio_url, ''), compressed, format, size,
	access_count, last_accessed, created
FROM voice_cache WHERE hash = ?`, hash)

	var (
		rec        Record
		compressed bool
		last, made int64
	)
	err := row.Scan(&rec.Hash, &rec.VoiceID, &rec.Text, &rec.Audio, &rec.AudioURL, &compressed,
		&rec.Format, &rec.Size, &rec.AccessCount, &last, &made)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", hash, err)
	}

	if compressed {
		rec.Audio, err = s.decoder.DecodeAll(rec.Audio, make([]byte, 0, rec.Size))
		if err != nil {
			return nil, fmt.Errorf("store: decompress %s: %w", hash, err)
		}
	}
	rec.LastAccessed = time.UnixMilli(last)
	rec.Created = time.UnixMilli(made)
	return &rec, nil
}

// Put inserts or replaces rec. Access analytics of an existing row are kept.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.Hash == "" {
		return fmt.Errorf("store: record without hash")
	}

	payload := rec.Audio
	compressed := false
	if len(payload) > compressThreshold {
		if enc := s.encoder.EncodeAll(payload, nil); len(enc) < len(payload) {
			payload = enc
			compressed = true
		}
	}

	now := s.clock.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO voice_cache (hash, voice_id, text, audio, audio_url, compressed, format, size,
	access_count, last_accessed, created)
VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, 0, ?, ?)
ON CONFLICT(hash) DO UPDATE SET
	voice_id = excluded.voice_id,
	text = excluded.text,
	audio = excluded.audio,
	audio_url = excluded.audio_url,
	compressed = excluded.compressed,
	format = excluded.format,
	size = excluded.size,
	last_accessed = excluded.last_accessed`,
		rec.Hash, rec.VoiceID, rec.Text, payload, rec.AudioURL, compressed, rec.Format,
		len(rec.Audio), now, now)
	if err != nil {
		return fmt.Errorf("store: put %s: %w", rec.Hash, err)
	}
	return nil
}

// Touch records an access to hash.
func (s *Store) Touch(ctx context.Context, hash string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE voice_cache SET access_count = access_count + 1, last_accessed = ? WHERE hash = ?`,
		s.clock.Now().UnixMilli(), hash)
	if err != nil {
		return fmt.Errorf("store: touch %s: %w", hash, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Existing reports which of hashes are stored.
func (s *Store) Existing(ctx context.Context, hashes []string) (map[string]bool, error) {
	found := make(map[string]bool, len(hashes))
	const batch = 500
	for start := 0; start < len(hashes); start += batch {
		chunk := hashes[start:min(start+batch, len(hashes))]
		args := make([]any, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}
		query := `SELECT hash FROM voice_cache WHERE hash IN (?` + strings.Repeat(",?", len(chunk)-1) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("store: existing: %w", err)
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: existing: %w", err)
			}
			found[h] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("store: existing: %w", err)
		}
	}
	return found, nil
}

// VoiceStats returns per-voice totals ordered by accesses, busiest first.
func (s *Store) VoiceStats(ctx context.Context) ([]VoiceStat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT voice_id, COUNT(*), COALESCE(SUM(access_count), 0), COALESCE(SUM(size), 0)
FROM voice_cache GROUP BY voice_id ORDER BY 3 DESC, 1`)
	if err != nil {
		return nil, fmt.Errorf("store: voice stats: %w", err)
	}
	defer rows.Close()

	var stats []VoiceStat
	for rows.Next() {
		var vs VoiceStat
		if err := rows.Scan(&vs.VoiceID, &vs.Entries, &vs.Accesses, &vs.Bytes); err != nil {
			return nil, fmt.Errorf("store: voice stats: %w", err)
		}
		stats = append(stats, vs)
	}
	return stats, rows.Err()
}

// Delete removes hash.
func (s *Store) Delete(ctx context.Context, hash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM voice_cache WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("store: delete %s: %w", hash, err)
	}
	return nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM voice_cache`); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

// Count returns the number of records and the total uncompressed size.
func (s *Store) Count(ctx context.Context) (n int64, size int64, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM voice_cache`).Scan(&n, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("store: count: %w", err)
	}
	return n, size, nil
}

// Close releases the database and codecs.
func (s *Store) Close() error {
	s.decoder.Close()
	if err := s.encoder.Close(); err != nil {
		s.db.Close()
		return fmt.Errorf("store: close encoder: %w", err)
	}
	return s.db.Close()
}
