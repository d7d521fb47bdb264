package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Manifest keys.
const (
	manifestModel      = "embedding_model"
	manifestDimensions = "embedding_dimensions"
	manifestChunkCount = "chunk_count"
	manifestRunID      = "run_id"
	manifestBuiltAt    = "built_at"
)

// ErrNoManifest is returned when the chunk database has no manifest, which
// means the build that produced it never completed.
var ErrNoManifest = errors.New("index manifest missing")

// ChunkStore keeps chunks, their embeddings and the index manifest in SQLite.
type ChunkStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenChunkStore opens (creating if needed) the chunk database at path.
// An empty path opens an in-memory database.
func OpenChunkStore(path string) (*ChunkStore, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer during builds, and readers share the
	// store behind the RWMutex.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Rollback journal, not WAL: a finished index is a single self-contained
	// file that can be renamed with its directory.
	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &ChunkStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *ChunkStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id        TEXT PRIMARY KEY,
		seq       INTEGER NOT NULL UNIQUE,
		content   TEXT NOT NULL,
		metadata  TEXT NOT NULL,
		embedding BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS manifest (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveChunks inserts chunks with their embeddings in one transaction.
func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, seq, content, metadata, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Seq, c.Content, string(meta), encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// GetChunks returns the chunks for ids in the order given. Unknown IDs are skipped.
func (s *ChunkStore) GetChunks(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return []Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, content, metadata FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]Chunk, len(ids))
	for rows.Next() {
		var (
			c    Chunk
			meta string
		)
		if err := rows.Scan(&c.ID, &c.Seq, &c.Content, &meta); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if c.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("decode metadata of chunk %s: %w", c.ID, err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	out := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Embeddings returns every stored chunk ID with its embedding, in build order.
func (s *ChunkStore) Embeddings(ctx context.Context) ([]string, [][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, errStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		ids     []string
		vectors [][]float32
	)
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("chunk %s: %w", id, err)
		}
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}
	return ids, vectors, rows.Err()
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errStoreClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// WriteManifest stores m. Writing the manifest is the last step of a build.
func (s *ChunkStore) WriteManifest(ctx context.Context, m Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	values := map[string]string{
		manifestModel:      m.Model,
		manifestDimensions: strconv.Itoa(m.Dimensions),
		manifestChunkCount: strconv.Itoa(m.ChunkCount),
		manifestRunID:      m.RunID,
		manifestBuiltAt:    m.BuiltAt.UTC().Format(time.RFC3339Nano),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manifest (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("write manifest %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// ReadManifest loads the manifest. ErrNoManifest means an incomplete index.
func (s *ChunkStore) ReadManifest(ctx context.Context) (Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Manifest{}, errStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM manifest`)
	if err != nil {
		return Manifest{}, fmt.Errorf("query manifest: %w", err)
	}
	defer func() { _ = rows.Close() }()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Manifest{}, fmt.Errorf("scan manifest: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Manifest{}, fmt.Errorf("iterate manifest: %w", err)
	}
	if len(values) == 0 {
		return Manifest{}, ErrNoManifest
	}

	var m Manifest
	m.Model = values[manifestModel]
	m.RunID = values[manifestRunID]
	for key, dst := range map[string]*int{
		manifestDimensions: &m.Dimensions,
		manifestChunkCount: &m.ChunkCount,
	} {
		n, err := strconv.Atoi(values[key])
		if err != nil {
			return Manifest{}, fmt.Errorf("manifest %s: %w", key, err)
		}
		*dst = n
	}
	if built := values[manifestBuiltAt]; built != "" {
		t, err := time.Parse(time.RFC3339Nano, built)
		if err != nil {
			return Manifest{}, fmt.Errorf("manifest %s: %w", manifestBuiltAt, err)
		}
		m.BuiltAt = t
	}
	return m, nil
}

// Close closes the database.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// decodeMetadata restores integer metadata values (page, row) as
// int rather than float64.
func decodeMetadata(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var meta map[string]any
	if err := dec.Decode(&meta); err != nil {
		return nil, err
	}
	for k, v := range meta {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		if n, err := num.Int64(); err == nil {
			meta[k] = int(n)
		} else if f, err := num.Float64(); err == nil {
			meta[k] = f
		}
	}
	return meta, nil
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
