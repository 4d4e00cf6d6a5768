// Package store implements the persistent similarity index over reference
// records. Entries are embedded once at seed time and ranked by cosine
// similarity at query time. Writes happen only during the one-time seed
// phase; afterwards the store is read-only and safe for unlimited
// concurrent readers.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"satei/internal/embedding"
	"satei/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id        TEXT PRIMARY KEY,
	title     TEXT NOT NULL,
	price_jpy INTEGER NOT NULL,
	source    TEXT NOT NULL,
	content   TEXT NOT NULL,
	embedding TEXT NOT NULL
);
`

// Store is a durable local similarity index backed by sqlite.
type Store struct {
	db     *sql.DB
	engine embedding.Engine
	logger *zap.Logger

	mu     sync.RWMutex
	seeded bool
}

// QueryResult is one retrieval hit with its similarity score.
type QueryResult struct {
	Entry      types.RetrievalEntry
	Similarity float64
}

// Open opens (creating if needed) the index at path.
func Open(path string, engine embedding.Engine, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify index database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create entries table: %w", err)
	}
	return &Store{
		db:     db,
		engine: engine,
		logger: logger,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EntryID derives the stable identity of a reference record. Re-seeding an
// already-present record is a no-op.
func EntryID(entry types.RetrievalEntry) string {
	sum := sha256.Sum256([]byte(entry.Source + "|" + entry.Title))
	return hex.EncodeToString(sum[:])
}

// Seed embeds and inserts any record not already present, then marks the
// store ready for queries. It must run to completion before the first
// query; there is no partial-seed visibility. Returns the number of
// newly-inserted records.
func (s *Store) Seed(ctx context.Context, entries []types.RetrievalEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []types.RetrievalEntry
	var missingIDs []string
	for _, entry := range entries {
		id := EntryID(entry)
		var exists bool
		if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM entries WHERE id = ?)", id).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check entry %s: %w", id, err)
		}
		if !exists {
			missing = append(missing, entry)
			missingIDs = append(missingIDs, id)
		}
	}

	if len(missing) == 0 {
		s.seeded = true
		s.logger.Info("retrieval store already seeded", zap.Int("corpus", len(entries)))
		return 0, nil
	}

	texts := make([]string, len(missing))
	for i, entry := range missing {
		texts[i] = entry.Title + "\n" + entry.Content
	}
	vectors, err := s.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed seed records: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for i, entry := range missing {
		vecJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return 0, fmt.Errorf("failed to serialize embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entries (id, title, price_jpy, source, content, embedding) VALUES (?, ?, ?, ?, ?, ?)",
			missingIDs[i], entry.Title, entry.PriceJPY, entry.Source, entry.Content, string(vecJSON),
		); err != nil {
			return 0, fmt.Errorf("failed to insert entry %q: %w", entry.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	s.seeded = true
	s.logger.Info("retrieval store seeded",
		zap.Int("corpus", len(entries)),
		zap.Int("added", len(missing)),
		zap.String("engine", s.engine.Name()))
	return len(missing), nil
}

// Query embeds the query text and returns the k most similar entries, most
// similar first. Returns fewer than k when the corpus is smaller. Entries
// with equal scores keep their seed order.
func (s *Store) Query(ctx context.Context, text string, k int) ([]QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.seeded {
		return nil, fmt.Errorf("retrieval store queried before seeding completed")
	}
	if k <= 0 {
		k = 4
	}

	queryVec, err := s.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT title, price_jpy, source, content, embedding FROM entries ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var entry types.RetrievalEntry
		var vecJSON string
		if err := rows.Scan(&entry.Title, &entry.PriceJPY, &entry.Source, &entry.Content, &vecJSON); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			s.logger.Warn("skipping entry with unreadable embedding", zap.String("title", entry.Title))
			continue
		}

		similarity, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			s.logger.Warn("skipping entry with mismatched embedding", zap.String("title", entry.Title))
			continue
		}

		results = append(results, QueryResult{Entry: entry, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of indexed entries.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}
