package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/memory"
)

// Persist replaces the stored snapshot with items in one transaction. While
// a Lease is held it fails with ErrLockLost if the lease was taken over.
func (s *SQLiteStore) Persist(ctx context.Context, items []memory.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkOwner(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO items
		(id, position, content, metadata, vector, created_at, ttl_seconds, last_accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		vec, err := encodeVector(item.Embedding)
		if err != nil {
			return err
		}
		var meta sql.NullString
		if item.Metadata != nil {
			b, err := json.Marshal(item.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata for %s: %w", item.ID, err)
			}
			meta = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			item.ID, i, item.Content, meta, vec,
			item.CreatedAt.UnixNano(), item.TTLSeconds,
			item.LastAccessedAt.UnixNano(), item.AccessCount,
		); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot in insertion order.
func (s *SQLiteStore) Load(ctx context.Context) ([]memory.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, vector, created_at, ttl_seconds, last_accessed_at, access_count
		FROM items ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []memory.Item
	for rows.Next() {
		var (
			item         memory.Item
			meta         sql.NullString
			vecBlob      []byte
			created      int64
			lastAccessed int64
		)
		if err := rows.Scan(&item.ID, &item.Content, &meta, &vecBlob, &created, &item.TTLSeconds, &lastAccessed, &item.AccessCount); err != nil {
			return nil, err
		}

		item.Embedding, err = decodeVector(vecBlob)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &item.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", item.ID, err)
			}
		}
		item.CreatedAt = time.Unix(0, created)
		item.LastAccessedAt = time.Unix(0, lastAccessed)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Count returns the number of persisted items.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

func encodeVector(v []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return v, nil
}
