package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const itemsLock = "items"

// DefaultLeaseTTL is how long a lock outlives a holder that stopped renewing it.
const DefaultLeaseTTL = 30 * time.Second

var (
	// ErrLocked is returned when another process holds the items lock.
	ErrLocked = errors.New("database is in use by another mnemo process")
	// ErrLockLost is returned by Persist when the lease expired and was taken over.
	ErrLockLost = errors.New("items lock lost")
)

// Lease is an exclusive, renewed claim on the stored items.
type Lease struct {
	store *SQLiteStore
	owner string
	ttl   time.Duration

	stop    chan struct{}
	done    chan struct{}
	release sync.Once
}

// Lock claims the items for this process until Release. The claim is renewed
// every ttl/3 and lapses after ttl if the process dies. While it is held,
// Persist refuses to write if another process took the claim over.
func (s *SQLiteStore) Lock(ctx context.Context, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	host, _ := os.Hostname()
	owner := fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString())

	holder, err := s.claim(ctx, itemsLock, owner, time.Now(), ttl)
	if err != nil {
		return nil, err
	}
	if holder != owner {
		return nil, fmt.Errorf("%w (held by %s)", ErrLocked, holder)
	}

	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()

	l := &Lease{
		store: s,
		owner: owner,
		ttl:   ttl,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.renew()
	return l, nil
}

// claim takes the named lock for owner when it is free, expired or already
// owner's, and returns the resulting holder.
func (s *SQLiteStore) claim(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (string, error) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO locks (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE locks.expires_at <= ? OR locks.owner = excluded.owner`,
		name, owner, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to claim lock: %w", err)
	}
	var holder string
	if err := s.db.QueryRowContext(ctx, `SELECT owner FROM locks WHERE name = ?`, name).Scan(&holder); err != nil {
		return "", fmt.Errorf("failed to read lock: %w", err)
	}
	return holder, nil
}

func (l *Lease) renew() {
	defer close(l.done)
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			_, _ = l.store.db.ExecContext(ctx, `UPDATE locks SET expires_at = ? WHERE name = ? AND owner = ?`,
				time.Now().Add(l.ttl).UnixNano(), itemsLock, l.owner)
			cancel()
		}
	}
}

// Release stops renewing and frees the lock. Call it after the final Persist.
func (l *Lease) Release() error {
	var err error
	l.release.Do(func() {
		close(l.stop)
		<-l.done
		l.store.mu.Lock()
		if l.store.owner == l.owner {
			l.store.owner = ""
		}
		l.store.mu.Unlock()
		_, err = l.store.db.Exec(`DELETE FROM locks WHERE name = ? AND owner = ?`, itemsLock, l.owner)
	})
	return err
}

// checkOwner fails when this store holds the items lock but another
// process has since taken it over.
func (s *SQLiteStore) checkOwner(ctx context.Context, tx *sql.Tx) error {
	s.mu.Lock()
	owner := s.owner
	s.mu.Unlock()
	if owner == "" {
		return nil
	}
	var holder string
	err := tx.QueryRowContext(ctx, `SELECT owner FROM locks WHERE name = ?`, itemsLock).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && holder != owner) {
		return ErrLockLost
	}
	return err
}
