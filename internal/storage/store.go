// Package storage is the only path between domain entities and the SQLite
// store. It owns the schema, the row mappers, the transactional write
// discipline and the push-based read feeds.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"banyg/internal/core"
	"banyg/internal/log"
	"banyg/internal/watch"
)

// Store is an explicitly constructed database handle. The application entry
// point owns its lifecycle; collaborators receive it as a dependency.
type Store struct {
	db     *sql.DB
	path   string
	logger *log.Logger

	accountsHub *watch.Hub[[]core.Account]
	pendingHub  *watch.Hub[[]core.Transaction]
}

// Open creates the database file if needed, takes a pre-migration backup,
// replays pending migrations and returns a ready store. A migration failure
// aborts the open; the store is never reset destructively.
func Open(dbPath string, backups *BackupManager, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath, backups); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// All writes serialize through the engine's own locking; a single
	// connection avoids SQLITE_BUSY between overlapping writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newStore(db, dbPath, logger), nil
}

// NewWithDB wraps an existing connection. Used by tests that inject a mock
// or pre-opened database; no migrations are run.
func NewWithDB(db *sql.DB, logger *log.Logger) *Store {
	return newStore(db, "", logger)
}

func newStore(db *sql.DB, path string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Store{
		db:          db,
		path:        path,
		logger:      logger.WithComponent(log.ComponentStorage),
		accountsHub: watch.NewHub[[]core.Account](),
		pendingHub:  watch.NewHub[[]core.Transaction](),
	}
}

func dsn(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)"
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path ("" for injected connections).
func (s *Store) Path() string { return s.path }

// notifyChanges re-runs the reactive queries and publishes full snapshots to
// every subscriber. Called after each committed write.
func (s *Store) notifyChanges(ctx context.Context) {
	if s.accountsHub.Subscribers() > 0 {
		if accounts, err := s.ListActiveAccounts(ctx); err == nil {
			s.accountsHub.Publish(accounts)
		} else {
			s.logger.WarnContext(ctx, "refresh accounts feed", log.FieldError, err)
		}
	}
	if s.pendingHub.Subscribers() > 0 {
		if pending, err := s.ListPendingTransactions(ctx); err == nil {
			s.pendingHub.Publish(pending)
		} else {
			s.logger.WarnContext(ctx, "refresh pending feed", log.FieldError, err)
		}
	}
}

// WatchActiveAccounts returns a feed that emits the full current set of
// active accounts immediately and again after every change.
func (s *Store) WatchActiveAccounts(ctx context.Context) (<-chan []core.Account, error) {
	snapshot, err := s.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return withInitial(ctx, s.accountsHub, snapshot), nil
}

// WatchPendingTransactions returns a feed of the full current pending set,
// re-emitted on every change.
func (s *Store) WatchPendingTransactions(ctx context.Context) (<-chan []core.Transaction, error) {
	snapshot, err := s.ListPendingTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return withInitial(ctx, s.pendingHub, snapshot), nil
}

// withInitial prepends an initial snapshot to a hub subscription, keeping
// the latest-wins buffering of the hub itself.
func withInitial[T any](ctx context.Context, hub *watch.Hub[T], initial T) <-chan T {
	sub := hub.Subscribe(ctx)
	out := make(chan T, 1)
	out <- initial
	go func() {
		defer close(out)
		for snapshot := range sub {
			select {
			case out <- snapshot:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- snapshot:
				default:
				}
			}
		}
	}()
	return out
}
