package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aquamarinepk/aqm"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quickserveclub/quickserve/internal/order"
)

//go:embed schema.sql
var schemaSQL string

// Snapshot keys. Each list is independently loadable so the UI can render
// before any network round-trip completes.
const (
	KeyOrders = "orders"
	KeyMenus  = "menus"
	KeyVenues = "venues"
	KeyUsers  = "users"
)

// Store is the durable local snapshot of last-known state, backed by SQLite
// with WAL mode. It survives restarts; locks and watermarks do not live here.
type Store struct {
	db     *sql.DB
	logger aqm.Logger
	config *aqm.Config
}

func NewStore(config *aqm.Config, logger aqm.Logger) *Store {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Store{
		logger: logger,
		config: config,
	}
}

func (s *Store) Start(ctx context.Context) error {
	path, _ := s.config.GetString("snapshot.path")
	if path == "" {
		path = "quickserve-snapshot.db"
	}
	return s.open(path)
}

func (s *Store) Stop(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Open creates or opens a snapshot database at the given path. Exposed for
// tests and tooling; the lifecycle path goes through Start.
func Open(path string, logger aqm.Logger) (*Store, error) {
	st := NewStore(nil, logger)
	if err := st.open(path); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) open(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to snapshot database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY on concurrent merges.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("failed to apply snapshot schema: %w", err)
	}

	s.db = db
	s.logger.Info("snapshot store ready", "path", path)
	return nil
}

// Put upserts the blob stored under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	return nil
}

// Get returns the blob stored under key, or nil when none exists.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE key = ?", key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	return data, nil
}

// SaveOrders persists the canonical order list.
func (s *Store) SaveOrders(ctx context.Context, orders []order.Order) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("failed to encode order snapshot: %w", err)
	}
	return s.Put(ctx, KeyOrders, data)
}

// LoadOrders returns the last persisted order list, empty when none exists
// or the stored blob is unreadable.
func (s *Store) LoadOrders(ctx context.Context) ([]order.Order, error) {
	data, err := s.Get(ctx, KeyOrders)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []order.Order{}, nil
	}

	var orders []order.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		s.logger.Error("order snapshot corrupt, ignoring", "error", err)
		return []order.Order{}, nil
	}
	return orders, nil
}
