package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"

	"github.com/NotCoffee418/dbmigrator"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var ErrStoreNotMigrated = errors.New("store: config_entries table missing after migration")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// a single writer keeps sqlite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'config_entries'").Scan(&name)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreNotMigrated, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, host, selection, scan_interval, created_at FROM config_entries ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var entries []domain.ConfigEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.ConfigEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, host, selection, scan_interval, created_at FROM config_entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (s *SQLiteStore) Save(ctx context.Context, entry domain.ConfigEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO config_entries (id, title, host, selection, scan_interval, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			host = excluded.host,
			selection = excluded.selection,
			scan_interval = excluded.scan_interval`,
		entry.Id, entry.Title, entry.Host, entry.Selection, entry.Options.ScanInterval,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save %s: %w", entry.Id, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM config_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.ConfigEntry, error) {
	var (
		e         domain.ConfigEntry
		createdAt string
	)
	if err := row.Scan(&e.Id, &e.Title, &e.Host, &e.Selection, &e.Options.ScanInterval, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: entry %s: bad created_at: %w", e.Id, err)
	}
	e.CreatedAt = t
	return &e, nil
}
