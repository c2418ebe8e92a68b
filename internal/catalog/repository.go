package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository supplies the lookup tables from persistent storage.
type Repository interface {
	ListDevices(ctx context.Context) ([]Device, error)
	ListRules(ctx context.Context) ([]Rule, error)
}

// LoadRepository reads both tables from repo and builds a Catalog.
func LoadRepository(ctx context.Context, repo Repository) (*Catalog, error) {
	devices, err := repo.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	rules, err := repo.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading alert rules: %w", err)
	}
	return New(devices, rules)
}

// SQLiteRepository implements Repository using the devices and alert_rules tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed catalog repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListDevices returns all devices ordered by ID.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, location FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var id int64
		var loc string
		if err := rows.Scan(&id, &loc); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		if id < 0 {
			return nil, fmt.Errorf("%w: negative device id %d", ErrInvalidEntry, id)
		}
		devices = append(devices, Device{ID: DeviceID(id), Location: Location(loc)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// ListRules returns all alert rules ordered by location then type.
func (r *SQLiteRepository) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT location, message_type, resource FROM alert_rules ORDER BY location, message_type`)
	if err != nil {
		return nil, fmt.Errorf("querying alert rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.Location, &rule.Type, &rule.Resource); err != nil {
			return nil, fmt.Errorf("scanning alert rule row: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alert rule rows: %w", err)
	}
	return rules, nil
}

// ReplaceAll swaps the stored tables for the contents of c in one transaction.
// It is used to seed the database from a YAML configuration.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, c *Catalog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM alert_rules"); err != nil {
		return fmt.Errorf("clearing alert rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	for _, d := range c.Devices() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO devices (id, location) VALUES (?, ?)",
			int64(d.ID), string(d.Location), //nolint:gosec // SQLite INTEGER is signed; IDs above MaxInt64 are rejected by the CHECK
		); err != nil {
			return fmt.Errorf("inserting device %d: %w", d.ID, err)
		}
	}
	for _, rule := range c.Rules() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO alert_rules (location, message_type, resource) VALUES (?, ?, ?)",
			string(rule.Location), string(rule.Type), rule.Resource,
		); err != nil {
			return fmt.Errorf("inserting alert rule %s/%s: %w", rule.Location, rule.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tables: %w", err)
	}
	return nil
}

var _ Repository = (*SQLiteRepository)(nil)
