package flags

import (
	"context"
	"database/sql"
)

// Storage is the Postgres backend for the flag store: a single row with
// enumerated keys.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new flag storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// InitTables creates the admin_flags table
func (s *Storage) InitTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS admin_flags (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		incident_response_mode VARCHAR(32) NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_by VARCHAR(255)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Load returns the stored flags, or nil when no row exists yet.
func (s *Storage) Load(ctx context.Context) (*Flags, error) {
	query := `SELECT incident_response_mode, updated_at, COALESCE(updated_by, '') FROM admin_flags WHERE id = 1`

	f := &Flags{}
	err := s.db.QueryRowContext(ctx, query).Scan(&f.IncidentResponseMode, &f.UpdatedAt, &f.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Save upserts the single flags row.
func (s *Storage) Save(ctx context.Context, f Flags) error {
	query := `
	INSERT INTO admin_flags (id, incident_response_mode, updated_at, updated_by)
	VALUES (1, $1, $2, $3)
	ON CONFLICT (id) DO UPDATE
	SET incident_response_mode = EXCLUDED.incident_response_mode,
	    updated_at = EXCLUDED.updated_at,
	    updated_by = EXCLUDED.updated_by`

	_, err := s.db.ExecContext(ctx, query, f.IncidentResponseMode, f.UpdatedAt, f.UpdatedBy)
	return err
}
