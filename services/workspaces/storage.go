package workspaces

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Storage handles database operations for workspaces
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new workspace storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// InitTables creates the necessary database tables for workspaces
func (s *Storage) InitTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS workspaces (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		description TEXT,
		source VARCHAR(100),
		label_selector VARCHAR(255),
		is_default BOOLEAN DEFAULT false,
		active BOOLEAN DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_workspaces_source ON workspaces(source);
	CREATE INDEX IF NOT EXISTS idx_workspaces_name ON workspaces(name);
	`

	_, err := s.db.Exec(query)
	return err
}

const workspaceColumns = `id, name, description, source, label_selector,
		is_default, active, created_at, updated_at`

func scanWorkspace(row interface{ Scan(...any) error }) (*Workspace, error) {
	ws := &Workspace{}
	var description, source, selector sql.NullString

	err := row.Scan(
		&ws.ID, &ws.Name, &description, &source, &selector,
		&ws.IsDefault, &ws.Active, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ws.Description = description.String
	ws.Source = source.String
	ws.LabelSelector = selector.String
	return ws, nil
}

// GetAll retrieves all workspaces
func (s *Storage) GetAll() ([]Workspace, error) {
	query := fmt.Sprintf(`SELECT %s FROM workspaces ORDER BY is_default DESC, name ASC`, workspaceColumns)

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("get all workspaces: %w", err)
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, *ws)
	}
	return out, rows.Err()
}

// GetByName retrieves a workspace by name
func (s *Storage) GetByName(name string) (*Workspace, error) {
	query := fmt.Sprintf(`SELECT %s FROM workspaces WHERE name = $1`, workspaceColumns)

	ws, err := scanWorkspace(s.db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace by name: %w", err)
	}
	return ws, nil
}

// Create creates a new workspace
func (s *Storage) Create(ws Workspace) (*Workspace, error) {
	query := `
	INSERT INTO workspaces (name, description, source, label_selector, is_default, active)
	VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6)
	RETURNING id, created_at, updated_at`

	err := s.db.QueryRow(
		query,
		ws.Name, ws.Description, ws.Source, ws.LabelSelector, ws.IsDefault, ws.Active,
	).Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateWorkspace
		}
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &ws, nil
}

// Delete deletes a workspace by ID
func (s *Storage) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrWorkspaceNotFound
	}
	return nil
}

// SetDefault marks a workspace as the default (and unsets any existing one)
func (s *Storage) SetDefault(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE workspaces SET is_default = false WHERE is_default = true`)
	if err != nil {
		return fmt.Errorf("unset current default: %w", err)
	}

	result, err := tx.Exec(`UPDATE workspaces SET is_default = true, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set new default: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrWorkspaceNotFound
	}

	return tx.Commit()
}

// Count returns the number of workspaces
func (s *Storage) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM workspaces`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count workspaces: %w", err)
	}
	return count, nil
}
