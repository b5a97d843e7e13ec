package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

const profileColumns = `name, description, credentials, created_at, updated_at`

// InsertProfile stores a new profile. Duplicate names are rejected.
func (s *SQLiteStore) InsertProfile(ctx context.Context, p *core.DatabaseProfile) error {
	if s.db == nil {
		return errNotOpened
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		p.Name, p.Description, p.Credentials, toNanos(p.CreatedAt), toNanos(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewError(core.KindDuplicateProfile, p.Name, "profile already exists")
	}
	return nil
}

// ReplaceProfile overwrites the description and credentials of an existing profile.
func (s *SQLiteStore) ReplaceProfile(ctx context.Context, p *core.DatabaseProfile) error {
	if s.db == nil {
		return errNotOpened
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET description = ?, credentials = ?, updated_at = ? WHERE name = ?`,
		p.Description, p.Credentials, toNanos(p.UpdatedAt), p.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewError(core.KindNotFound, p.Name, "profile not found")
	}
	return nil
}

// DeleteProfile removes a profile by name.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, name string) error {
	if s.db == nil {
		return errNotOpened
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewError(core.KindNotFound, name, "profile not found")
	}
	return nil
}

// GetProfile retrieves a profile by name.
func (s *SQLiteStore) GetProfile(ctx context.Context, name string) (*core.DatabaseProfile, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewError(core.KindNotFound, name, "profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns all profiles in insertion order.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]*core.DatabaseProfile, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.DatabaseProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(sc scanner) (*core.DatabaseProfile, error) {
	var (
		p                core.DatabaseProfile
		created, updated int64
	)
	if err := sc.Scan(&p.Name, &p.Description, &p.Credentials, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}
