// Package store persists snapshots in SQLite so sidekickd can serve them
// back by ID or per page.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/sidekick/dbopen"
	"github.com/hazyhaar/sidekick/snapshot"
)

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("store: snapshot not found")

// Store is the snapshot database handle.
type Store struct {
	DB *sql.DB

	// KeepPerPage bounds the snapshots kept per page URL; Save drops the
	// oldest beyond it. Zero keeps everything.
	KeepPerPage int
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Save inserts snap, replacing a row with the same ID, and prunes older
// snapshots of the same page beyond KeepPerPage.
func (s *Store) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("store: save: snapshot without id")
	}
	rules, err := json.Marshal(snap.Rules)
	if err != nil {
		return fmt.Errorf("store: save: %w", err)
	}

	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO snapshots
				(id, page_url, page_id, source, html, html_hash, markdown, rules, styled, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			snap.ID, snap.PageURL, snap.PageID, string(snap.Source), snap.HTML, snap.HTMLHash,
			snap.Markdown, string(rules), snap.Styled, snap.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("store: save: %w", err)
		}
		if s.KeepPerPage > 0 {
			if err := prunePage(ctx, tx, snap.PageURL, s.KeepPerPage); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the snapshot with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	snap := &snapshot.Snapshot{}
	var source, rules string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, page_url, page_id, source, html, html_hash, markdown, rules, styled, created_at
		FROM snapshots WHERE id = ?`, id).Scan(
		&snap.ID, &snap.PageURL, &snap.PageID, &source, &snap.HTML, &snap.HTMLHash,
		&snap.Markdown, &rules, &snap.Styled, &snap.Timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	snap.Source = snapshot.Source(source)
	if err := json.Unmarshal([]byte(rules), &snap.Rules); err != nil {
		return nil, fmt.Errorf("store: get: rules: %w", err)
	}
	return snap, nil
}

// List returns summaries, newest first. An empty pageURL lists every page;
// limit <= 0 defaults to 50.
func (s *Store) List(ctx context.Context, pageURL string, limit int) ([]snapshot.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, page_url, page_id, source, html_hash, length(html), created_at
		FROM snapshots`
	args := []any{}
	if pageURL != "" {
		query += ` WHERE page_url = ?`
		args = append(args, pageURL)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	out := []snapshot.Summary{}
	for rows.Next() {
		var sum snapshot.Summary
		var source string
		if err := rows.Scan(&sum.ID, &sum.PageURL, &sum.PageID, &source, &sum.HTMLHash, &sum.Size, &sum.Timestamp); err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		sum.Source = snapshot.Source(source)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes one snapshot. Deleting an unknown ID is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := dbopen.Exec(ctx, s.DB, `DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

// Prune keeps the newest keep snapshots of every page and returns how many
// rows were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := dbopen.Exec(ctx, s.DB, `
		DELETE FROM snapshots WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY page_url ORDER BY created_at DESC, id DESC) AS rn
				FROM snapshots)
			WHERE rn > ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}

func prunePage(ctx context.Context, tx *sql.Tx, pageURL string, keep int) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots WHERE page_url = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE page_url = ?
			ORDER BY created_at DESC, id DESC LIMIT ?)`,
		pageURL, pageURL, keep)
	if err != nil {
		return fmt.Errorf("store: prune page: %w", err)
	}
	return nil
}
