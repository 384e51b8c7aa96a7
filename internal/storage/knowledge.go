package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

// --- notes ---

func (r *SQLiteRepository) CreateNote(ctx context.Context, n core.Note) (core.Note, error) {
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, title, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Body, n.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return core.Note{}, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ListNotes(ctx context.Context, userID string) ([]core.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, body, created_at FROM notes WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []core.Note
	for rows.Next() {
		var n core.Note
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			n.CreatedAt = t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteNote(ctx context.Context, userID, id string) error {
	if err := r.checkOwner(ctx, "notes", id, userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return requireAffected(res)
}

// --- knowledge-base articles ---

func (r *SQLiteRepository) ListArticles(ctx context.Context) ([]core.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, body FROM kb_articles ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []core.Article
	for rows.Next() {
		var a core.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Body); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
