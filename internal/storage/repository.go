package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, email, name, passwordHash string) (core.User, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE email = ?`, email).Scan(&exists)
	if err != nil {
		return core.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return core.User{}, core.ErrEmailTaken
	}

	user := core.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, passwordHash, user.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", user.ID)
	return user, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		u.CreatedAt = t
	}
	return u, nil
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, tracked, budget_cents) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, boolToInt(c.Tracked), c.Budget.Cents)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, tracked, budget_cents FROM categories WHERE user_id = ? ORDER BY name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, tracked, budget_cents FROM categories WHERE id = ? AND user_id = ?`,
		id, userID)
	var c core.Category
	var tracked int
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &tracked, &c.Budget.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Tracked = tracked != 0
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := r.checkOwner(ctx, "categories", c.ID, c.UserID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, tracked = ?, budget_cents = ? WHERE id = ? AND user_id = ?`,
		c.Name, boolToInt(c.Tracked), c.Budget.Cents, c.ID, c.UserID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id string) error {
	if err := r.checkOwner(ctx, "categories", id, userID); err != nil {
		return err
	}

	var used int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM expenses WHERE category_id = ? AND user_id = ?`, id, userID).Scan(&used)
	if err != nil {
		return fmt.Errorf("check category usage: %w", err)
	}
	if used > 0 {
		return core.ErrCategoryInUse
	}

	// Subcategories go with their category.
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM subcategories WHERE category_id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("delete subcategories: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireAffected(res)
}

// --- subcategories ---

func (r *SQLiteRepository) CreateSubcategory(ctx context.Context, s core.Subcategory) (core.Subcategory, error) {
	// The parent category must belong to the same user.
	if _, err := r.GetCategory(ctx, s.UserID, s.CategoryID); err != nil {
		return core.Subcategory{}, err
	}

	s.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subcategories (id, user_id, category_id, name) VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, s.CategoryID, s.Name)
	if err != nil {
		return core.Subcategory{}, fmt.Errorf("create subcategory: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) ListSubcategories(ctx context.Context, userID string) ([]core.Subcategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, category_id, name FROM subcategories WHERE user_id = ? ORDER BY name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer rows.Close()

	var out []core.Subcategory
	for rows.Next() {
		var s core.Subcategory
		if err := rows.Scan(&s.ID, &s.UserID, &s.CategoryID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteSubcategory(ctx context.Context, userID, id string) error {
	if err := r.checkOwner(ctx, "subcategories", id, userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM subcategories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete subcategory: %w", err)
	}
	return requireAffected(res)
}

// --- helpers ---

// checkOwner verifies the row exists and belongs to userID. A missing row
// is ErrNotFound; somebody else's row is ErrUnauthorized. Writes still
// scope their WHERE clause by user_id so a concurrent owner change can
// never make them touch a foreign row.
func (r *SQLiteRepository) checkOwner(ctx context.Context, table, id, userID string) error {
	var query string
	switch table {
	case "categories":
		query = `SELECT user_id FROM categories WHERE id = ?`
	case "subcategories":
		query = `SELECT user_id FROM subcategories WHERE id = ?`
	case "expenses":
		query = `SELECT user_id FROM expenses WHERE id = ?`
	case "budget_shifts":
		query = `SELECT user_id FROM budget_shifts WHERE id = ?`
	case "recurring_expenses":
		query = `SELECT user_id FROM recurring_expenses WHERE id = ?`
	case "notes":
		query = `SELECT user_id FROM notes WHERE id = ?`
	default:
		return fmt.Errorf("unknown table %q", table)
	}

	var owner string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check owner: %w", err)
	}
	if owner != userID {
		return core.ErrUnauthorized
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (core.Category, error) {
	var c core.Category
	var tracked int
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &tracked, &c.Budget.Cents); err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	c.Tracked = tracked != 0
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
