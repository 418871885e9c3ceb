package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/models"
)

// SQLiteStore handles user and book CRUD against an embedded SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path, enables foreign keys and WAL, and migrates the schema.
func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if err := Migrate(ctx, db, goose.DialectSQLite3, log); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC(),
	)
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) && sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return common.ErrDuplicateEmail
	}
	if err != nil {
		return sqliteError("create user", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "get user by email",
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "get user by id",
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *SQLiteStore) getUser(ctx context.Context, op, query, arg string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, sqliteError(op, err)
	}
	return &u, nil
}

const sqliteBookColumns = `id, owner_id, title, author, status, start_date, end_date, comment, created_at, updated_at`

func (s *SQLiteStore) InsertBook(ctx context.Context, b *models.Book) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (`+sqliteBookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.Title, b.Author, string(b.Status), b.StartDate, b.EndDate, b.Comment,
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	if err != nil {
		return sqliteError("insert book", err)
	}
	return nil
}

func (s *SQLiteStore) ListBooks(ctx context.Context, ownerID string, f models.BookFilter) ([]models.Book, error) {
	q := strings.ToLower(f.Query)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteBookColumns+` FROM books
		 WHERE owner_id = ?
		   AND (? = '' OR status = ?)
		   AND (? = '' OR instr(lower(title), ?) > 0 OR instr(lower(author), ?) > 0)
		 ORDER BY created_at DESC, rowid DESC`,
		ownerID, string(f.Status), string(f.Status), q, q, q,
	)
	if err != nil {
		return nil, sqliteError("list books", err)
	}
	defer rows.Close()

	var list []models.Book
	for rows.Next() {
		b, err := scanSQLiteBook(rows)
		if err != nil {
			return nil, sqliteError("list books", err)
		}
		list = append(list, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError("list books", err)
	}
	return list, nil
}

func (s *SQLiteStore) GetBook(ctx context.Context, ownerID, id string) (*models.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteBookColumns+` FROM books WHERE id = ? AND owner_id = ?`, id, ownerID)
	b, err := scanSQLiteBook(row)
	if err != nil {
		return nil, sqliteError("get book", err)
	}
	return b, nil
}

func (s *SQLiteStore) UpdateBook(ctx context.Context, b *models.Book) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, status = ?, start_date = ?, end_date = ?, comment = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		b.Title, b.Author, string(b.Status), b.StartDate, b.EndDate, b.Comment, b.UpdatedAt.UTC(), b.ID, b.OwnerID,
	)
	if err != nil {
		return sqliteError("update book", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) DeleteBook(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return sqliteError("delete book", err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBook(row rowScanner) (*models.Book, error) {
	var b models.Book
	var status string
	err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Author, &status,
		&b.StartDate, &b.EndDate, &b.Comment, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookStatus(status)
	return &b, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return common.Unavailable("rows affected", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func sqliteError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	return common.Unavailable(op, err)
}
