package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/models"
)

const (
	pgUniqueViolation = "23505"
	pgInvalidText     = "22P02"
	pgValueTooLong    = "22001"
)

// pgxQuerier is the subset of *pgxpool.Pool the store needs.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore handles user and book CRUD against PostgreSQL.
type PostgresStore struct {
	db pgxQuerier
}

func NewPostgresStore(db pgxQuerier) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresPool opens and pings a bounded connection pool.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return common.ErrDuplicateEmail
	}
	if err != nil {
		return pgError("create user", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "get user by email",
		`SELECT id::text, email, password_hash, created_at FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "get user by id",
		`SELECT id::text, email, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) getUser(ctx context.Context, op, query, arg string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, pgError(op, err)
	}
	return &u, nil
}

const bookColumns = `id::text, owner_id::text, title, author, status, start_date, end_date, comment, created_at, updated_at`

func (s *PostgresStore) InsertBook(ctx context.Context, b *models.Book) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO books (id, owner_id, title, author, status, start_date, end_date, comment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.OwnerID, b.Title, b.Author, string(b.Status), b.StartDate, b.EndDate, b.Comment, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return pgError("insert book", err)
	}
	return nil
}

func (s *PostgresStore) ListBooks(ctx context.Context, ownerID string, f models.BookFilter) ([]models.Book, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+bookColumns+` FROM books
		 WHERE owner_id = $1
		   AND ($2::text = '' OR status = $2)
		   AND ($3::text = '' OR strpos(lower(title), lower($3)) > 0 OR strpos(lower(author), lower($3)) > 0)
		 ORDER BY created_at DESC`,
		ownerID, string(f.Status), f.Query,
	)
	if err != nil {
		return nil, pgError("list books", err)
	}
	defer rows.Close()

	var list []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, pgError("list books", err)
		}
		list = append(list, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("list books", err)
	}
	return list, nil
}

func (s *PostgresStore) GetBook(ctx context.Context, ownerID, id string) (*models.Book, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1 AND owner_id = $2`, id, ownerID)
	b, err := scanBook(row)
	if err != nil {
		return nil, pgError("get book", err)
	}
	return b, nil
}

func (s *PostgresStore) UpdateBook(ctx context.Context, b *models.Book) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE books SET title = $3, author = $4, status = $5, start_date = $6, end_date = $7, comment = $8, updated_at = $9
		 WHERE id = $1 AND owner_id = $2`,
		b.ID, b.OwnerID, b.Title, b.Author, string(b.Status), b.StartDate, b.EndDate, b.Comment, b.UpdatedAt,
	)
	if err != nil {
		return pgError("update book", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteBook(ctx context.Context, ownerID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM books WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return pgError("delete book", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanBook(row pgx.Row) (*models.Book, error) {
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

// pgError maps driver errors onto the domain taxonomy.
func pgError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return common.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgInvalidText:
			return common.ErrNotFound
		case pgValueTooLong:
			return fmt.Errorf("%s: %w", op, common.ErrInvalidInput)
		}
	}
	return common.Unavailable(op, err)
}
