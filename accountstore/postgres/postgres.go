// Package postgres is an otpAuth.AccountStore over PostgreSQL through the pgx
// database/sql driver. The schema ships as embedded goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/otpAuth"
	"github.com/MrEthical07/otpAuth/accountstore/postgres/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements otpAuth.AccountStore.
type Store struct {
	db DBTX
}

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects with the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

const selectAccount = `SELECT id, username, email, password_hash, role, email_verified, created_at, updated_at FROM accounts`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*otpAuth.Account, error) {
	var a otpAuth.Account
	var role string
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &role, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = otpAuth.Role(role)
	return &a, nil
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*otpAuth.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otpAuth.ErrStoreNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// FindByIdentifier matches email or username in one query.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*otpAuth.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE email = $1 OR username = $1 LIMIT 1`, identifier)
}

func (s *Store) FindByID(ctx context.Context, id string) (*otpAuth.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE id = $1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*otpAuth.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE email = $1`, email)
}

func (s *Store) Exists(ctx context.Context, email, username string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1 OR username = $2)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, email, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (s *Store) Create(ctx context.Context, a *otpAuth.Account) error {
	query :=
		`INSERT INTO accounts (id, username, email, password_hash, role, email_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Username, a.Email, a.PasswordHash, string(a.Role), a.EmailVerified, a.CreatedAt, a.UpdatedAt)
	return mapWriteError(err)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return otpAuth.ErrStoreNotFound
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

func (s *Store) UpdateUsername(ctx context.Context, id, username string) error {
	return s.exec(ctx, `UPDATE accounts SET username = $2, updated_at = now() WHERE id = $1`, id, username)
}

func (s *Store) UpdateRole(ctx context.Context, id string, role otpAuth.Role) error {
	return s.exec(ctx, `UPDATE accounts SET role = $2, updated_at = now() WHERE id = $1`, id, string(role))
}

func (s *Store) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	return s.exec(ctx, `UPDATE accounts SET email_verified = $2, updated_at = now() WHERE id = $1`, id, verified)
}

func (s *Store) List(ctx context.Context) ([]otpAuth.Account, error) {
	rows, err := s.db.QueryContext(ctx, selectAccount+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []otpAuth.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", otpAuth.ErrStoreConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("db error: %w", err)
}

var _ otpAuth.AccountStore = (*Store)(nil)
