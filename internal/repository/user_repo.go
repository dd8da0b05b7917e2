package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"blogsphere/internal/domain"
)

// ErrDuplicateEmail se devuelve cuando el índice único de email rechaza la escritura.
var ErrDuplicateEmail = errors.New("email already exists")

const pgUniqueViolation = "23505"

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (int64, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	EmailTakenByOther(ctx context.Context, email string, id int64) (bool, error)
	UpdateProfile(ctx context.Context, id int64, username, email string) error
	UpdateProfileAndPassword(ctx context.Context, id int64, username, email, passwordHash string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

// Create inserta el usuario y devuelve el id generado. Un email vacío se
// guarda como NULL.
func (r *PgUserRepository) Create(ctx context.Context, user domain.User) (int64, error) {
	const query = `
		INSERT INTO users (username, email, password)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return id, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	const query = `
		SELECT id, username, COALESCE(email, ''), password, created_at
		FROM users
		WHERE id = $1
	`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT id, username, COALESCE(email, ''), password, created_at
		FROM users
		WHERE email = $1
	`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) EmailTakenByOther(ctx context.Context, email string, id int64) (bool, error) {
	const query = `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)
	`
	var taken bool
	err := r.pool.QueryRow(ctx, query, email, id).Scan(&taken)
	return taken, err
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id int64, username, email string) error {
	const query = `
		UPDATE users SET username = $2, email = NULLIF($3, '')
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, username, email)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) UpdateProfileAndPassword(ctx context.Context, id int64, username, email, passwordHash string) error {
	const query = `
		UPDATE users SET username = $2, email = NULLIF($3, ''), password = $4
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, username, email, passwordHash)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}
