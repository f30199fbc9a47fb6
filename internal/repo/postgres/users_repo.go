package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quorumlabs/pollhub/internal/domain/user"
	"github.com/quorumlabs/pollhub/internal/observability"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, name, email, password_hash, phone, role, role_accepted, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Phone,
		&u.Role,
		&u.RoleAccepted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash, phone, role, role_accepted, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			u.ID, u.Name, u.Email, u.PasswordHash, u.Phone, u.Role, u.RoleAccepted, u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		if isConstraint(err, "users_email_uniq") {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

// CreateTx inserts within an existing transaction; used by the invite flow so
// the user row and its invite-email job commit atomically.
func (r *UsersRepo) CreateTx(ctx context.Context, tx pgx.Tx, u user.User) (user.User, error) {
	err := r.observe("users.create_tx", func() error {
		_, e := tx.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash, phone, role, role_accepted, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			u.ID, u.Name, u.Email, u.PasswordHash, u.Phone, u.Role, u.RoleAccepted, u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		if isConstraint(err, "users_email_uniq") {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// ListByRole returns all users with the given role, newest first.
func (r *UsersRepo) ListByRole(ctx context.Context, role string) ([]user.User, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("users.list_by_role", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at DESC, id ASC`, role)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	users := make([]user.User, 0)

	for rows.Next() {
		u, e := scanUser(rows)
		if e != nil {
			return nil, e
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (r *UsersRepo) UpdateRole(ctx context.Context, id, role string) (user.User, error) {
	var u user.User

	err := r.observe("users.update_role", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`UPDATE users SET role = $2, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+userColumns, id, role))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// AcceptRole flips role_accepted and sets the credential exactly once: an
// existing password_hash is never overwritten, so acceptance is a one-way
// transition even when called with a new password.
func (r *UsersRepo) AcceptRole(ctx context.Context, id string, passwordHash *string) (user.User, error) {
	var u user.User

	err := r.observe("users.accept_role", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`UPDATE users
			 SET role_accepted = TRUE,
			     password_hash = COALESCE(password_hash, $2),
			     updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+userColumns, id, passwordHash))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// Delete removes the user record only. Votes and polls referencing the user
// are left behind on purpose: historical tallies must survive.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.observe("users.delete", func() error {
		tag, e := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if e != nil {
			return e
		}
		affected = tag.RowsAffected()
		return nil
	})

	if err != nil {
		return err
	}

	if affected == 0 {
		return user.ErrNotFound
	}

	return nil
}
