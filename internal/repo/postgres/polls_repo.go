package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quorumlabs/pollhub/internal/domain/poll"
	"github.com/quorumlabs/pollhub/internal/observability"
)

type PollsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewPollsRepo(pool *pgxpool.Pool, prom *observability.Prom) *PollsRepo {
	return &PollsRepo{pool: pool, prom: prom}
}

func (r *PollsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const pollColumns = `id, title, description, options, is_active, created_by, created_at, updated_at`

func scanPoll(row pgx.Row) (poll.Poll, error) {
	var p poll.Poll

	// options is JSONB; pgx unmarshals it straight into the slice.
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Options,
		&p.IsActive,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	return p, err
}

func (r *PollsRepo) Create(ctx context.Context, p poll.Poll) (poll.Poll, error) {
	err := r.observe("polls.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO polls (id, title, description, options, is_active, created_by, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			p.ID, p.Title, p.Description, p.Options, p.IsActive, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
		)
		return e
	})

	if err != nil {
		return poll.Poll{}, err
	}

	return p, nil
}

func (r *PollsRepo) GetByID(ctx context.Context, id string) (poll.Poll, error) {
	var p poll.Poll

	err := r.observe("polls.get_by_id", func() error {
		var e error
		p, e = scanPoll(r.pool.QueryRow(ctx,
			`SELECT `+pollColumns+` FROM polls WHERE id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return poll.Poll{}, poll.ErrNotFound
		}
		return poll.Poll{}, err
	}

	return p, nil
}

// List returns polls newest first. activeOnly narrows to open polls.
func (r *PollsRepo) List(ctx context.Context, activeOnly bool) ([]poll.Poll, error) {
	q := `SELECT ` + pollColumns + ` FROM polls ORDER BY created_at DESC, id ASC`

	if activeOnly {
		q = `SELECT ` + pollColumns + ` FROM polls WHERE is_active ORDER BY created_at DESC, id ASC`
	}

	var rows pgx.Rows
	var err error

	err = r.observe("polls.list", func() error {
		rows, err = r.pool.Query(ctx, q)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	polls := make([]poll.Poll, 0)

	for rows.Next() {
		p, e := scanPoll(rows)
		if e != nil {
			return nil, e
		}
		polls = append(polls, p)
	}

	return polls, rows.Err()
}

func (r *PollsRepo) Update(ctx context.Context, id string, req poll.UpdatePollRequest) (poll.Poll, error) {
	var p poll.Poll

	err := r.observe("polls.update", func() error {
		var e error
		p, e = scanPoll(r.pool.QueryRow(ctx,
			`UPDATE polls
			 SET title = COALESCE($2, title),
			     description = COALESCE($3, description),
			     is_active = COALESCE($4, is_active),
			     updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+pollColumns,
			id, req.Title, req.Description, req.IsActive))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return poll.Poll{}, poll.ErrNotFound
		}
		return poll.Poll{}, err
	}

	return p, nil
}

func (r *PollsRepo) ToggleActive(ctx context.Context, id string) (poll.Poll, error) {
	var p poll.Poll

	err := r.observe("polls.toggle_active", func() error {
		var e error
		p, e = scanPoll(r.pool.QueryRow(ctx,
			`UPDATE polls SET is_active = NOT is_active, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+pollColumns, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return poll.Poll{}, poll.ErrNotFound
		}
		return poll.Poll{}, err
	}

	return p, nil
}

// DeleteWithVotes removes the poll's votes and then the poll, both inside one
// transaction so a crash can never orphan vote rows.
func (r *PollsRepo) DeleteWithVotes(ctx context.Context, id string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return
	}

	defer func() { _ = tx.Rollback(ctx) }()

	err = r.observe("polls.delete_cascade_votes", func() error {
		_, e := tx.Exec(ctx, `DELETE FROM votes WHERE poll_id = $1`, id)
		return e
	})

	if err != nil {
		return
	}

	var affected int64

	err = r.observe("polls.delete", func() error {
		tag, e := tx.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
		if e != nil {
			return e
		}
		affected = tag.RowsAffected()
		return nil
	})

	if err != nil {
		return
	}

	if affected == 0 {
		err = poll.ErrNotFound
		return
	}

	err = tx.Commit(ctx)

	return
}
