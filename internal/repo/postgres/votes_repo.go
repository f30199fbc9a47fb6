package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quorumlabs/pollhub/internal/domain/poll"
	"github.com/quorumlabs/pollhub/internal/domain/vote"
	"github.com/quorumlabs/pollhub/internal/observability"
)

type VotesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewVotesRepo(pool *pgxpool.Pool, prom *observability.Prom) *VotesRepo {
	return &VotesRepo{pool: pool, prom: prom}
}

func (r *VotesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Create inserts the vote and lets votes_poll_user_uniq arbitrate races: when
// two requests for the same (poll, user) pass the handler's pre-check
// simultaneously, exactly one insert wins and the loser surfaces here as
// ErrDuplicate.
func (r *VotesRepo) Create(ctx context.Context, v vote.Vote) (vote.Vote, error) {
	err := r.observe("votes.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO votes (id, poll_id, user_id, option_id, created_at)
			 VALUES ($1,$2,$3,$4,$5)`,
			v.ID, v.PollID, v.UserID, v.OptionID, v.CreatedAt,
		)
		return e
	})

	if err != nil {
		if isConstraint(err, "votes_poll_user_uniq") {
			return vote.Vote{}, vote.ErrDuplicate
		}
		return vote.Vote{}, err
	}

	return v, nil
}

func (r *VotesRepo) GetByPollAndUser(ctx context.Context, pollID, userID string) (vote.Vote, error) {
	var v vote.Vote

	err := r.observe("votes.get_by_poll_and_user", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, poll_id, user_id, option_id, created_at
			 FROM votes
			 WHERE poll_id = $1 AND user_id = $2`,
			pollID, userID,
		).Scan(&v.ID, &v.PollID, &v.UserID, &v.OptionID, &v.CreatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vote.Vote{}, vote.ErrNotFound
		}
		return vote.Vote{}, err
	}

	return v, nil
}

func (r *VotesRepo) ListByPoll(ctx context.Context, pollID string) ([]vote.Vote, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("votes.list_by_poll", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT id, poll_id, user_id, option_id, created_at
			 FROM votes
			 WHERE poll_id = $1
			 ORDER BY created_at DESC, id ASC`, pollID)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	votes := make([]vote.Vote, 0)

	for rows.Next() {
		var v vote.Vote
		if e := rows.Scan(&v.ID, &v.PollID, &v.UserID, &v.OptionID, &v.CreatedAt); e != nil {
			return nil, e
		}
		votes = append(votes, v)
	}

	return votes, rows.Err()
}

// CountByOption is the live tally: counts grouped straight off the votes
// table, never a cached counter.
func (r *VotesRepo) CountByOption(ctx context.Context, pollID string) (map[string]int, int, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("votes.count_by_option", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT option_id, COUNT(*)
			 FROM votes
			 WHERE poll_id = $1
			 GROUP BY option_id`, pollID)
		return err
	})

	if err != nil {
		return nil, 0, err
	}

	defer rows.Close()

	counts := make(map[string]int)
	total := 0

	for rows.Next() {
		var optionID string
		var n int

		if e := rows.Scan(&optionID, &n); e != nil {
			return nil, 0, e
		}

		counts[optionID] = n
		total += n
	}

	return counts, total, rows.Err()
}

// ListHistoryByUser joins each of the user's votes with its poll so the
// handler can render titles and option text. Votes whose poll has been
// deleted out-of-band are skipped by the inner join.
func (r *VotesRepo) ListHistoryByUser(ctx context.Context, userID string) ([]vote.HistoryEntry, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("votes.list_history_by_user", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT v.id, v.poll_id, p.title, v.option_id, p.options, v.created_at
			 FROM votes v
			 JOIN polls p ON p.id = v.poll_id
			 WHERE v.user_id = $1
			 ORDER BY v.created_at DESC, v.id ASC`, userID)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	entries := make([]vote.HistoryEntry, 0)

	for rows.Next() {
		var entry vote.HistoryEntry
		var options []poll.Option

		if e := rows.Scan(&entry.VoteID, &entry.PollID, &entry.PollTitle, &entry.OptionID, &options, &entry.VotedAt); e != nil {
			return nil, e
		}

		entry.OptionText = optionText(options, entry.OptionID)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func optionText(options []poll.Option, optionID string) string {
	for _, opt := range options {
		if opt.ID == optionID {
			return opt.Text
		}
	}

	// The option was edited away after the vote was cast.
	return "option no longer exists"
}
