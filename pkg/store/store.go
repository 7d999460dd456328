package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store implements tournament persistence backed by PostgreSQL.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger zerolog.Logger
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.With().Str("component", "store").Logger(),
	}
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const tournamentColumns = `id, title, starts_at, ends_at, location, status, finalized_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTournament(row rowScanner) (*Tournament, error) {
	var (
		t           Tournament
		endsAt      sql.NullTime
		location    sql.NullString
		status      string
		finalizedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Title, &t.StartsAt, &endsAt, &location, &status, &finalizedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Location = location.String
	t.Status = TournamentStatus(status)
	if endsAt.Valid {
		t.EndsAt = &endsAt.Time
	}
	if finalizedAt.Valid {
		t.FinalizedAt = &finalizedAt.Time
	}
	return &t, nil
}

// GetTournament returns the tournament with id, or ErrNotFound.
func (s *Store) GetTournament(ctx context.Context, id int64) (*Tournament, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tournamentColumns+`
		FROM tournaments
		WHERE id = $1
	`, id)

	t, err := scanTournament(row)
	if err != nil {
		return nil, fmt.Errorf("get tournament %d: %w", id, err)
	}
	return t, nil
}

// FinalizeTournament locks the tournament, writes final ranks for its
// participants and marks it finalized, all in one transaction.
func (s *Store) FinalizeTournament(ctx context.Context, id int64) (*Tournament, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback()

	t, err := scanTournament(tx.QueryRowContext(ctx, `
		SELECT `+tournamentColumns+`
		FROM tournaments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, fmt.Errorf("lock tournament %d: %w", id, mapError(err))
	}
	if t.Status == StatusFinalized {
		return nil, fmt.Errorf("finalize tournament %d: %w", id, ErrAlreadyFinalized)
	}

	ranked, err := tx.ExecContext(ctx, `
		UPDATE tournament_participants AS p
		SET final_rank = r.rank
		FROM (
			SELECT user_id, RANK() OVER (ORDER BY points DESC, wins DESC) AS rank
			FROM tournament_participants
			WHERE tournament_id = $1
		) AS r
		WHERE p.tournament_id = $1 AND p.user_id = r.user_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("rank participants of %d: %w", id, mapError(err))
	}

	finalizedAt := s.now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE tournaments
		SET status = $2, finalized_at = $3
		WHERE id = $1
	`, id, string(StatusFinalized), finalizedAt); err != nil {
		return nil, fmt.Errorf("mark tournament %d finalized: %w", id, mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finalize %d: %w", id, mapError(err))
	}

	participants, _ := ranked.RowsAffected()
	s.logger.Info().
		Int64("tournament_id", id).
		Int64("participants", participants).
		Msg("Tournament finalized")

	t.Status = StatusFinalized
	t.FinalizedAt = &finalizedAt
	return t, nil
}

// ListLeaderboard returns up to limit participants ranked by points, then wins.
// Returns ErrNotFound when the tournament does not exist.
func (s *Store) ListLeaderboard(ctx context.Context, tournamentID int64, limit int) ([]LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT RANK() OVER (ORDER BY p.points DESC, p.wins DESC) AS rank,
		       u.id, u.username, p.points, p.wins, p.draws, p.losses
		FROM tournament_participants AS p
		JOIN users AS u ON u.id = p.user_id
		WHERE p.tournament_id = $1
		ORDER BY rank, u.id
		LIMIT $2
	`, tournamentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard %d: %w", tournamentID, err)
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var (
			e        LeaderboardEntry
			username sql.NullString
		)
		if err := rows.Scan(&e.Rank, &e.UserID, &username, &e.Points, &e.Wins, &e.Draws, &e.Losses); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		e.Username = username.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}

	if len(entries) == 0 {
		if _, err := s.GetTournament(ctx, tournamentID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// SearchUsers returns up to limit users whose username or name starts with query.
func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	pattern := escapeLike(strings.TrimPrefix(strings.TrimSpace(query), "@")) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, telegram_id, username, first_name, last_name, rating, is_admin
		FROM users
		WHERE username ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1
		ORDER BY username NULLS LAST, id
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpsertUser inserts or updates a user by Telegram ID and returns the stored row.
func (s *Store) UpsertUser(ctx context.Context, u User) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, telegram_id, username, first_name, last_name, rating, is_admin
	`, u.TelegramID, nullString(u.Username), u.FirstName, nullString(u.LastName), s.now())

	stored, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", u.TelegramID, mapError(err))
	}
	return stored, nil
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u        User
		username sql.NullString
		lastName sql.NullString
	)
	if err := row.Scan(&u.ID, &u.TelegramID, &username, &u.FirstName, &lastName, &u.Rating, &u.IsAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Username = username.String
	u.LastName = lastName.String
	return &u, nil
}

// mapError translates PostgreSQL errors into store errors.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
