package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insanelabs/witchcraft/internal/usage"
)

// ErrSessionNotFound is returned when a session does not exist or belongs to
// another account.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionEnded is returned when appending to an ended session.
var ErrSessionEnded = errors.New("session already ended")

// Repository handles sessions and session_messages PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sessions Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create starts a new session for the account.
func (r *Repository) Create(ctx context.Context, accountID uuid.UUID, in *CreateInput) (*Session, error) {
	s := &Session{
		ID:        uuid.New(),
		AccountID: accountID,
		Title:     in.Title,
		Model:     in.Model,
		Mode:      in.Mode,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, account_id, title, model, mode)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING started_at, last_activity_at`,
		s.ID, s.AccountID, s.Title, s.Model, s.Mode).
		Scan(&s.StartedAt, &s.LastActivityAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return s, nil
}

// Get fetches one of the account's sessions.
func (r *Repository) Get(ctx context.Context, accountID, sessionID uuid.UUID) (*Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx,
		`SELECT id, account_id, title, model, mode, message_count,
		        started_at, last_activity_at, ended_at
		 FROM sessions WHERE id = $1 AND account_id = $2`, sessionID, accountID).
		Scan(&s.ID, &s.AccountID, &s.Title, &s.Model, &s.Mode, &s.MessageCount,
			&s.StartedAt, &s.LastActivityAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return &s, nil
}

// List returns the account's sessions, most recently active first.
func (r *Repository) List(ctx context.Context, accountID uuid.UUID, limit int) ([]Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, title, model, mode, message_count,
		        started_at, last_activity_at, ended_at
		 FROM sessions
		 WHERE account_id = $1
		 ORDER BY last_activity_at DESC
		 LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var list []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Title, &s.Model, &s.Mode,
			&s.MessageCount, &s.StartedAt, &s.LastActivityAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// End closes the session. Ending an already ended session is a no-op that
// still succeeds.
func (r *Repository) End(ctx context.Context, accountID, sessionID uuid.UUID) (*Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx,
		`UPDATE sessions SET ended_at = COALESCE(ended_at, NOW())
		 WHERE id = $1 AND account_id = $2
		 RETURNING id, account_id, title, model, mode, message_count,
		           started_at, last_activity_at, ended_at`, sessionID, accountID).
		Scan(&s.ID, &s.AccountID, &s.Title, &s.Model, &s.Mode, &s.MessageCount,
			&s.StartedAt, &s.LastActivityAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ending session: %w", err)
	}
	return &s, nil
}

// AppendMessage adds one message, assigning the next sequence number. The
// counter bump and the insert share a transaction, so Seq stays dense even
// under concurrent appends to the same session.
func (r *Repository) AppendMessage(ctx context.Context, accountID, sessionID uuid.UUID, in *MessageInput) (*Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning message transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int64
	var endedAt *time.Time
	err = tx.QueryRow(ctx,
		`UPDATE sessions SET message_count = message_count + 1, last_activity_at = NOW()
		 WHERE id = $1 AND account_id = $2
		 RETURNING message_count, ended_at`, sessionID, accountID).
		Scan(&seq, &endedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("advancing message sequence: %w", err)
	}
	if endedAt != nil {
		return nil, ErrSessionEnded
	}

	m := &Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Seq:       seq,
		Role:      in.Role,
		Content:   in.Content,
		Tokens:    in.Tokens,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO session_messages (id, session_id, seq, role, content, tokens)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		m.ID, m.SessionID, m.Seq, m.Role, m.Content, m.Tokens).
		Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return m, nil
}

// ListMessages returns the session's messages in sequence order.
func (r *Repository) ListMessages(ctx context.Context, accountID, sessionID uuid.UUID) ([]Message, error) {
	// Ownership check first so a foreign session ID reads as missing.
	if _, err := r.Get(ctx, accountID, sessionID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, seq, role, content, tokens, created_at
		 FROM session_messages
		 WHERE session_id = $1
		 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Role, &m.Content,
			&m.Tokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ActivityStats reports live session count and the average length of
// sessions started since the given time. Open sessions count their length
// up to now.
func (r *Repository) ActivityStats(ctx context.Context, accountID uuid.UUID, since time.Time) (usage.SessionStats, error) {
	var stats usage.SessionStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE ended_at IS NULL),
		        COALESCE(AVG(extract(epoch FROM (COALESCE(ended_at, NOW()) - started_at)) / 60)
		                 FILTER (WHERE started_at >= $2), 0)
		 FROM sessions
		 WHERE account_id = $1`, accountID, since).
		Scan(&stats.ActiveSessions, &stats.AvgSessionMinutes)
	if err != nil {
		return usage.SessionStats{}, fmt.Errorf("computing session stats: %w", err)
	}
	return stats, nil
}
