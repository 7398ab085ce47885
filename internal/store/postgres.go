package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/darkking4096/odonto/internal/stage"
)

// PgxPool is the slice of pgxpool.Pool the store needs. Tests substitute a
// pgxmock pool.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists conversation state. It implements stage.Store and
// stage.PromptStore on the schema installed by the migrations.
type Postgres struct {
	pool PgxPool
}

func NewPostgres(pool PgxPool) *Postgres {
	return &Postgres{pool: pool}
}

// GetProfile loads the profile keyed by the client's phone number.
func (s *Postgres) GetProfile(ctx context.Context, clientID string) (*stage.Profile, error) {
	query := `
		SELECT p.full_name, p.procedure, p.desired_day, p.desired_time,
		       p.time_window, p.proposed_slots, p.current_stage, p.updated_at
		FROM client_profiles p
		JOIN clients c ON c.id = p.client_id
		WHERE c.phone = $1
	`
	p := &stage.Profile{ClientID: clientID}
	var currentStage string
	err := s.pool.QueryRow(ctx, query, clientID).Scan(
		&p.FullName, &p.Procedure, &p.DesiredDay, &p.DesiredTime,
		&p.TimeWindow, &p.ProposedSlots, &currentStage, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stage.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading profile: %w", err)
	}
	p.CurrentStage = stage.Stage(currentStage)
	return p, nil
}

// SaveTurn writes the updated profile, the turn's history row and the inbound
// message in one transaction. Nothing is visible until commit, so a failed
// turn leaves no trace.
func (s *Postgres) SaveTurn(ctx context.Context, p *stage.Profile, rec stage.HistoryRecord, in stage.InboundMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin turn tx: %w", err)
	}
	defer tx.Rollback(ctx)

	clientID, err := s.upsertClient(ctx, tx, p)
	if err != nil {
		return err
	}
	convoID, err := s.ensureConversation(ctx, tx, clientID)
	if err != nil {
		return err
	}

	ct, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, external_id, direction, content, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (external_id) DO NOTHING
	`, uuid.New(), convoID, in.MessageID, stage.DirectionIn, in.Content, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert inbound message: %w", err)
	}
	if in.MessageID != "" && ct.RowsAffected() == 0 {
		// This external id already committed a turn; the deferred rollback
		// discards the profile and history writes of the replay.
		return stage.ErrDuplicateTurn
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO client_profiles (
			client_id, full_name, procedure, desired_day, desired_time,
			time_window, proposed_slots, current_stage, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (client_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			procedure = EXCLUDED.procedure,
			desired_day = EXCLUDED.desired_day,
			desired_time = EXCLUDED.desired_time,
			time_window = EXCLUDED.time_window,
			proposed_slots = EXCLUDED.proposed_slots,
			current_stage = EXCLUDED.current_stage,
			updated_at = EXCLUDED.updated_at
	`, clientID, p.FullName, p.Procedure, p.DesiredDay, p.DesiredTime,
		p.TimeWindow, p.ProposedSlots, string(p.CurrentStage), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert profile: %w", err)
	}

	extracted, err := json.Marshal(rec.Candidates)
	if err != nil {
		return fmt.Errorf("store: encode extracted fields: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO stage_history (client_id, from_stage, to_stage, extracted, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, clientID, string(rec.FromStage), string(rec.ToStage), extracted, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert stage history: %w", err)
	}

	if p.CurrentStage == stage.Closing {
		_, err = tx.Exec(ctx, `
			UPDATE conversations
			SET status = 'completed', ended_at = $2
			WHERE id = $1 AND status = 'active'
		`, convoID, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("store: close conversation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit turn tx: %w", err)
	}
	return nil
}

func (s *Postgres) upsertClient(ctx context.Context, tx pgx.Tx, p *stage.Profile) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO clients (id, phone, full_name)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (phone) DO UPDATE SET
			full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), clients.full_name),
			updated_at = now()
		RETURNING id
	`, uuid.New(), p.ClientID, p.FullName).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: upsert client: %w", err)
	}
	return id, nil
}

func (s *Postgres) ensureConversation(ctx context.Context, tx pgx.Tx, clientID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE client_id = $1 AND status = 'active'
		ORDER BY started_at DESC
		LIMIT 1
	`, clientID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("store: lookup conversation: %w", err)
	}
	id = uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, client_id, status, started_at)
		VALUES ($1, $2, 'active', now())
	`, id, clientID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert conversation: %w", err)
	}
	return id, nil
}

// RecordOutbound appends the reply to the latest conversation. It runs after
// the turn committed, so the caller treats errors as log-only.
func (s *Postgres) RecordOutbound(ctx context.Context, clientID, content string, at time.Time) error {
	var convoID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT v.id
		FROM conversations v
		JOIN clients c ON c.id = v.client_id
		WHERE c.phone = $1
		ORDER BY v.started_at DESC
		LIMIT 1
	`, clientID).Scan(&convoID)
	if err != nil {
		return fmt.Errorf("store: lookup conversation for outbound: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, direction, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), convoID, stage.DirectionOut, content, at)
	if err != nil {
		return fmt.Errorf("store: insert outbound message: %w", err)
	}
	return nil
}

// Stats aggregates the read-only counters.
func (s *Postgres) Stats(ctx context.Context) (stage.Stats, error) {
	stats := stage.Stats{Stages: make(map[string]int)}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM clients),
			(SELECT count(*) FROM conversations),
			(SELECT count(*) FROM messages),
			(SELECT count(*) FROM stage_history WHERE from_stage <> to_stage)
	`).Scan(&stats.TotalClients, &stats.TotalConvos, &stats.TotalMessages, &stats.TotalTransitions)
	if err != nil {
		return stage.Stats{}, fmt.Errorf("store: aggregate counters: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT current_stage, count(*)
		FROM client_profiles
		GROUP BY current_stage
	`)
	if err != nil {
		return stage.Stats{}, fmt.Errorf("store: stage breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return stage.Stats{}, fmt.Errorf("store: scan stage breakdown: %w", err)
		}
		stats.Stages[name] = count
	}
	if err := rows.Err(); err != nil {
		return stage.Stats{}, fmt.Errorf("store: stage breakdown rows: %w", err)
	}
	return stats, nil
}

// ActivePrompts loads the single active template per stage.
func (s *Postgres) ActivePrompts(ctx context.Context) (map[stage.Stage]stage.PromptTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT stage_name, system_prompt, user_template
		FROM stage_prompts
		WHERE active
	`)
	if err != nil {
		return nil, fmt.Errorf("store: loading prompts: %w", err)
	}
	defer rows.Close()

	templates := make(map[stage.Stage]stage.PromptTemplate)
	for rows.Next() {
		var t stage.PromptTemplate
		var name string
		if err := rows.Scan(&name, &t.SystemPrompt, &t.UserTemplate); err != nil {
			return nil, fmt.Errorf("store: scan prompt: %w", err)
		}
		t.StageName = stage.Stage(name)
		t.Active = true
		templates[t.StageName] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: prompt rows: %w", err)
	}
	return templates, nil
}
