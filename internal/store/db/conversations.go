package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/himanstore/dmpilot/internal/memory"
	"github.com/himanstore/dmpilot/internal/store"
)

// ConversationStore implements store.ConversationStore.
type ConversationStore struct {
	db *sql.DB
}

func (s *ConversationStore) UpsertOnInbound(ctx context.Context, conversationID string, inboundMs int64) error {
	// running keeps its status so the owning worker finishes its cycle;
	// terminal escalations are left entirely untouched.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_state (conversation_id, status, last_inbound_ms, postpone_count, next_attempt_ms, memory, updated_ms)
		VALUES ($1, 'pending', $2, 0, NULL, '{"cart":[]}', $3)
		ON CONFLICT (conversation_id) DO UPDATE SET
			last_inbound_ms = excluded.last_inbound_ms,
			postpone_count = CASE WHEN conversation_state.status IN ('running','needs_admin','needs_link')
				THEN conversation_state.postpone_count ELSE 0 END,
			status = CASE WHEN conversation_state.status IN ('running','needs_admin','needs_link')
				THEN conversation_state.status ELSE 'pending' END,
			next_attempt_ms = CASE WHEN conversation_state.status IN ('running','needs_admin','needs_link')
				THEN conversation_state.next_attempt_ms ELSE NULL END,
			updated_ms = excluded.updated_ms`,
		conversationID, inboundMs, inboundMs,
	)
	if err != nil {
		return fmt.Errorf("upsert on inbound: %w", err)
	}
	return nil
}

func (s *ConversationStore) Claim(ctx context.Context, conversationID string, nowMs int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_state
		SET status = 'running', next_attempt_ms = NULL, updated_ms = $1
		WHERE conversation_id = $2 AND status IN ('pending','paused')`,
		nowMs, conversationID,
	)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows: %w", err)
	}
	return n == 1, nil
}

func (s *ConversationStore) Release(ctx context.Context, conversationID string, status store.Status, mem memory.Memory, nowMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_state
		SET status = $1, memory = $2, next_attempt_ms = NULL, updated_ms = $3
		WHERE conversation_id = $4`,
		string(status), string(mem.Encode()), nowMs, conversationID,
	)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

func (s *ConversationStore) Postpone(ctx context.Context, conversationID string, nextAttemptMs, nowMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_state
		SET status = 'paused', postpone_count = postpone_count + 1, next_attempt_ms = $1, updated_ms = $2
		WHERE conversation_id = $3`,
		nextAttemptMs, nowMs, conversationID,
	)
	if err != nil {
		return fmt.Errorf("postpone: %w", err)
	}
	return nil
}

func (s *ConversationStore) SetProduct(ctx context.Context, conversationID, productID string, nowMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_state SET product_id = $1, updated_ms = $2
		WHERE conversation_id = $3`,
		productID, nowMs, conversationID,
	)
	if err != nil {
		return fmt.Errorf("set product: %w", err)
	}
	return nil
}

func (s *ConversationStore) Get(ctx context.Context, conversationID string) (*store.ConversationState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, status, last_inbound_ms, postpone_count, next_attempt_ms, product_id, memory, updated_ms
		FROM conversation_state WHERE conversation_id = $1`,
		conversationID,
	)
	st, err := scanState(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return st, nil
}

func (s *ConversationStore) DueBatch(ctx context.Context, nowMs int64, autoRetryMax, limit int) ([]store.ConversationState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, status, last_inbound_ms, postpone_count, next_attempt_ms, product_id, memory, updated_ms
		FROM conversation_state
		WHERE (status = 'pending' AND (next_attempt_ms IS NULL OR next_attempt_ms <= $1))
		   OR (status = 'paused' AND postpone_count <= $2 AND next_attempt_ms IS NOT NULL AND next_attempt_ms <= $3)
		ORDER BY CASE WHEN next_attempt_ms IS NULL THEN 0 ELSE 1 END, next_attempt_ms ASC
		LIMIT $4`,
		nowMs, autoRetryMax, nowMs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("due batch: %w", err)
	}
	defer rows.Close()

	var out []store.ConversationState
	for rows.Next() {
		st, err := scanState(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("due batch scan: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanState(scan func(dest ...any) error) (*store.ConversationState, error) {
	var (
		st         store.ConversationState
		status     string
		nextAt     sql.NullInt64
		productID  sql.NullString
		memoryJSON string
	)
	if err := scan(&st.ConversationID, &status, &st.LastInboundMs, &st.PostponeCount, &nextAt, &productID, &memoryJSON, &st.UpdatedMs); err != nil {
		return nil, err
	}
	st.Status = store.Status(status)
	st.NextAttemptMs = nextAt.Int64
	st.ProductID = productID.String
	st.Memory = memory.Decode([]byte(memoryJSON))
	return &st, nil
}
