package chat

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"communitychat/internal/protocol"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveMessage persists a direct message, assigning its server-side identity.
func (r *Repository) SaveMessage(ctx context.Context, m *protocol.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	query := `INSERT INTO direct_messages (id, sender, recipient, body, created_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, m.ID, m.From, m.To, m.Body, m.Timestamp)
	return err
}

// GetHistory returns the full conversation between the two users in
// ascending timestamp order. Clients append live messages behind this
// sequence and never re-sort, so the order here is load-bearing.
func (r *Repository) GetHistory(ctx context.Context, userA, userB string) ([]protocol.ChatMessage, error) {
	query := `
		SELECT id, sender, recipient, body, created_at
		FROM direct_messages
		WHERE (sender = $1 AND recipient = $2) OR (sender = $2 AND recipient = $1)
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []protocol.ChatMessage
	for rows.Next() {
		var m protocol.ChatMessage
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Body, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
