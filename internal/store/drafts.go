package store

import "time"

// SaveDraft stores the unsent text of a conversation.
func (db *DB) SaveDraft(conversationID, text string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO drafts (conversation_id, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		conversationID, text, at.UnixMilli())
	return err
}

// GetDraft returns a conversation's draft, "" if none.
func (db *DB) GetDraft(conversationID string) (string, error) {
	var body string
	err := db.QueryRow(`SELECT body FROM drafts WHERE conversation_id = ?`, conversationID).Scan(&body)
	if isNoRows(err) {
		return "", nil
	}
	return body, err
}

// DeleteDraft removes a conversation's draft.
func (db *DB) DeleteDraft(conversationID string) error {
	_, err := db.Exec(`DELETE FROM drafts WHERE conversation_id = ?`, conversationID)
	return err
}

// ListDrafts returns every stored draft keyed by conversation id.
func (db *DB) ListDrafts() (map[string]string, error) {
	rows, err := db.Query(`SELECT conversation_id, body FROM drafts`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		out[id] = body
	}
	return out, rows.Err()
}
