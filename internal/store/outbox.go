package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("not found")

// QueueOutbox records a send before it is attempted.
func (db *DB) QueueOutbox(clientID, conversationID string, payload []byte) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_id, conversation_id, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			payload = excluded.payload,
			status = 'queued',
			error_message = '',
			updated_at = excluded.updated_at`,
		clientID, conversationID, string(payload), now, now)
	return err
}

// MarkOutboxSending records the start of an attempt.
func (db *DB) MarkOutboxSending(clientID string) error {
	now := time.Now().UnixMilli()
	return db.updateOutbox(`UPDATE outbox SET status = 'sending', attempts = attempts + 1, updated_at = ? WHERE client_id = ?`, now, clientID)
}

// MarkOutboxSent records the server id of a delivered message.
func (db *DB) MarkOutboxSent(clientID, serverMsgID string) error {
	now := time.Now().UnixMilli()
	return db.updateOutbox(`UPDATE outbox SET status = 'sent', server_msg_id = ?, error_message = '', updated_at = ? WHERE client_id = ?`, serverMsgID, now, clientID)
}

// MarkOutboxFailed records why an attempt failed.
func (db *DB) MarkOutboxFailed(clientID, errMsg string) error {
	now := time.Now().UnixMilli()
	return db.updateOutbox(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_id = ?`, errMsg, now, clientID)
}

func (db *DB) updateOutbox(query string, args ...any) error {
	res, err := db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("outbox entry: %w", ErrNotFound)
	}
	return nil
}

// GetOutbox returns one entry.
func (db *DB) GetOutbox(clientID string) (OutboxEntry, error) {
	row := db.QueryRow(`
		SELECT client_id, conversation_id, payload, status, error_message, server_msg_id, attempts, created_at, updated_at
		FROM outbox WHERE client_id = ?`, clientID)
	e, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("outbox entry %s: %w", clientID, ErrNotFound)
	}
	return e, err
}

// UnsentOutbox returns entries that never reached the server, oldest first.
// Entries left in 'sending' by a crash are included.
func (db *DB) UnsentOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT client_id, conversation_id, payload, status, error_message, server_msg_id, attempts, created_at, updated_at
		FROM outbox WHERE status != 'sent' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOutbox forgets an entry.
func (db *DB) DeleteOutbox(clientID string) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE client_id = ?`, clientID)
	return err
}

// PruneOutbox deletes sent entries last touched before cutoff.
func (db *DB) PruneOutbox(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM outbox WHERE status = 'sent' AND updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutbox(s scanner) (OutboxEntry, error) {
	var (
		e                OutboxEntry
		payload          string
		created, updated int64
	)
	if err := s.Scan(&e.ClientID, &e.ConversationID, &payload, &e.Status, &e.ErrorMessage, &e.ServerMsgID, &e.Attempts, &created, &updated); err != nil {
		return e, err
	}
	e.Payload = []byte(payload)
	e.CreatedAt = time.UnixMilli(created)
	e.UpdatedAt = time.UnixMilli(updated)
	return e, nil
}
