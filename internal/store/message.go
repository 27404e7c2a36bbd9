package store

import (
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `id, msg_id, instance_id, counterparty, COALESCE(body, ''), COALESCE(quoted_id, ''),
	message_type, timestamp, from_me, status,
	COALESCE(media_kind, ''), COALESCE(media_name, ''), COALESCE(media_stored_name, ''), COALESCE(media_backend, ''),
	sync_message, sync_status`

// UpsertMessage inserts or updates a message (idempotent on msg_id).
// New rows always start with both sync flags cleared. On conflict the content
// columns are overwritten; sync_message survives only an identical
// redelivery and sync_status only an unchanged status.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	a := m.Attachment
	_, err := db.Exec(`
		INSERT INTO messages (msg_id, instance_id, counterparty, body, quoted_id, message_type, timestamp, from_me, status,
			media_kind, media_name, media_stored_name, media_backend, sync_message, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?,
			NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), 0, 0, ?, ?)
		ON CONFLICT(msg_id) DO UPDATE SET
			counterparty = excluded.counterparty,
			body = excluded.body,
			quoted_id = excluded.quoted_id,
			message_type = excluded.message_type,
			timestamp = excluded.timestamp,
			from_me = excluded.from_me,
			status = excluded.status,
			media_kind = excluded.media_kind,
			media_name = excluded.media_name,
			media_stored_name = excluded.media_stored_name,
			media_backend = excluded.media_backend,
			sync_message = CASE WHEN messages.counterparty IS excluded.counterparty
				AND messages.body IS excluded.body
				AND messages.quoted_id IS excluded.quoted_id
				AND messages.message_type IS excluded.message_type
				AND messages.timestamp IS excluded.timestamp
				AND messages.from_me IS excluded.from_me
				AND messages.status IS excluded.status
				AND messages.media_kind IS excluded.media_kind
				AND messages.media_name IS excluded.media_name
				AND messages.media_stored_name IS excluded.media_stored_name
				AND messages.media_backend IS excluded.media_backend
				THEN messages.sync_message ELSE 0 END,
			sync_status = CASE WHEN messages.status IS excluded.status
				THEN messages.sync_status ELSE 0 END,
			updated_at = excluded.updated_at`,
		m.MsgID, m.InstanceID, m.Counterparty, m.Body, m.QuotedID, m.MessageType, m.Timestamp, m.FromMe, string(m.Status),
		a.Kind, a.Name, a.StoredName, a.Backend, now, now)
	if err != nil {
		return fmt.Errorf("upsert message %q: %w", m.MsgID, err)
	}
	return nil
}

// UpdateMessage applies a partial update to the message with the given id.
// Omitted fields keep their stored value. An unknown id is not an error: the
// call is a no-op and reports updated=false.
func (db *DB) UpdateMessage(msgID string, u MessageUpdate) (bool, error) {
	var status, expect any
	if u.Status != nil {
		status = string(*u.Status)
	}
	if u.ExpectStatus != nil {
		expect = string(*u.ExpectStatus)
	}
	result, err := db.Exec(`
		UPDATE messages SET
			status = COALESCE(?, status),
			sync_status = COALESCE(?, sync_status),
			sync_message = COALESCE(?, sync_message),
			updated_at = ?
		WHERE msg_id = ? AND (? IS NULL OR status = ?)`,
		status, nullBool(u.SyncStatus), nullBool(u.SyncMessage), time.Now().UnixMilli(),
		msgID, expect, expect)
	if err != nil {
		return false, fmt.Errorf("update message %q: %w", msgID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EditMessage replaces the body and timestamp of an edited message. Status
// and sync flags are not touched.
func (db *DB) EditMessage(msgID, body string, timestamp int64) (bool, error) {
	result, err := db.Exec(`
		UPDATE messages SET body = NULLIF(?, ''), timestamp = ?, updated_at = ?
		WHERE msg_id = ?`,
		body, timestamp, time.Now().UnixMilli(), msgID)
	if err != nil {
		return false, fmt.Errorf("edit message %q: %w", msgID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetMessage returns a single message by id, or nil if it does not exist.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns an instance's messages, newest first, using keyset
// pagination by timestamp. An empty counterparty lists every conversation.
func (db *DB) ListMessages(instanceID, counterparty string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE instance_id = ? AND (? = '' OR counterparty = ?) AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, instanceID, counterparty, counterparty, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// UnsyncedMessages returns the instance's rows with at least one sync flag
// unset, oldest first.
func (db *DB) UnsyncedMessages(instanceID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE instance_id = ? AND (sync_message = 0 OR sync_status = 0)
		ORDER BY timestamp ASC, id ASC
		LIMIT ?`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// CountUnsynced returns how many of the instance's rows are not settled.
func (db *DB) CountUnsynced(instanceID string) (int64, error) {
	var count int64
	err := db.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE instance_id = ? AND (sync_message = 0 OR sync_status = 0)`, instanceID).Scan(&count)
	return count, err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (*Message, error) {
	var m Message
	var status string
	if err := s.Scan(&m.ID, &m.MsgID, &m.InstanceID, &m.Counterparty, &m.Body, &m.QuotedID,
		&m.MessageType, &m.Timestamp, &m.FromMe, &status,
		&m.Attachment.Kind, &m.Attachment.Name, &m.Attachment.StoredName, &m.Attachment.Backend,
		&m.SyncMessage, &m.SyncStatus); err != nil {
		return nil, err
	}
	m.Status = Status(status)
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
