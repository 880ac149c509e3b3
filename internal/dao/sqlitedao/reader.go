package sqlitedao

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"chatmerge/internal/domain"
)

// Root реализует dao.Reader.Root.
func (d *DAO) Root(ctx context.Context) (domain.DatasetRoot, error) {
	return d.root, nil
}

// Datasets перечисляет все датасеты открытой базы - независимо от того, к
// какому из них привязан DAO. Используется сервером, чтобы клиент мог
// выбрать мастер- и slave-датасеты для слияния.
func (d *DAO) Datasets(ctx context.Context) ([]domain.Dataset, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT uuid, alias, source_type FROM dataset ORDER BY alias ASC, uuid ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: listing datasets: %w", err)
	}
	defer rows.Close()

	var out []domain.Dataset
	for rows.Next() {
		var rawUUID, alias, sourceType string
		if err := rows.Scan(&rawUUID, &alias, &sourceType); err != nil {
			return nil, fmt.Errorf("sqlitedao: scanning dataset: %w", err)
		}
		id, err := uuid.Parse(rawUUID)
		if err != nil {
			return nil, fmt.Errorf("sqlitedao: malformed dataset uuid %q: %w", rawUUID, err)
		}
		out = append(out, domain.Dataset{UUID: id, Alias: alias, SourceType: sourceType})
	}
	return out, rows.Err()
}

// Users реализует dao.Reader.Users, себя первым, как того требует
// ChatWithDetails.Members и мемори-реализация.
func (d *DAO) Users(ctx context.Context) ([]domain.User, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, username, phone_number, is_myself FROM user
 WHERE dataset_uuid = ? ORDER BY is_myself DESC, id ASC`,
		d.datasetUUID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: listing users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var (
			id int64
			firstName, lastName, username, phoneNumber string
			isMyself int
		)
		if err := rows.Scan(&id, &firstName, &lastName, &username, &phoneNumber, &isMyself); err != nil {
			return nil, fmt.Errorf("sqlitedao: scanning user: %w", err)
		}
		users = append(users, domain.User{
			DatasetUUID: d.datasetUUID,
			ID: domain.UserID(id),
			FirstName: firstName,
			LastName: lastName,
			Username: username,
			PhoneNumber: phoneNumber,
			IsMyself: isMyself != 0,
		})
	}
	return users, rows.Err()
}

// Chats реализует dao.Reader.Chats.
func (d *DAO) Chats(ctx context.Context) ([]domain.ChatWithDetails, error) {
	users, err := d.Users(ctx)
	if err != nil {
		return nil, err
	}
	usersByID := make(map[domain.UserID]domain.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, type, img_path, member_ids, msg_count FROM chat WHERE dataset_uuid = ? ORDER BY id ASC`,
		d.datasetUUID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: listing chats: %w", err)
	}
	defer rows.Close()

	var result []domain.ChatWithDetails
	for rows.Next() {
		var (
			id int64
			name, imgPath string
			chatType int
			memberIDsJSON string
			msgCount int
		)
		if err := rows.Scan(&id, &name, &chatType, &imgPath, &memberIDsJSON, &msgCount); err != nil {
			return nil, fmt.Errorf("sqlitedao: scanning chat: %w", err)
		}
		var memberIDs []domain.UserID
		if err := json.Unmarshal([]byte(memberIDsJSON), &memberIDs); err != nil {
			return nil, fmt.Errorf("sqlitedao: decoding members of chat %d: %w", id, err)
		}

		chat := domain.Chat{
			DatasetUUID: d.datasetUUID,
			ID: domain.ChatID(id),
			NameOption: name,
			Type: domain.ChatType(chatType),
			ImgPathOption: imgPath,
			MemberIDs: memberIDs,
			MsgCount: msgCount,
		}

		members := make([]domain.User, 0, len(memberIDs))
		for _, mid := range memberIDs {
			if u, ok := usersByID[mid]; ok && u.IsMyself {
				members = append(members, u)
			}
		}
		for _, mid := range memberIDs {
			if u, ok := usersByID[mid]; ok && !u.IsMyself {
				members = append(members, u)
			}
		}

		last, err := d.LastMessages(ctx, chat.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("sqlitedao: loading last message of chat %d: %w", id, err)
		}
		var lastMsg *domain.Message
		if len(last) == 1 {
			lastMsg = &last[0]
		}

		result = append(result, domain.ChatWithDetails{Chat: chat, LastMsgOption: lastMsg, Members: members})
	}
	return result, rows.Err()
}

// ScrollMessages реализует dao.Reader.ScrollMessages.
func (d *DAO) ScrollMessages(ctx context.Context, chat domain.ChatID, offset, limit int) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		messageSelectSQL+` WHERE dataset_uuid = ? AND chat_id = ? ORDER BY internal_id ASC LIMIT ? OFFSET ?`,
		d.datasetUUID.String(), int64(chat), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: scrolling chat %d: %w", chat, err)
	}
	return scanMessages(rows)
}

// LastMessages реализует dao.Reader.LastMessages.
func (d *DAO) LastMessages(ctx context.Context, chat domain.ChatID, limit int) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		messageSelectSQL+` WHERE dataset_uuid = ? AND chat_id = ? ORDER BY internal_id DESC LIMIT ?`,
		d.datasetUUID.String(), int64(chat), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: loading last messages of chat %d: %w", chat, err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// MessagesBefore реализует dao.Reader.MessagesBefore.
func (d *DAO) MessagesBefore(ctx context.Context, chat domain.ChatID, m domain.Message, limit int) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		messageSelectSQL+` WHERE dataset_uuid = ? AND chat_id = ? AND internal_id <= ? ORDER BY internal_id DESC LIMIT ?`,
		d.datasetUUID.String(), int64(chat), int64(m.ID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: loading messages before %s: %w", m.QualifiedID(), err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// MessagesAfter реализует dao.Reader.MessagesAfter.
func (d *DAO) MessagesAfter(ctx context.Context, chat domain.ChatID, m domain.Message, limit int) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		messageSelectSQL+` WHERE dataset_uuid = ? AND chat_id = ? AND internal_id >= ? ORDER BY internal_id ASC LIMIT ?`,
		d.datasetUUID.String(), int64(chat), int64(m.ID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: loading messages after %s: %w", m.QualifiedID(), err)
	}
	return scanMessages(rows)
}

// MessagesBetween реализует dao.Reader.MessagesBetween (обе границы
// включительно).
func (d *DAO) MessagesBetween(ctx context.Context, chat domain.ChatID, m1, m2 domain.Message) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		messageSelectSQL+` WHERE dataset_uuid = ? AND chat_id = ? AND internal_id >= ? AND internal_id <= ? ORDER BY internal_id ASC`,
		d.datasetUUID.String(), int64(chat), int64(m1.ID), int64(m2.ID),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: loading messages between %s and %s: %w", m1.QualifiedID(), m2.QualifiedID(), err)
	}
	return scanMessages(rows)
}

// CountMessagesBetween реализует dao.Reader.CountMessagesBetween (обе
// границы исключены).
func (d *DAO) CountMessagesBetween(ctx context.Context, chat domain.ChatID, m1, m2 domain.Message) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message WHERE dataset_uuid = ? AND chat_id = ? AND internal_id > ? AND internal_id < ?`,
		d.datasetUUID.String(), int64(chat), int64(m1.ID), int64(m2.ID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlitedao: counting messages between %s and %s: %w", m1.QualifiedID(), m2.QualifiedID(), err)
	}
	return count, nil
}

// MessageBySourceID реализует dao.Reader.MessageBySourceID.
func (d *DAO) MessageBySourceID(ctx context.Context, chat domain.ChatID, sourceID domain.SourceID) (domain.Message, bool, error) {
	rows, err := d.db.QueryContext(ctx,
		messageSelectSQL+` WHERE dataset_uuid = ? AND chat_id = ? AND source_id = ? LIMIT 1`,
		d.datasetUUID.String(), int64(chat), int64(sourceID),
	)
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("sqlitedao: looking up source_id %d: %w", sourceID, err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return domain.Message{}, false, err
	}
	if len(msgs) == 0 {
		return domain.Message{}, false, nil
	}
	return msgs[0], true, nil
}

// MessageByInternalID реализует dao.Reader.MessageByInternalID.
func (d *DAO) MessageByInternalID(ctx context.Context, chat domain.ChatID, id domain.InternalID) (domain.Message, bool, error) {
	rows, err := d.db.QueryContext(ctx,
		messageSelectSQL+` WHERE dataset_uuid = ? AND chat_id = ? AND internal_id = ? LIMIT 1`,
		d.datasetUUID.String(), int64(chat), int64(id),
	)
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("sqlitedao: looking up internal_id %d: %w", id, err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return domain.Message{}, false, err
	}
	if len(msgs) == 0 {
		return domain.Message{}, false, nil
	}
	return msgs[0], true, nil
}

const messageSelectSQL = `SELECT internal_id, source_id, reply_to_source_id, timestamp, edit_timestamp, from_id, forward_from_name,
	typed_kind, text_json, content_json, service_json FROM message`

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			internalID, timestamp, fromID      int64
			sourceID, replyTo, editTimestamp   sql.NullInt64
			forwardFromName                    sql.NullString
			typedKind                          int
			textJSON, contentJSON, serviceJSON sql.NullString
		)
		if err := rows.Scan(&internalID, &sourceID, &replyTo, &timestamp, &editTimestamp, &fromID, &forwardFromName,
			&typedKind, &textJSON, &contentJSON, &serviceJSON); err != nil {
			return nil, fmt.Errorf("sqlitedao: scanning message: %w", err)
		}

		m := domain.Message{
			ID: domain.InternalID(internalID),
			Timestamp: domain.Timestamp(timestamp),
			FromID: domain.UserID(fromID),
			ForwardFromNameOption: forwardFromName.String,
		}
		if sourceID.Valid {
			m.SourceIDOption = domain.SourceID(sourceID.Int64)
		}
		if replyTo.Valid {
			m.Typed.ReplyToSourceIDOption = domain.SourceID(replyTo.Int64)
		}
		if editTimestamp.Valid {
			m.EditTimestampOption = domain.Timestamp(editTimestamp.Int64)
		}

		m.Typed.Kind = domain.TypedKind(typedKind)
		switch m.Typed.Kind {
		case domain.TypedRegular:
			if textJSON.Valid {
				if err := json.Unmarshal([]byte(textJSON.String), &m.Typed.Text); err != nil {
					return nil, fmt.Errorf("sqlitedao: decoding text of message %d: %w", internalID, err)
				}
			}
			if contentJSON.Valid {
				var c domain.Content
				if err := json.Unmarshal([]byte(contentJSON.String), &c); err != nil {
					return nil, fmt.Errorf("sqlitedao: decoding content of message %d: %w", internalID, err)
				}
				m.Typed.Content = &c
			}
		case domain.TypedService:
			if serviceJSON.Valid {
				if err := json.Unmarshal([]byte(serviceJSON.String), &m.Typed.Service); err != nil {
					return nil, fmt.Errorf("sqlitedao: decoding service of message %d: %w", internalID, err)
				}
			}
		}

		out = append(out, m)
	}
	return out, rows.Err()
}

func reverseMessages(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
