// Package sqlitedao - продакшен-реализация dao.DAO поверх SQLite
// (database/sql + github.com/mattn/go-sqlite3), грунтованная на
// atomAltera-antispam-tg-bot/app/storage/sqlite.go (go:embed схемы,
// db.ExecContext) и на withTx-паттерне lherron-wrkq/internal/store/store.go
// (транзакция, откатываемая по умолчанию, коммитится только при успехе fn).
package sqlitedao

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chatmerge/internal/dao"
	"chatmerge/internal/domain"
	"chatmerge/internal/merge"
)

//go:embed schema.sql
var schema string

// DAO - SQLite-реализация dao.DAO, привязанная к одному датасету за раз
// (datasetUUID/root устанавливаются либо Open существующего датасета через
// BindDataset, либо InsertDataset для только что созданного).
type DAO struct {
	db *sql.DB
	filesBase string
	datasetUUID uuid.UUID
	root domain.DatasetRoot
	copier *merge.FileCopier

	mu sync.Mutex
	backupsEnabled bool
}

// Open открывает (создавая при необходимости) файл базы данных SQLite и
// применяет схему. filesBase - каталог, под которым создаются файловые корни
// датасетов.
func Open(ctx context.Context, dbPath, filesBase string) (*DAO, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlitedao: opening %s: %w", dbPath, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitedao: applying schema: %w", err)
	}
	return &DAO{
		db: db,
		filesBase: filesBase,
		copier: merge.New(),
		backupsEnabled: true,
	}, nil
}

// Close закрывает базовое соединение.
func (d *DAO) Close() error { return d.db.Close() }

// BindDataset привязывает DAO к уже существующему датасету, читая его корень
// из таблицы dataset. Используется для master/slave сторон слияния.
func (d *DAO) BindDataset(ctx context.Context, datasetUUID uuid.UUID) error {
	var root string
	err := d.db.QueryRowContext(ctx, `SELECT root FROM dataset WHERE uuid = ?`, datasetUUID.String()).Scan(&root)
	if err != nil {
		return fmt.Errorf("sqlitedao: loading dataset %s: %w", datasetUUID, err)
	}
	d.datasetUUID = datasetUUID
	d.root = domain.DatasetRoot(root)
	return nil
}

func (d *DAO) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitedao: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Writer ---

// InsertDataset реализует dao.Writer.InsertDataset: создаёт новую строку
// датасета и файловый корень под filesBase, затем привязывает DAO к нему.
func (d *DAO) InsertDataset(ctx context.Context, ds domain.Dataset) (domain.DatasetRoot, error) {
	root := domain.DatasetRoot(filepath.Join(d.filesBase, ds.UUID.String()))
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO dataset (uuid, alias, source_type, root) VALUES (?, ?, ?, ?)`,
		ds.UUID.String(), ds.Alias, ds.SourceType, string(root),
	)
	if err != nil {
		return "", fmt.Errorf("sqlitedao: inserting dataset %s: %w", ds.UUID, err)
	}
	d.datasetUUID = ds.UUID
	d.root = root
	return root, nil
}

// InsertUser реализует dao.Writer.InsertUser.
func (d *DAO) InsertUser(ctx context.Context, user domain.User, isSelf bool) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO user (dataset_uuid, id, first_name, last_name, username, phone_number, is_myself)
 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.datasetUUID.String(), int64(user.ID), user.FirstName, user.LastName, user.Username, user.PhoneNumber, boolToInt(isSelf),
	)
	if err != nil {
		return fmt.Errorf("sqlitedao: inserting user %d: %w", user.ID, err)
	}
	return nil
}

// InsertChat реализует dao.Writer.InsertChat, копируя изображение чата (если
// есть) из srcRoot через internal/merge.FileCopier.
func (d *DAO) InsertChat(ctx context.Context, srcRoot domain.DatasetRoot, chat domain.Chat) error {
	memberIDs, err := json.Marshal(chat.MemberIDs)
	if err != nil {
		return fmt.Errorf("sqlitedao: encoding members of chat %s: %w", chat.QualifiedName(), err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO chat (dataset_uuid, id, name, type, img_path, member_ids, msg_count)
 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.datasetUUID.String(), int64(chat.ID), chat.NameOption, int(chat.Type), chat.ImgPathOption, string(memberIDs), chat.MsgCount,
	)
	if err != nil {
		return fmt.Errorf("sqlitedao: inserting chat %s: %w", chat.QualifiedName(), err)
	}
	if chat.ImgPathOption != "" {
		if err := d.copier.CopyAll(ctx, []merge.CopyRequest{{SrcRoot: srcRoot, DstRoot: d.root, RelPath: chat.ImgPathOption}}); err != nil {
			return fmt.Errorf("sqlitedao: copying image for chat %s: %w", chat.QualifiedName(), err)
		}
	}
	return nil
}

// InsertMessages реализует dao.Writer.InsertMessages: присваивает
// последовательные internal_id, пишет сообщения одной транзакцией и
// копирует все файлы, на которые они ссылаются, из srcRoot.
func (d *DAO) InsertMessages(ctx context.Context, srcRoot domain.DatasetRoot, chat domain.ChatID, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	var nextID int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(internal_id), -1) + 1 FROM message WHERE dataset_uuid = ? AND chat_id = ?`,
		d.datasetUUID.String(), int64(chat),
	).Scan(&nextID)
	if err != nil {
		return fmt.Errorf("sqlitedao: computing next internal_id for chat %d: %w", chat, err)
	}

	var copyReqs []merge.CopyRequest
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range msgs {
			m.ID = domain.InternalID(nextID)
			nextID++

			if err := insertMessageTx(ctx, tx, d.datasetUUID, chat, m); err != nil {
				return err
			}
			for _, rel := range m.FilesRelative() {
				copyReqs = append(copyReqs, merge.CopyRequest{SrcRoot: srcRoot, DstRoot: d.root, RelPath: rel})
			}
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE chat SET msg_count = msg_count + ? WHERE dataset_uuid = ? AND id = ?`,
			len(msgs), d.datasetUUID.String(), int64(chat),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlitedao: inserting messages into chat %d: %w", chat, err)
	}

	if len(copyReqs) > 0 {
		if err := d.copier.CopyAll(ctx, copyReqs); err != nil {
			return fmt.Errorf("sqlitedao: copying files for chat %d: %w", chat, err)
		}
	}
	return nil
}

func insertMessageTx(ctx context.Context, tx *sql.Tx, datasetUUID uuid.UUID, chat domain.ChatID, m domain.Message) error {
	var sourceID sql.NullInt64
	if m.HasSourceID() {
		sourceID = sql.NullInt64{Int64: int64(m.SourceIDOption), Valid: true}
	}
	var replyTo sql.NullInt64
	if m.Typed.ReplyToSourceIDOption != 0 {
		replyTo = sql.NullInt64{Int64: int64(m.Typed.ReplyToSourceIDOption), Valid: true}
	}
	var editTimestamp sql.NullInt64
	if m.EditTimestampOption != 0 {
		editTimestamp = sql.NullInt64{Int64: int64(m.EditTimestampOption), Valid: true}
	}

	var textJSON, contentJSON, serviceJSON sql.NullString
	switch m.Typed.Kind {
	case domain.TypedRegular:
		tb, err := json.Marshal(m.Typed.Text)
		if err != nil {
			return fmt.Errorf("encoding text of message %s: %w", m.QualifiedID(), err)
		}
		textJSON = sql.NullString{String: string(tb), Valid: true}
		if m.Typed.Content != nil {
			cb, err := json.Marshal(m.Typed.Content)
			if err != nil {
				return fmt.Errorf("encoding content of message %s: %w", m.QualifiedID(), err)
			}
			contentJSON = sql.NullString{String: string(cb), Valid: true}
		}
	case domain.TypedService:
		b, err := json.Marshal(m.Typed.Service)
		if err != nil {
			return fmt.Errorf("encoding service of message %s: %w", m.QualifiedID(), err)
		}
		serviceJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO message (
 dataset_uuid, chat_id, internal_id, source_id, reply_to_source_id, timestamp, edit_timestamp,
 from_id, forward_from_name, typed_kind, text_json, content_json, service_json
 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		datasetUUID.String(), int64(chat), int64(m.ID), sourceID, replyTo, int64(m.Timestamp), editTimestamp,
		int64(m.FromID), m.ForwardFromNameOption, int(m.Typed.Kind), textJSON, contentJSON, serviceJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting message %s: %w", m.QualifiedID(), err)
	}
	return nil
}

// Backup реализует dao.Writer.Backup: сериализует пользователей, чаты и
// сообщения датасета в JSON и добавляет строку в dataset_backup. Упрощённый
// аналог memorydao.Backup (полный снимок), пригодный для восстановления
// вручную из базы.
func (d *DAO) Backup(ctx context.Context) error {
	users, err := d.Users(ctx)
	if err != nil {
		return fmt.Errorf("sqlitedao: backup: listing users: %w", err)
	}
	chats, err := d.Chats(ctx)
	if err != nil {
		return fmt.Errorf("sqlitedao: backup: listing chats: %w", err)
	}

	messages := make(map[domain.ChatID][]domain.Message, len(chats))
	for _, c := range chats {
		msgs, err := d.ScrollMessages(ctx, c.Chat.ID, 0, -1)
		if err != nil {
			return fmt.Errorf("sqlitedao: backup: listing messages of chat %d: %w", c.Chat.ID, err)
		}
		messages[c.Chat.ID] = msgs
	}

	type snapshot struct {
		Users []domain.User `json:"users"`
		Chats []domain.ChatWithDetails `json:"chats"`
		Messages map[domain.ChatID][]domain.Message `json:"messages"`
	}
	payload, err := json.Marshal(snapshot{Users: users, Chats: chats, Messages: messages})
	if err != nil {
		return fmt.Errorf("sqlitedao: backup: encoding snapshot: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO dataset_backup (dataset_uuid, created_at, snapshot) VALUES (?, strftime('%s','now'), ?)`,
		d.datasetUUID.String(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("sqlitedao: backup: storing snapshot: %w", err)
	}
	return nil
}

// DisableBackups реализует dao.Writer.DisableBackups.
func (d *DAO) DisableBackups(ctx context.Context) error {
	d.mu.Lock()
	d.backupsEnabled = false
	d.mu.Unlock()
	return nil
}

// EnableBackups реализует dao.Writer.EnableBackups.
func (d *DAO) EnableBackups(ctx context.Context) error {
	d.mu.Lock()
	d.backupsEnabled = true
	d.mu.Unlock()
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ dao.DAO = (*DAO)(nil)
