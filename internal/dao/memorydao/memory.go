package memorydao

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"chatmerge/internal/dao"
	"chatmerge/internal/domain"
)

type chatRecord struct {
	chat domain.Chat
	messages []domain.Message // отсортированы по ID по возрастанию
	byID map[domain.InternalID]int
	bySource map[domain.SourceID]int
	nextID domain.InternalID
}

func newChatRecord(chat domain.Chat) *chatRecord {
	return &chatRecord{
		chat: chat,
		byID: make(map[domain.InternalID]int),
		bySource: make(map[domain.SourceID]int),
		nextID: 1,
	}
}

// MemoryDAO - эталонная реализация dao.DAO, целиком хранящая датасет в
// памяти процесса. Файлы хранятся в общем VFS, что позволяет нескольким
// MemoryDAO ссылаться друг на друга как master/slave/target одного
// слияния - так же, как несколько sqlite-DAO совместно используют одну
// настоящую файловую систему.
type MemoryDAO struct {
	mu sync.RWMutex

	vfs *VFS
	root domain.DatasetRoot

	dataset domain.Dataset
	users []domain.User
	selfID domain.UserID
	chats map[domain.ChatID]*chatRecord
	order []domain.ChatID // порядок вставки чатов

	backupsEnabled bool
	backups []backupSnapshot
}

type backupSnapshot struct {
	users []domain.User
	chats map[domain.ChatID]*chatRecord
}

// New создаёт пустой MemoryDAO для датасета ds с файлами под root в vfs.
func New(vfs *VFS, ds domain.Dataset, root domain.DatasetRoot) *MemoryDAO {
	return &MemoryDAO{
		vfs: vfs,
		root: root,
		dataset: ds,
		chats: make(map[domain.ChatID]*chatRecord),
		backupsEnabled: true,
	}
}

// VFS возвращает виртуальную файловую систему, на которой построен DAO -
// нужно тестам, чтобы засеять файлы напрямую через Put.
func (m *MemoryDAO) VFS() *VFS { return m.vfs }

// Seed напрямую заполняет DAO пользователями, чатами и сообщениями, минуя
// Insert*, для построения тестовых снимков датасета с конкретными,
// заранее известными internal_id. selfID отмечает пользователя self.
func (m *MemoryDAO) Seed(users []domain.User, selfID domain.UserID, chats []domain.Chat, messages map[domain.ChatID][]domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = append([]domain.User(nil), users...)
	m.selfID = selfID

	for _, c := range chats {
		rec := newChatRecord(c)
		msgs := append([]domain.Message(nil), messages[c.ID]...)
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
		for i, msg := range msgs {
			rec.byID[msg.ID] = i
			if msg.HasSourceID() {
				rec.bySource[msg.SourceIDOption] = i
			}
			if msg.ID >= rec.nextID {
				rec.nextID = msg.ID + 1
			}
		}
		rec.messages = msgs
		m.chats[c.ID] = rec
		m.order = append(m.order, c.ID)
	}
}

// ---- Reader ----

func (m *MemoryDAO) Root(ctx context.Context) (domain.DatasetRoot, error) {
	return m.root, nil
}

func (m *MemoryDAO) Users(ctx context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.User, 0, len(m.users))
	var self *domain.User
	for i := range m.users {
		if m.users[i].ID == m.selfID {
			self = &m.users[i]
			continue
		}
	}
	if self != nil {
		out = append(out, *self)
	}
	for i := range m.users {
		if m.users[i].ID != m.selfID {
			out = append(out, m.users[i])
		}
	}
	return out, nil
}

func (m *MemoryDAO) chatMembers(rec *chatRecord) []domain.User {
	byID := make(map[domain.UserID]domain.User, len(m.users))
	for _, u := range m.users {
		byID[u.ID] = u
	}
	var members []domain.User
	if self, ok := byID[m.selfID]; ok {
		members = append(members, self)
	}
	for _, id := range rec.chat.MemberIDs {
		if id == m.selfID {
			continue
		}
		if u, ok := byID[id]; ok {
			members = append(members, u)
		}
	}
	return members
}

func (m *MemoryDAO) Chats(ctx context.Context) ([]domain.ChatWithDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.ChatWithDetails, 0, len(m.order))
	for _, id := range m.order {
		rec := m.chats[id]
		var last *domain.Message
		if len(rec.messages) > 0 {
			lm := rec.messages[len(rec.messages)-1]
			last = &lm
		}
		out = append(out, domain.ChatWithDetails{
			Chat: rec.chat,
			LastMsgOption: last,
			Members: m.chatMembers(rec),
		})
	}
	return out, nil
}

func (m *MemoryDAO) getChat(chat domain.ChatID) (*chatRecord, error) {
	rec, ok := m.chats[chat]
	if !ok {
		return nil, fmt.Errorf("memorydao: chat %d not found", chat)
	}
	return rec, nil
}

func (m *MemoryDAO) ScrollMessages(ctx context.Context, chat domain.ChatID, offset, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return nil, err
	}
	if offset >= len(rec.messages) {
		return nil, nil
	}
	end := offset + limit
	if end > len(rec.messages) || limit <= 0 {
		end = len(rec.messages)
	}
	return cloneMessages(rec.messages[offset:end]), nil
}

func (m *MemoryDAO) LastMessages(ctx context.Context, chat domain.ChatID, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return nil, err
	}
	start := len(rec.messages) - limit
	if start < 0 || limit <= 0 {
		start = 0
	}
	return cloneMessages(rec.messages[start:]), nil
}

func (m *MemoryDAO) indexOf(rec *chatRecord, anchor domain.Message) (int, error) {
	if anchor.HasSourceID() {
		if idx, ok := rec.bySource[anchor.SourceIDOption]; ok {
			return idx, nil
		}
	}
	if idx, ok := rec.byID[anchor.ID]; ok {
		return idx, nil
	}
	return 0, fmt.Errorf("memorydao: anchor message %s not found in chat", anchor.QualifiedID())
}

func (m *MemoryDAO) MessagesBefore(ctx context.Context, chat domain.ChatID, anchor domain.Message, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return nil, err
	}
	idx, err := m.indexOf(rec, anchor)
	if err != nil {
		return nil, err
	}
	start := idx - limit + 1
	if start < 0 {
		start = 0
	}
	return cloneMessages(rec.messages[start : idx+1]), nil
}

func (m *MemoryDAO) MessagesAfter(ctx context.Context, chat domain.ChatID, anchor domain.Message, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return nil, err
	}
	idx, err := m.indexOf(rec, anchor)
	if err != nil {
		return nil, err
	}
	end := idx + limit
	if end > len(rec.messages) {
		end = len(rec.messages)
	}
	return cloneMessages(rec.messages[idx:end]), nil
}

func (m *MemoryDAO) MessagesBetween(ctx context.Context, chat domain.ChatID, m1, m2 domain.Message) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return nil, err
	}
	i1, err := m.indexOf(rec, m1)
	if err != nil {
		return nil, err
	}
	i2, err := m.indexOf(rec, m2)
	if err != nil {
		return nil, err
	}
	if i1 > i2 {
		i1, i2 = i2, i1
	}
	return cloneMessages(rec.messages[i1 : i2+1]), nil
}

func (m *MemoryDAO) CountMessagesBetween(ctx context.Context, chat domain.ChatID, m1, m2 domain.Message) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return 0, err
	}
	i1, err := m.indexOf(rec, m1)
	if err != nil {
		return 0, err
	}
	i2, err := m.indexOf(rec, m2)
	if err != nil {
		return 0, err
	}
	if i1 > i2 {
		i1, i2 = i2, i1
	}
	if i2-i1 <= 1 {
		return 0, nil
	}
	return i2 - i1 - 1, nil
}

func (m *MemoryDAO) MessageBySourceID(ctx context.Context, chat domain.ChatID, sourceID domain.SourceID) (domain.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return domain.Message{}, false, err
	}
	idx, ok := rec.bySource[sourceID]
	if !ok {
		return domain.Message{}, false, nil
	}
	return rec.messages[idx], true, nil
}

func (m *MemoryDAO) MessageByInternalID(ctx context.Context, chat domain.ChatID, id domain.InternalID) (domain.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return domain.Message{}, false, err
	}
	idx, ok := rec.byID[id]
	if !ok {
		return domain.Message{}, false, nil
	}
	return rec.messages[idx], true, nil
}

// ---- Writer ----

func (m *MemoryDAO) InsertDataset(ctx context.Context, ds domain.Dataset) (domain.DatasetRoot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dataset = ds
	if m.root == "" {
		m.root = domain.DatasetRoot(ds.UUID.String())
	}
	return m.root, nil
}

func (m *MemoryDAO) InsertUser(ctx context.Context, user domain.User, isSelf bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user.DatasetUUID = m.dataset.UUID
	m.users = append(m.users, user)
	if isSelf {
		m.selfID = user.ID
	}
	return nil
}

func (m *MemoryDAO) copyFile(srcRoot domain.DatasetRoot, path string) error {
	if path == "" {
		return nil
	}
	if !m.vfs.Exists(srcRoot, path) {
		return nil // отсутствующий файл - не ошибка
	}
	if m.vfs.Exists(m.root, path) {
		return nil // идемпотентность: файл уже скопирован
	}
	return m.vfs.Copy(srcRoot, path, m.root, path)
}

func (m *MemoryDAO) copyMessageFiles(srcRoot domain.DatasetRoot, msg domain.Message) error {
	for _, p := range msg.FilesRelative() {
		if err := m.copyFile(srcRoot, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDAO) InsertChat(ctx context.Context, srcRoot domain.DatasetRoot, chat domain.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.copyFile(srcRoot, chat.ImgPathOption); err != nil {
		return err
	}
	chat.DatasetUUID = m.dataset.UUID
	if _, exists := m.chats[chat.ID]; !exists {
		m.order = append(m.order, chat.ID)
	}
	m.chats[chat.ID] = newChatRecord(chat)
	return nil
}

func (m *MemoryDAO) InsertMessages(ctx context.Context, srcRoot domain.DatasetRoot, chat domain.ChatID, msgs []domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getChat(chat)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := m.copyMessageFiles(srcRoot, msg); err != nil {
			return fmt.Errorf("memorydao: copying files for message %s: %w", msg.QualifiedID(), err)
		}
		msg.ID = rec.nextID
		rec.nextID++
		idx := len(rec.messages)
		rec.messages = append(rec.messages, msg)
		rec.byID[msg.ID] = idx
		if msg.HasSourceID() {
			rec.bySource[msg.SourceIDOption] = idx
		}
	}
	rec.chat.MsgCount = len(rec.messages)
	return nil
}

func (m *MemoryDAO) Backup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := backupSnapshot{
		users: append([]domain.User(nil), m.users...),
		chats: make(map[domain.ChatID]*chatRecord, len(m.chats)),
	}
	for id, rec := range m.chats {
		cp := newChatRecord(rec.chat)
		cp.messages = cloneMessages(rec.messages)
		for k, v := range rec.byID {
			cp.byID[k] = v
		}
		for k, v := range rec.bySource {
			cp.bySource[k] = v
		}
		cp.nextID = rec.nextID
		snap.chats[id] = cp
	}
	m.backups = append(m.backups, snap)
	return nil
}

func (m *MemoryDAO) DisableBackups(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backupsEnabled = false
	return nil
}

func (m *MemoryDAO) EnableBackups(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backupsEnabled = true
	return nil
}

// BackupCount и BackupsEnabled открывают внутреннее состояние для тестов
// merge-executor'а, проверяющих, что бэкапы снова включаются на всех путях
// выхода.
func (m *MemoryDAO) BackupCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.backups)
}

func (m *MemoryDAO) BackupsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backupsEnabled
}

func cloneMessages(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

var _ dao.DAO = (*MemoryDAO)(nil)
