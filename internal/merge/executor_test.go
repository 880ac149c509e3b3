package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatmerge/internal/dao"
	"chatmerge/internal/dao/memorydao"
	"chatmerge/internal/domain"
)

const (
	rootMaster = domain.DatasetRoot("master")
	rootSlave  = domain.DatasetRoot("slave")
	rootTarget = domain.DatasetRoot("target")
)

func textMsg(id, src, ts int64, text string) domain.Message {
	return domain.Message{
		ID:             domain.InternalID(id),
		SourceIDOption: domain.SourceID(src),
		Timestamp:      domain.Timestamp(ts),
		FromID:         1,
		Typed: domain.Typed{
			Kind: domain.TypedRegular,
			Text: []domain.RichTextElement{domain.MakePlain(text)},
		},
	}
}

func photoMsg(id, src, ts int64, path string) domain.Message {
	m := textMsg(id, src, ts, "")
	m.Typed.Text = nil
	m.Typed.Content = &domain.Content{Kind: domain.ContentPhoto, PathOption: path}
	return m
}

func inviteMsg(id, src, ts int64, names ...string) domain.Message {
	return domain.Message{
		ID:             domain.InternalID(id),
		SourceIDOption: domain.SourceID(src),
		Timestamp:      domain.Timestamp(ts),
		FromID:         1,
		Typed: domain.Typed{
			Kind:    domain.TypedService,
			Service: domain.Service{Kind: domain.SvcGroupInviteMembers, MemberNames: names},
		},
	}
}

type fixture struct {
	vfs    *memorydao.VFS
	master *memorydao.MemoryDAO
	slave  *memorydao.MemoryDAO
	target *memorydao.MemoryDAO
}

func newFixture() *fixture {
	vfs := memorydao.NewVFS()
	return &fixture{
		vfs:    vfs,
		master: memorydao.New(vfs, domain.Dataset{UUID: domain.NewDatasetID(), Alias: "m"}, rootMaster),
		slave:  memorydao.New(vfs, domain.Dataset{UUID: domain.NewDatasetID(), Alias: "s"}, rootSlave),
		target: memorydao.New(vfs, domain.Dataset{UUID: domain.NewDatasetID(), Alias: "t"}, rootTarget),
	}
}

func (f *fixture) executor(target dao.DAO) *Executor {
	if target == nil {
		target = f.target
	}
	return NewExecutor(f.master, f.slave, target, rootMaster, rootSlave, f.vfs, nil)
}

var defaultUsers = []domain.User{
	{ID: 1, FirstName: "Self", IsMyself: true},
	{ID: 2, FirstName: "Peer"},
}

func seedSide(d *memorydao.MemoryDAO, users []domain.User, chat domain.Chat, msgs []domain.Message) {
	chat.MsgCount = len(msgs)
	d.Seed(users, 1, []domain.Chat{chat}, map[domain.ChatID][]domain.Message{chat.ID: msgs})
}

func groupChat() domain.Chat {
	return domain.Chat{ID: 1, NameOption: "group", Type: domain.ChatTypePrivateGroup, MemberIDs: []domain.UserID{1, 2}}
}

func targetMessages(t *testing.T, target *memorydao.MemoryDAO, chatID domain.ChatID) []domain.Message {
	t.Helper()
	msgs, err := target.ScrollMessages(context.Background(), chatID, 0, 0)
	require.NoError(t, err)
	return msgs
}

func TestMergeKeepCopiesWholeMasterChat(t *testing.T) {
	f := newFixture()
	seedSide(f.master, defaultUsers, groupChat(), []domain.Message{
		textMsg(1, 1, 1, "a"),
		textMsg(2, 2, 2, "b"),
	})
	seedSide(f.slave, defaultUsers, groupChat(), nil)

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 1, nil,
		[]ChatMergeOption{{Action: ChatKeep, MasterChat: groupChat()}})
	require.NoError(t, err)

	msgs := targetMessages(t, f.target, 1)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].PlainText())
	assert.Equal(t, "b", msgs[1].PlainText())
	// target присваивает собственные монотонные internal_id
	assert.Less(t, msgs[0].ID, msgs[1].ID)
}

func TestMergeCombineRetainAddReplace(t *testing.T) {
	f := newFixture()
	mMsgs := []domain.Message{
		textMsg(1, 1, 1, "only master"),
		textMsg(2, 5, 5, "master version"),
	}
	sMsgs := []domain.Message{
		textMsg(1, 3, 3, "only slave"),
		textMsg(2, 5, 5, "slave version"),
	}
	seedSide(f.master, defaultUsers, groupChat(), mMsgs)
	seedSide(f.slave, defaultUsers, groupChat(), sMsgs)

	opt := ChatMergeOption{
		Action:     ChatCombine,
		MasterChat: groupChat(),
		SlaveChat:  groupChat(),
		Decisions: []Decision{
			{Kind: DecisionRetain, HasMaster: true, FirstMaster: mMsgs[0], LastMaster: mMsgs[0]},
			{Kind: DecisionAdd, HasSlave: true, FirstSlave: sMsgs[0], LastSlave: sMsgs[0]},
			{
				Kind:      DecisionReplace,
				HasMaster: true, FirstMaster: mMsgs[1], LastMaster: mMsgs[1],
				HasSlave: true, FirstSlave: sMsgs[1], LastSlave: sMsgs[1],
			},
		},
	}

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 1, nil, []ChatMergeOption{opt})
	require.NoError(t, err)

	msgs := targetMessages(t, f.target, 1)
	require.Len(t, msgs, 3)
	assert.Equal(t, "only master", msgs[0].PlainText())
	assert.Equal(t, "only slave", msgs[1].PlainText())
	// для Replace по умолчанию побеждает слейв
	assert.Equal(t, "slave version", msgs[2].PlainText())
}

func TestMergeDontReplaceKeepsMaster(t *testing.T) {
	f := newFixture()
	mMsgs := []domain.Message{textMsg(1, 5, 5, "master version")}
	sMsgs := []domain.Message{textMsg(1, 5, 5, "slave version")}
	seedSide(f.master, defaultUsers, groupChat(), mMsgs)
	seedSide(f.slave, defaultUsers, groupChat(), sMsgs)

	replace := Decision{
		Kind:      DecisionReplace,
		HasMaster: true, FirstMaster: mMsgs[0], LastMaster: mMsgs[0],
		HasSlave: true, FirstSlave: sMsgs[0], LastSlave: sMsgs[0],
	}
	opt := ChatMergeOption{
		Action:     ChatCombine,
		MasterChat: groupChat(),
		SlaveChat:  groupChat(),
		Decisions:  []Decision{replace.Override()},
	}

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 1, nil, []ChatMergeOption{opt})
	require.NoError(t, err)

	msgs := targetMessages(t, f.target, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "master version", msgs[0].PlainText())
}

func TestMergeMatchPrefersSideWithFiles(t *testing.T) {
	f := newFixture()
	mMsgs := []domain.Message{
		photoMsg(1, 1, 1, "p1.jpg"),
		photoMsg(2, 2, 2, "p2.jpg"),
		photoMsg(3, 3, 3, "p3.jpg"),
	}
	sMsgs := []domain.Message{
		photoMsg(1, 1, 1, "p1.jpg"),
		photoMsg(2, 2, 2, "p2.jpg"),
		photoMsg(3, 3, 3, "p3.jpg"),
	}
	seedSide(f.master, defaultUsers, groupChat(), mMsgs)
	seedSide(f.slave, defaultUsers, groupChat(), sMsgs)

	// p1 и p3 есть у мастера, p2 - только у слейва
	f.vfs.Put(rootMaster, "p1.jpg", []byte("master-1"))
	f.vfs.Put(rootMaster, "p3.jpg", []byte("master-3"))
	f.vfs.Put(rootSlave, "p1.jpg", []byte("slave-1"))
	f.vfs.Put(rootSlave, "p2.jpg", []byte("slave-2"))

	opt := ChatMergeOption{
		Action:     ChatCombine,
		MasterChat: groupChat(),
		SlaveChat:  groupChat(),
		Decisions: []Decision{{
			Kind:      DecisionMatch,
			HasMaster: true, FirstMaster: mMsgs[0], LastMaster: mMsgs[2],
			HasSlave: true, FirstSlave: sMsgs[0], LastSlave: sMsgs[2],
		}},
	}

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 1, nil, []ChatMergeOption{opt})
	require.NoError(t, err)

	require.Len(t, targetMessages(t, f.target, 1), 3)
	got1, ok := f.vfs.Get(rootTarget, "p1.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("master-1"), got1, "при файлах на обеих сторонах предпочитается мастер")
	got2, ok := f.vfs.Get(rootTarget, "p2.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("slave-2"), got2, "при файле только у слейва берётся слейв")
	got3, ok := f.vfs.Get(rootTarget, "p3.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("master-3"), got3)
}

func TestMergeReplaceCopiesNewMedia(t *testing.T) {
	f := newFixture()
	mMsgs := []domain.Message{photoMsg(1, 7, 10, "p.jpg")}
	sMsgs := []domain.Message{photoMsg(1, 7, 10, "p.jpg")}
	seedSide(f.master, defaultUsers, groupChat(), mMsgs)
	seedSide(f.slave, defaultUsers, groupChat(), sMsgs)

	f.vfs.Put(rootSlave, "p.jpg", make([]byte, 42))

	opt := ChatMergeOption{
		Action:     ChatCombine,
		MasterChat: groupChat(),
		SlaveChat:  groupChat(),
		Decisions: []Decision{{
			Kind:      DecisionReplace,
			HasMaster: true, FirstMaster: mMsgs[0], LastMaster: mMsgs[0],
			HasSlave: true, FirstSlave: sMsgs[0], LastSlave: sMsgs[0],
		}},
	}

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 1, nil, []ChatMergeOption{opt})
	require.NoError(t, err)

	data, ok := f.vfs.Get(rootTarget, "p.jpg")
	require.True(t, ok)
	assert.Len(t, data, 42)
}

func TestMergePersonalChatRenamed(t *testing.T) {
	f := newFixture()
	personal := domain.Chat{ID: 1, NameOption: "Old Name", Type: domain.ChatTypePersonal, MemberIDs: []domain.UserID{1, 2}}
	seedSide(f.master, defaultUsers, personal, []domain.Message{textMsg(1, 1, 1, "hi")})
	seedSide(f.slave, []domain.User{
		{ID: 1, FirstName: "Self", IsMyself: true},
		{ID: 2, FirstName: "New", LastName: "Name"},
	}, personal, nil)

	slaveUsers, err := f.slave.Users(context.Background())
	require.NoError(t, err)
	var slavePeer domain.User
	for _, u := range slaveUsers {
		if u.ID == 2 {
			slavePeer = u
		}
	}

	users := []UserMergeOption{{Action: UserReplace, Master: defaultUsers[1], Slave: slavePeer}}
	_, err = f.executor(nil).Merge(context.Background(), "merged", "test", 1, users,
		[]ChatMergeOption{{Action: ChatKeep, MasterChat: personal}})
	require.NoError(t, err)

	chats, err := f.target.Chats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "New Name", chats[0].Chat.NameOption)
}

func TestMergeRewritesServiceMemberNames(t *testing.T) {
	f := newFixture()
	seedSide(f.master, defaultUsers, groupChat(), []domain.Message{
		inviteMsg(1, 1, 1, "Peer", "Stranger"),
	})
	seedSide(f.slave, []domain.User{
		{ID: 1, FirstName: "Self", IsMyself: true},
		{ID: 2, FirstName: "Renamed", LastName: "Peer"},
	}, groupChat(), nil)

	slaveUsers, err := f.slave.Users(context.Background())
	require.NoError(t, err)
	var slavePeer domain.User
	for _, u := range slaveUsers {
		if u.ID == 2 {
			slavePeer = u
		}
	}

	users := []UserMergeOption{{Action: UserReplace, Master: defaultUsers[1], Slave: slavePeer}}
	_, err = f.executor(nil).Merge(context.Background(), "merged", "test", 1, users,
		[]ChatMergeOption{{Action: ChatKeep, MasterChat: groupChat()}})
	require.NoError(t, err)

	msgs := targetMessages(t, f.target, 1)
	require.Len(t, msgs, 1)
	// разрешимое имя переписано, неразрешимое оставлено как есть
	assert.Equal(t, []string{"Renamed Peer", "Stranger"}, msgs[0].Typed.Service.MemberNames)
}

func TestMergeFailsWithoutSelf(t *testing.T) {
	f := newFixture()
	seedSide(f.master, defaultUsers, groupChat(), nil)
	seedSide(f.slave, defaultUsers, groupChat(), nil)

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 99, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master self id")
}

func TestMergeBackupTakenForNonEmptyTarget(t *testing.T) {
	f := newFixture()
	seedSide(f.master, defaultUsers, groupChat(), nil)
	seedSide(f.slave, defaultUsers, groupChat(), nil)
	// target уже содержит сообщения
	oldChat := domain.Chat{ID: 99, NameOption: "old", Type: domain.ChatTypePrivateGroup, MemberIDs: []domain.UserID{1}}
	seedSide(f.target, defaultUsers, oldChat, []domain.Message{textMsg(1, 1, 1, "old data")})

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.target.BackupCount())
	assert.True(t, f.target.BackupsEnabled())
}

func TestMergeNoBackupForEmptyTarget(t *testing.T) {
	f := newFixture()
	seedSide(f.master, defaultUsers, groupChat(), nil)
	seedSide(f.slave, defaultUsers, groupChat(), nil)

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, f.target.BackupCount())
	assert.True(t, f.target.BackupsEnabled())
}

// failingDAO ломает запись сообщений, оставляя остальное поведение
// memorydao нетронутым.
type failingDAO struct {
	*memorydao.MemoryDAO
}

func (f *failingDAO) InsertMessages(ctx context.Context, srcRoot domain.DatasetRoot, chat domain.ChatID, msgs []domain.Message) error {
	return errors.New("disk is full")
}

func TestMergeReenablesBackupsOnFailure(t *testing.T) {
	f := newFixture()
	seedSide(f.master, defaultUsers, groupChat(), []domain.Message{textMsg(1, 1, 1, "a")})
	seedSide(f.slave, defaultUsers, groupChat(), nil)

	broken := &failingDAO{f.target}
	_, err := f.executor(broken).Merge(context.Background(), "merged", "test", 1, nil,
		[]ChatMergeOption{{Action: ChatKeep, MasterChat: groupChat()}})
	require.Error(t, err)
	assert.True(t, f.target.BackupsEnabled(), "бэкапы должны включиться обратно и при ошибке")
}

func TestMergeAddCopiesSlaveChat(t *testing.T) {
	f := newFixture()
	seedSide(f.master, defaultUsers, groupChat(), nil)
	slaveChat := domain.Chat{ID: 7, NameOption: "slave only", Type: domain.ChatTypePrivateGroup, MemberIDs: []domain.UserID{1, 2}}
	seedSide(f.slave, defaultUsers, slaveChat, []domain.Message{textMsg(1, 1, 1, "from slave")})

	_, err := f.executor(nil).Merge(context.Background(), "merged", "test", 1, nil,
		[]ChatMergeOption{{Action: ChatAdd, SlaveChat: slaveChat}})
	require.NoError(t, err)

	msgs := targetMessages(t, f.target, 7)
	require.Len(t, msgs, 1)
	assert.Equal(t, "from slave", msgs[0].PlainText())
}
