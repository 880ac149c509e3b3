package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"chatmerge/internal/dao"
	"chatmerge/internal/domain"
	"chatmerge/internal/stream"
)

// Executor записывает итоговый датасет, построенный из решений пользователя
// по чатам (ChatMergeOption, снятым с диффов internal/diff) и пользователям
// (UserMergeOption).
type Executor struct {
	master dao.Reader
	slave dao.Reader
	target dao.DAO

	rootMaster domain.DatasetRoot
	rootSlave domain.DatasetRoot
	files domain.FileAccessor

	log *slog.Logger
}

// NewExecutor создаёт исполнитель слияния. master/slave - источники, чьи
// сообщения переносятся в target согласно переданным решениям. files
// используется только для разрешения Match-сегментов.
func NewExecutor(master, slave dao.Reader, target dao.DAO, rootMaster, rootSlave domain.DatasetRoot, files domain.FileAccessor, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{master: master, slave: slave, target: target, rootMaster: rootMaster, rootSlave: rootSlave, files: files, log: log}
}

// Merge выполняет слияние и возвращает UUID новосозданного датасета.
// masterSelfID - id пользователя, являющегося "собой" в мастер-датасете;
// ровно один пользователь итогового списка должен получить этот id.
func (e *Executor) Merge(ctx context.Context, alias, sourceType string, masterSelfID domain.UserID, users []UserMergeOption, chats []ChatMergeOption) (uuid.UUID, error) {
	users, err := e.augmentKeepUsers(ctx, users)
	if err != nil {
		return uuid.Nil, fmt.Errorf("merge: listing master users: %w", err)
	}

	if err := e.backupIfNonEmpty(ctx); err != nil {
		return uuid.Nil, err
	}

	ds := domain.Dataset{UUID: domain.NewDatasetID(), Alias: alias, SourceType: sourceType}
	targetRoot, err := e.target.InsertDataset(ctx, ds)
	if err != nil {
		return uuid.Nil, fmt.Errorf("merge: creating target dataset: %w", err)
	}
	e.log.InfoContext(ctx, "created target dataset", "uuid", ds.UUID, "root", targetRoot)

	finalUsers, nameMap, err := e.writeUsers(ctx, ds.UUID, masterSelfID, users)
	if err != nil {
		return uuid.Nil, err
	}
	resolver := Resolver(func(old string) (string, bool) {
		n, ok := nameMap[old]
		return n, ok
	})

	if err := e.target.DisableBackups(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("merge: disabling backups: %w", err)
	}
	defer func() {
		enableCtx := context.WithoutCancel(ctx)
		if err := e.target.EnableBackups(enableCtx); err != nil {
			e.log.ErrorContext(enableCtx, "failed to re-enable backups after merge", "error", err)
		}
	}()

	for _, chatOpt := range chats {
		if err := e.mergeChat(ctx, ds.UUID, chatOpt, finalUsers, resolver); err != nil {
			return uuid.Nil, err
		}
	}

	e.log.InfoContext(ctx, "merge finished", "dataset", ds.UUID, "chats", len(chats), "users", len(finalUsers))
	return ds.UUID, nil
}

// backupIfNonEmpty делает резервную копию целевого DAO перед записью, если
// тот уже содержит хотя бы одно сообщение: при частичном провале слияния
// именно эта копия - механизм восстановления.
func (e *Executor) backupIfNonEmpty(ctx context.Context) error {
	existing, err := e.target.Chats(ctx)
	if err != nil {
		return fmt.Errorf("merge: inspecting target before backup: %w", err)
	}
	for _, cwd := range existing {
		if cwd.Chat.MsgCount > 0 || cwd.LastMsgOption != nil {
			e.log.InfoContext(ctx, "target is non-empty, taking a backup before merge")
			if err := e.target.Backup(ctx); err != nil {
				return fmt.Errorf("merge: backing up target: %w", err)
			}
			return nil
		}
	}
	return nil
}

// augmentKeepUsers дополняет явный список Keep-опцией для каждого
// пользователя мастера, не упомянутого вызывающей стороной.
func (e *Executor) augmentKeepUsers(ctx context.Context, users []UserMergeOption) ([]UserMergeOption, error) {
	mentioned := make(map[domain.UserID]struct{}, len(users))
	for _, u := range users {
		if u.Action == UserKeep || u.Action == UserReplace {
			mentioned[u.Master.ID] = struct{}{}
		}
	}
	masterUsers, err := e.master.Users(ctx)
	if err != nil {
		return nil, err
	}
	for _, mu := range masterUsers {
		if _, ok := mentioned[mu.ID]; !ok {
			users = append(users, UserMergeOption{Action: UserKeep, Master: mu})
		}
	}
	return users, nil
}

// writeUsers пишет итоговых пользователей в target и строит карту
// "старое отображаемое имя -> новое отображаемое имя" для RewriteMembers.
func (e *Executor) writeUsers(ctx context.Context, datasetUUID uuid.UUID, masterSelfID domain.UserID, users []UserMergeOption) ([]domain.User, map[string]string, error) {
	finalUsers := make([]domain.User, 0, len(users))
	nameMap := make(map[string]string, len(users)*2)
	selfFound := false

	for _, opt := range users {
		var u domain.User
		switch opt.Action {
		case UserKeep:
			u = opt.Master
		case UserAdd:
			u = opt.Slave
		case UserReplace:
			u = opt.Slave
			u.ID = opt.Master.ID
		default:
			return nil, nil, fmt.Errorf("merge: unknown user action %d", opt.Action)
		}
		u.DatasetUUID = datasetUUID
		u.IsMyself = u.ID == masterSelfID
		if u.IsMyself {
			selfFound = true
		}

		if err := e.target.InsertUser(ctx, u, u.IsMyself); err != nil {
			return nil, nil, fmt.Errorf("merge: inserting user %d: %w", u.ID, err)
		}

		finalName := u.PrettyName()
		if opt.Action != UserAdd {
			nameMap[opt.Master.PrettyName()] = finalName
		}
		if opt.Action != UserKeep {
			nameMap[opt.Slave.PrettyName()] = finalName
		}
		finalUsers = append(finalUsers, u)
	}

	if !selfFound {
		return nil, nil, fmt.Errorf("merge: no user in the final list carries master self id %d", masterSelfID)
	}
	return finalUsers, nameMap, nil
}

func (e *Executor) mergeChat(ctx context.Context, datasetUUID uuid.UUID, opt ChatMergeOption, finalUsers []domain.User, resolver Resolver) error {
	switch opt.Action {
	case ChatKeep:
		return e.copyWholeChat(ctx, datasetUUID, opt.MasterChat, e.master, e.rootMaster, finalUsers, resolver)
	case ChatAdd:
		return e.copyWholeChat(ctx, datasetUUID, opt.SlaveChat, e.slave, e.rootSlave, finalUsers, resolver)
	case ChatCombine:
		return e.combineChat(ctx, datasetUUID, opt, finalUsers, resolver)
	default:
		return fmt.Errorf("merge: unknown chat action %d", opt.Action)
	}
}

// copyWholeChat переносит чат целиком из одного источника, без слияния с
// другим.
func (e *Executor) copyWholeChat(ctx context.Context, datasetUUID uuid.UUID, chat domain.Chat, reader dao.Reader, root domain.DatasetRoot, finalUsers []domain.User, resolver Resolver) error {
	final := chat
	final.DatasetUUID = datasetUUID
	renamePersonalChat(&final, finalUsers)

	if err := e.target.InsertChat(ctx, root, final); err != nil {
		return fmt.Errorf("merge: inserting chat %s: %w", chat.QualifiedName(), err)
	}

	src := stream.New(reader, chat.ID, 0)
	for {
		batch, err := src.NextBatch(ctx)
		if err != nil {
			return fmt.Errorf("merge: reading messages for chat %s: %w", chat.QualifiedName(), err)
		}
		if len(batch) == 0 {
			return nil
		}
		rewriteInPlace(batch, resolver)
		if err := e.target.InsertMessages(ctx, root, final.ID, batch); err != nil {
			return fmt.Errorf("merge: inserting messages for chat %s: %w", chat.QualifiedName(), err)
		}
	}
}

// combineChat переносит чат, объединяя мастер и слейв по решениям, снятым
// с сегментов диффа.
func (e *Executor) combineChat(ctx context.Context, datasetUUID uuid.UUID, opt ChatMergeOption, finalUsers []domain.User, resolver Resolver) error {
	final := opt.MasterChat
	final.DatasetUUID = datasetUUID
	final.MemberIDs = unionUserIDs(opt.MasterChat.MemberIDs, opt.SlaveChat.MemberIDs)
	renamePersonalChat(&final, finalUsers)

	if err := e.target.InsertChat(ctx, e.rootMaster, final); err != nil {
		return fmt.Errorf("merge: inserting combined chat %s: %w", final.QualifiedName(), err)
	}

	for _, d := range opt.Decisions {
		if d.Kind == DecisionMatch {
			if err := e.combineMatchRange(ctx, final, opt, d, resolver); err != nil {
				return err
			}
			continue
		}

		var (
			reader dao.Reader
			root domain.DatasetRoot
			chatID domain.ChatID
			first domain.Message
			last domain.Message
			present bool
		)
		switch d.Kind {
		case DecisionRetain, DecisionDontReplace:
			reader, root, chatID = e.master, e.rootMaster, opt.MasterChat.ID
			first, last, present = d.FirstMaster, d.LastMaster, d.HasMaster
		case DecisionAdd, DecisionReplace:
			reader, root, chatID = e.slave, e.rootSlave, opt.SlaveChat.ID
			first, last, present = d.FirstSlave, d.LastSlave, d.HasSlave
		default:
			return fmt.Errorf("merge: unknown decision kind %d", d.Kind)
		}
		if !present {
			continue
		}

		msgs, err := reader.MessagesBetween(ctx, chatID, first, last)
		if err != nil {
			return fmt.Errorf("merge: reading range %s..%s in chat %s: %w", first.QualifiedID(), last.QualifiedID(), final.QualifiedName(), err)
		}
		if len(msgs) == 0 {
			continue
		}
		rewriteInPlace(msgs, resolver)
		if err := e.target.InsertMessages(ctx, root, final.ID, msgs); err != nil {
			return fmt.Errorf("merge: inserting range into chat %s: %w", final.QualifiedName(), err)
		}
	}
	return nil
}

// combineMatchRange реализует "Match(fM,lM,fS,lS) → zip master и
// slave диапазоны ... для каждой пары выбрать сторону, чьи файлы существуют,
// предпочитая мастер": выбирает по каждой паре сообщений источник, чьи
// файлы присутствуют на диске, затем режет получившуюся смешанную
// последовательность на максимальные по длине однородные по корню прогоны
// для пакетной записи.
func (e *Executor) combineMatchRange(ctx context.Context, final domain.Chat, opt ChatMergeOption, d Decision, resolver Resolver) error {
	masterMsgs, err := e.master.MessagesBetween(ctx, opt.MasterChat.ID, d.FirstMaster, d.LastMaster)
	if err != nil {
		return fmt.Errorf("merge: reading master match range in chat %s: %w", final.QualifiedName(), err)
	}
	slaveMsgs, err := e.slave.MessagesBetween(ctx, opt.SlaveChat.ID, d.FirstSlave, d.LastSlave)
	if err != nil {
		return fmt.Errorf("merge: reading slave match range in chat %s: %w", final.QualifiedName(), err)
	}
	if len(masterMsgs) != len(slaveMsgs) {
		return fmt.Errorf("merge: match range length mismatch in chat %s: master=%d slave=%d", final.QualifiedName(), len(masterMsgs), len(slaveMsgs))
	}
	if len(masterMsgs) == 0 {
		return nil
	}

	type picked struct {
		msg domain.Message
		root domain.DatasetRoot
	}
	seq := make([]picked, len(masterMsgs))
	for i, m := range masterMsgs {
		s := slaveMsgs[i]
		if e.files == nil || filesExist(e.rootMaster, e.files, m.FilesRelative()) {
			seq[i] = picked{m, e.rootMaster}
		} else if filesExist(e.rootSlave, e.files, s.FilesRelative()) {
			seq[i] = picked{s, e.rootSlave}
		} else {
			seq[i] = picked{m, e.rootMaster}
		}
	}

	for i := 0; i < len(seq); {
		j := i + 1
		for j < len(seq) && seq[j].root == seq[i].root {
			j++
		}
		run := make([]domain.Message, j-i)
		for k := i; k < j; k++ {
			run[k-i] = seq[k].msg
		}
		rewriteInPlace(run, resolver)
		if err := e.target.InsertMessages(ctx, seq[i].root, final.ID, run); err != nil {
			return fmt.Errorf("merge: inserting matched run into chat %s: %w", final.QualifiedName(), err)
		}
		i = j
	}
	return nil
}

func filesExist(root domain.DatasetRoot, files domain.FileAccessor, relPaths []string) bool {
	for _, p := range relPaths {
		if !files.Exists(root, p) {
			return false
		}
	}
	return true
}

func rewriteInPlace(msgs []domain.Message, resolver Resolver) {
	for i, m := range msgs {
		msgs[i] = RewriteMembers(m, resolver)
	}
}

func unionUserIDs(a, b []domain.UserID) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(a)+len(b))
	out := make([]domain.UserID, 0, len(a)+len(b))
	for _, ids := range [][]domain.UserID{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// renamePersonalChat переименовывает личную переписку по имени
// собеседника, не являющегося собой, в итоговом списке пользователей - так
// чат подхватывает переименование, выбранное при слиянии пользователей.
func renamePersonalChat(chat *domain.Chat, finalUsers []domain.User) {
	if chat.Type != domain.ChatTypePersonal {
		return
	}
	byID := make(map[domain.UserID]domain.User, len(finalUsers))
	for _, u := range finalUsers {
		byID[u.ID] = u
	}
	for _, id := range chat.MemberIDs {
		if u, ok := byID[id]; ok && !u.IsMyself {
			chat.NameOption = u.PrettyName()
			return
		}
	}
}
