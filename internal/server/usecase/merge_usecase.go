// Package usecase инкапсулирует бизнес-логику HTTP-сервера слияния: открыть
// sqlite-датасеты по запросу, прогнать анализ диффов и, при необходимости,
// записать итоговый датасет.
package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"chatmerge/internal/dao"
	"chatmerge/internal/dao/sqlitedao"
	"chatmerge/internal/digest"
	"chatmerge/internal/domain"
	"chatmerge/internal/engine"
	"chatmerge/internal/merge"
	"chatmerge/internal/pkg/config"
)

// ChatPair - одна пара чатов из запроса. Action: "keep" (чат переносится
// целиком из мастера), "add" (целиком из слейва) либо "combine" (прогоняется
// движок диффов).
type ChatPair struct {
	Action       string `json:"action"`
	MasterChatID int64  `json:"master_chat_id,omitempty"`
	SlaveChatID  int64  `json:"slave_chat_id,omitempty"`
}

// AnalyzeRequest описывает две стороны сравнения: пути к файлам баз данных,
// UUID датасетов внутри них и список пар чатов.
type AnalyzeRequest struct {
	MasterDB      string     `json:"master_db"`
	MasterDataset string     `json:"master_dataset"`
	SlaveDB       string     `json:"slave_db"`
	SlaveDataset  string     `json:"slave_dataset"`
	Chats         []ChatPair `json:"chats"`
}

// SegmentRef адресует один сегмент диффа внутри combine-чата.
type SegmentRef struct {
	MasterChatID int64 `json:"master_chat_id"`
	SegmentIndex int   `json:"segment_index"`
}

// UserReplacePair объявляет, что пользователь мастера и пользователь слейва -
// один и тот же человек; поля слейва побеждают под идентификатором мастера.
type UserReplacePair struct {
	MasterID int64 `json:"master_id"`
	SlaveID  int64 `json:"slave_id"`
}

// MergeRequest - запрос на запись итогового датасета: тот же вход, что у
// анализа, плюс целевая база, атрибуты нового датасета и пользовательские
// переопределения (DontReplace для сегментов Replace, ReplaceUsers для
// отождествления пользователей).
type MergeRequest struct {
	AnalyzeRequest
	TargetDB     string            `json:"target_db"`
	Alias        string            `json:"alias"`
	SourceType   string            `json:"source_type"`
	ReplaceUsers []UserReplacePair `json:"replace_users,omitempty"`
	DontReplace  []SegmentRef      `json:"dont_replace,omitempty"`
}

// SegmentView - сериализуемое представление одного сегмента диффа для ответа
// сервера. Границы даны строками QualifiedID, чтобы клиент мог адресовать
// сообщения независимо от того, есть ли у них source_id.
type SegmentView struct {
	Kind        string `json:"kind"`
	FirstMaster string `json:"first_master,omitempty"`
	LastMaster  string `json:"last_master,omitempty"`
	FirstSlave  string `json:"first_slave,omitempty"`
	LastSlave   string `json:"last_slave,omitempty"`
}

// ChatAnalysis - результат анализа одной пары чатов.
type ChatAnalysis struct {
	Action       string        `json:"action"`
	MasterChatID int64         `json:"master_chat_id,omitempty"`
	SlaveChatID  int64         `json:"slave_chat_id,omitempty"`
	Segments     []SegmentView `json:"segments,omitempty"`
}

// Result - итог задачи сервера: список анализов (для analyze) и/или UUID
// нового датасета (для merge).
type Result struct {
	Analysis       []ChatAnalysis `json:"analysis,omitempty"`
	NewDatasetUUID string         `json:"new_dataset_uuid,omitempty"`
}

// MergeUseCase инкапсулирует сценарии analyze и merge поверх
// sqlite-реализации DAO.
type MergeUseCase struct {
	cfg *config.Config
	log *slog.Logger
}

// NewMergeUseCase создает новый экземпляр MergeUseCase.
func NewMergeUseCase(cfg *config.Config, log *slog.Logger) *MergeUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &MergeUseCase{cfg: cfg, log: log}
}

// boundDAO - открытый и привязанный к датасету sqlite-DAO вместе с его корнем.
type boundDAO struct {
	dao  *sqlitedao.DAO
	root domain.DatasetRoot
}

func (uc *MergeUseCase) openBound(ctx context.Context, dbPath, datasetUUID string) (*boundDAO, error) {
	id, err := uuid.Parse(datasetUUID)
	if err != nil {
		return nil, fmt.Errorf("некорректный UUID датасета %q: %w", datasetUUID, err)
	}
	d, err := sqlitedao.Open(ctx, dbPath, uc.cfg.Storage.SQLiteDir)
	if err != nil {
		return nil, err
	}
	if err := d.BindDataset(ctx, id); err != nil {
		d.Close()
		return nil, err
	}
	root, err := d.Root(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}
	return &boundDAO{dao: d, root: root}, nil
}

// DatasetView - сериализуемое описание одного датасета базы.
type DatasetView struct {
	UUID       string `json:"uuid"`
	Alias      string `json:"alias"`
	SourceType string `json:"source_type"`
}

// ListDatasets перечисляет датасеты указанной базы - с этого начинается
// любой сценарий: клиент выбирает из списка мастер и слейв.
func (uc *MergeUseCase) ListDatasets(ctx context.Context, dbPath string) ([]DatasetView, error) {
	d, err := sqlitedao.Open(ctx, dbPath, uc.cfg.Storage.SQLiteDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу %s: %w", dbPath, err)
	}
	defer d.Close()

	listed, err := d.Datasets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DatasetView, 0, len(listed))
	for _, ds := range listed {
		out = append(out, DatasetView{UUID: ds.UUID.String(), Alias: ds.Alias, SourceType: ds.SourceType})
	}
	return out, nil
}

// Analyze открывает обе стороны, прогоняет движок диффов по каждой
// combine-паре и возвращает сериализуемые сегменты.
func (uc *MergeUseCase) Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	master, err := uc.openBound(ctx, req.MasterDB, req.MasterDataset)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть мастер-датасет: %w", err)
	}
	defer master.dao.Close()

	slave, err := uc.openBound(ctx, req.SlaveDB, req.SlaveDataset)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть slave-датасет: %w", err)
	}
	defer slave.dao.Close()

	opts, err := uc.analyze(ctx, master, slave, req.Chats)
	if err != nil {
		return nil, err
	}

	uc.log.InfoContext(ctx, "analysis finished", "chat_pairs", len(opts))
	return &Result{Analysis: summarize(opts)}, nil
}

// Merge повторяет анализ, применяет пользовательские переопределения и
// записывает итоговый датасет в целевую базу.
func (uc *MergeUseCase) Merge(ctx context.Context, req MergeRequest) (*Result, error) {
	master, err := uc.openBound(ctx, req.MasterDB, req.MasterDataset)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть мастер-датасет: %w", err)
	}
	defer master.dao.Close()

	slave, err := uc.openBound(ctx, req.SlaveDB, req.SlaveDataset)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть slave-датасет: %w", err)
	}
	defer slave.dao.Close()

	target, err := sqlitedao.Open(ctx, req.TargetDB, uc.cfg.Storage.SQLiteDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть целевую базу: %w", err)
	}
	defer target.Close()

	chatOpts, err := uc.analyze(ctx, master, slave, req.Chats)
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(chatOpts, req.DontReplace); err != nil {
		return nil, err
	}

	userOpts, selfID, err := uc.buildUserOptions(ctx, master.dao, slave.dao, req.ReplaceUsers)
	if err != nil {
		return nil, err
	}

	files := digest.New()
	newUUID, err := engine.Merge(ctx,
		master.dao, slave.dao, target,
		master.root, slave.root, files,
		req.Alias, req.SourceType, selfID,
		userOpts, chatOpts, uc.log,
	)
	if err != nil {
		return nil, err
	}

	uc.log.InfoContext(ctx, "merge finished", "new_dataset", newUUID)
	return &Result{Analysis: summarize(chatOpts), NewDatasetUUID: newUUID.String()}, nil
}

// analyze превращает пары запроса в engine.ChatPairInput и запускает
// engine.Analyze с общим кэшем дайджестов.
func (uc *MergeUseCase) analyze(ctx context.Context, master, slave *boundDAO, pairs []ChatPair) ([]merge.ChatMergeOption, error) {
	masterChats, err := chatsByID(ctx, master.dao)
	if err != nil {
		return nil, fmt.Errorf("не удалось перечислить чаты мастера: %w", err)
	}
	slaveChats, err := chatsByID(ctx, slave.dao)
	if err != nil {
		return nil, fmt.Errorf("не удалось перечислить чаты слейва: %w", err)
	}

	inputs := make([]engine.ChatPairInput, 0, len(pairs))
	for _, p := range pairs {
		var in engine.ChatPairInput
		switch p.Action {
		case "keep":
			in.Action = merge.ChatKeep
			c, ok := masterChats[domain.ChatID(p.MasterChatID)]
			if !ok {
				return nil, fmt.Errorf("чат %d не найден в мастер-датасете", p.MasterChatID)
			}
			in.MasterChat = c
		case "add":
			in.Action = merge.ChatAdd
			c, ok := slaveChats[domain.ChatID(p.SlaveChatID)]
			if !ok {
				return nil, fmt.Errorf("чат %d не найден в slave-датасете", p.SlaveChatID)
			}
			in.SlaveChat = c
		case "combine":
			in.Action = merge.ChatCombine
			mc, ok := masterChats[domain.ChatID(p.MasterChatID)]
			if !ok {
				return nil, fmt.Errorf("чат %d не найден в мастер-датасете", p.MasterChatID)
			}
			sc, ok := slaveChats[domain.ChatID(p.SlaveChatID)]
			if !ok {
				return nil, fmt.Errorf("чат %d не найден в slave-датасете", p.SlaveChatID)
			}
			in.MasterChat, in.SlaveChat = mc, sc
		default:
			return nil, fmt.Errorf("неизвестное действие %q для пары чатов", p.Action)
		}
		inputs = append(inputs, in)
	}

	return engine.Analyze(ctx, master.dao, slave.dao, master.root, slave.root, digest.New(), uc.cfg.Merge.StreamBatchSize, inputs)
}

func chatsByID(ctx context.Context, r dao.Reader) (map[domain.ChatID]domain.Chat, error) {
	listed, err := r.Chats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ChatID]domain.Chat, len(listed))
	for _, cwd := range listed {
		out[cwd.Chat.ID] = cwd.Chat
	}
	return out, nil
}

// buildUserOptions строит список слияния пользователей: каждый пользователь
// мастера остаётся (Keep добавляет executor), каждая пара ReplaceUsers даёт
// Replace, а пользователи слейва, не упомянутые ни в мастере, ни в парах,
// добавляются как Add.
func (uc *MergeUseCase) buildUserOptions(ctx context.Context, master, slave dao.Reader, pairs []UserReplacePair) ([]merge.UserMergeOption, domain.UserID, error) {
	masterUsers, err := master.Users(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("не удалось перечислить пользователей мастера: %w", err)
	}
	slaveUsers, err := slave.Users(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("не удалось перечислить пользователей слейва: %w", err)
	}

	var selfID domain.UserID
	masterByID := make(map[domain.UserID]domain.User, len(masterUsers))
	for _, u := range masterUsers {
		masterByID[u.ID] = u
		if u.IsMyself {
			selfID = u.ID
		}
	}
	if !selfID.IsValid() {
		return nil, 0, fmt.Errorf("в мастер-датасете не отмечен пользователь self")
	}

	slaveByID := make(map[domain.UserID]domain.User, len(slaveUsers))
	for _, u := range slaveUsers {
		slaveByID[u.ID] = u
	}

	var opts []merge.UserMergeOption
	replacedSlave := make(map[domain.UserID]struct{}, len(pairs))
	for _, p := range pairs {
		mu, ok := masterByID[domain.UserID(p.MasterID)]
		if !ok {
			return nil, 0, fmt.Errorf("пользователь %d не найден в мастер-датасете", p.MasterID)
		}
		su, ok := slaveByID[domain.UserID(p.SlaveID)]
		if !ok {
			return nil, 0, fmt.Errorf("пользователь %d не найден в slave-датасете", p.SlaveID)
		}
		opts = append(opts, merge.UserMergeOption{Action: merge.UserReplace, Master: mu, Slave: su})
		replacedSlave[su.ID] = struct{}{}
	}
	for _, su := range slaveUsers {
		if _, ok := masterByID[su.ID]; ok {
			continue
		}
		if _, ok := replacedSlave[su.ID]; ok {
			continue
		}
		opts = append(opts, merge.UserMergeOption{Action: merge.UserAdd, Slave: su})
	}
	return opts, selfID, nil
}

// applyOverrides переводит адресованные клиентом сегменты Replace в
// DontReplace.
func applyOverrides(opts []merge.ChatMergeOption, refs []SegmentRef) error {
	for _, ref := range refs {
		applied := false
		for i := range opts {
			if opts[i].Action != merge.ChatCombine || opts[i].MasterChat.ID != domain.ChatID(ref.MasterChatID) {
				continue
			}
			if ref.SegmentIndex < 0 || ref.SegmentIndex >= len(opts[i].Decisions) {
				return fmt.Errorf("сегмент %d вне диапазона для чата %d", ref.SegmentIndex, ref.MasterChatID)
			}
			opts[i].Decisions[ref.SegmentIndex] = opts[i].Decisions[ref.SegmentIndex].Override()
			applied = true
		}
		if !applied {
			return fmt.Errorf("combine-чат %d не найден среди пар запроса", ref.MasterChatID)
		}
	}
	return nil
}

func summarize(opts []merge.ChatMergeOption) []ChatAnalysis {
	out := make([]ChatAnalysis, 0, len(opts))
	for _, opt := range opts {
		ca := ChatAnalysis{
			MasterChatID: int64(opt.MasterChat.ID),
			SlaveChatID:  int64(opt.SlaveChat.ID),
		}
		switch opt.Action {
		case merge.ChatKeep:
			ca.Action = "keep"
			ca.SlaveChatID = 0
		case merge.ChatAdd:
			ca.Action = "add"
			ca.MasterChatID = 0
		case merge.ChatCombine:
			ca.Action = "combine"
			for _, d := range opt.Decisions {
				ca.Segments = append(ca.Segments, segmentView(d))
			}
		}
		out = append(out, ca)
	}
	return out
}

func segmentView(d merge.Decision) SegmentView {
	v := SegmentView{}
	switch d.Kind {
	case merge.DecisionMatch:
		v.Kind = "match"
	case merge.DecisionRetain:
		v.Kind = "retain"
	case merge.DecisionAdd:
		v.Kind = "add"
	case merge.DecisionReplace:
		v.Kind = "replace"
	case merge.DecisionDontReplace:
		v.Kind = "dont_replace"
	}
	if d.HasMaster {
		v.FirstMaster = d.FirstMaster.QualifiedID()
		v.LastMaster = d.LastMaster.QualifiedID()
	}
	if d.HasSlave {
		v.FirstSlave = d.FirstSlave.QualifiedID()
		v.LastSlave = d.LastSlave.QualifiedID()
	}
	return v
}
