// Package engine предоставляет программный API слияния: Analyze
// строит ChatMergeOption (заполняя решения для Combine-пар диффом
// internal/diff), Merge записывает итоговый датасет через
// internal/merge.Executor. Тонкий оркестратор поверх портов пакета, без
// собственной бизнес-логики.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"chatmerge/internal/dao"
	"chatmerge/internal/diff"
	"chatmerge/internal/domain"
	"chatmerge/internal/merge"
	"chatmerge/internal/stream"
)

// ChatPairInput - одна пара чатов, поданная на анализ.
// Action решает, что Analyze сделает для этого чата: Keep/Add переносятся
// без диффа, Combine запускает движок диффов.
type ChatPairInput struct {
	Action merge.ChatAction

	MasterChat domain.Chat // валиден при Keep и Combine
	SlaveChat domain.Chat // валиден при Add и Combine
}

// Analyze для каждой Combine-пары прогоняет движок диффов и заполняет
// итоговый ChatMergeOption решениями по умолчанию; Keep/Add переносятся как
// есть. batchSize задаёт размер пакета чтения потоков (0 - значение по
// умолчанию).
func Analyze(
	ctx context.Context,
	masterReader, slaveReader dao.Reader,
	masterRoot, slaveRoot domain.DatasetRoot,
	files domain.FileAccessor,
	batchSize int,
	pairs []ChatPairInput,
) ([]merge.ChatMergeOption, error) {
	results := make([]merge.ChatMergeOption, 0, len(pairs))
	for _, p := range pairs {
		switch p.Action {
		case merge.ChatKeep:
			results = append(results, merge.ChatMergeOption{Action: merge.ChatKeep, MasterChat: p.MasterChat})

		case merge.ChatAdd:
			results = append(results, merge.ChatMergeOption{Action: merge.ChatAdd, SlaveChat: p.SlaveChat})

		case merge.ChatCombine:
			decisions, err := diffChat(ctx, masterReader, slaveReader, masterRoot, slaveRoot, files, batchSize, p.MasterChat, p.SlaveChat)
			if err != nil {
				return nil, fmt.Errorf("engine: analyzing chat %s / %s: %w", p.MasterChat.QualifiedName(), p.SlaveChat.QualifiedName(), err)
			}
			results = append(results, merge.ChatMergeOption{
				Action: merge.ChatCombine,
				MasterChat: p.MasterChat,
				SlaveChat: p.SlaveChat,
				Decisions: decisions,
			})

		default:
			return nil, fmt.Errorf("engine: unknown chat pairing action %d", p.Action)
		}
	}
	return results, nil
}

// diffChat прогоняет internal/diff.Engine над потоками двух сторон одного
// логического чата и превращает выданные сегменты в решения по умолчанию.
func diffChat(
	ctx context.Context,
	masterReader, slaveReader dao.Reader,
	masterRoot, slaveRoot domain.DatasetRoot,
	files domain.FileAccessor,
	batchSize int,
	masterChat, slaveChat domain.Chat,
) ([]merge.Decision, error) {
	masterStream := diff.NewMasterStream(stream.New(masterReader, masterChat.ID, batchSize))
	slaveStream := diff.NewSlaveStream(stream.New(slaveReader, slaveChat.ID, batchSize))

	eng := diff.New(masterChat.QualifiedName(), masterRoot, slaveRoot, files)
	segments, err := eng.Run(ctx, masterStream, slaveStream)
	if err != nil {
		return nil, err
	}

	decisions := make([]merge.Decision, len(segments))
	for i, seg := range segments {
		decisions[i] = merge.DecisionFromSegment(seg)
	}
	return decisions, nil
}

// Merge записывает итоговый датасет через internal/merge.Executor и
// возвращает UUID нового датасета.
func Merge(
	ctx context.Context,
	masterReader, slaveReader dao.Reader,
	target dao.DAO,
	masterRoot, slaveRoot domain.DatasetRoot,
	files domain.FileAccessor,
	alias, sourceType string,
	masterSelfID domain.UserID,
	users []merge.UserMergeOption,
	chats []merge.ChatMergeOption,
	log *slog.Logger,
) (uuid.UUID, error) {
	ex := merge.NewExecutor(masterReader, slaveReader, target, masterRoot, slaveRoot, files, log)
	return ex.Merge(ctx, alias, sourceType, masterSelfID, users, chats)
}
