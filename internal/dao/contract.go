// Package dao описывает контракт хранилища, которым пользуется движок
// слияния: чтение и (частично) запись датасетов, чатов и сообщений, плюс
// постраничная выборка сообщений для построения потоков (internal/stream).
package dao

import (
	"context"

	"chatmerge/internal/domain"
)

// Reader - сторона чтения контракта DAO. Реализации: internal/dao/memorydao
// (эталонная реализация в памяти) и internal/dao/sqlitedao (продакшен).
type Reader interface {
	// Root возвращает корень датасета для разрешения относительных путей.
	Root(ctx context.Context) (domain.DatasetRoot, error)

	// Users возвращает всех пользователей датасета.
	Users(ctx context.Context) ([]domain.User, error)

	// Chats возвращает список чатов вместе с последним сообщением и
	// участниками каждого.
	Chats(ctx context.Context) ([]domain.ChatWithDetails, error)

	// ScrollMessages - skip затем take, в прямом временном порядке.
	ScrollMessages(ctx context.Context, chat domain.ChatID, offset, limit int) ([]domain.Message, error)

	// LastMessages возвращает последние limit сообщений чата в прямом
	// временном порядке.
	LastMessages(ctx context.Context, chat domain.ChatID, limit int) ([]domain.Message, error)

	// MessagesBefore возвращает до limit сообщений, включая m, идущих до него
	// или равных ему; последний элемент результата =~= m.
	MessagesBefore(ctx context.Context, chat domain.ChatID, m domain.Message, limit int) ([]domain.Message, error)

	// MessagesAfter возвращает до limit сообщений, включая m, идущих после
	// него или равных ему; первый элемент результата =~= m.
	MessagesAfter(ctx context.Context, chat domain.ChatID, m domain.Message, limit int) ([]domain.Message, error)

	// MessagesBetween возвращает сообщения между m1 и m2 включительно с обеих
	// сторон.
	MessagesBetween(ctx context.Context, chat domain.ChatID, m1, m2 domain.Message) ([]domain.Message, error)

	// CountMessagesBetween считает сообщения строго между m1 и m2 (оба конца
	// исключены).
	CountMessagesBetween(ctx context.Context, chat domain.ChatID, m1, m2 domain.Message) (int, error)

	// MessageBySourceID ищет сообщение чата по source_id.
	MessageBySourceID(ctx context.Context, chat domain.ChatID, sourceID domain.SourceID) (domain.Message, bool, error)

	// MessageByInternalID ищет сообщение чата по internal_id.
	MessageByInternalID(ctx context.Context, chat domain.ChatID, id domain.InternalID) (domain.Message, bool, error)
}

// Writer - сторона записи контракта DAO, используемая только merge-executor'ом.
type Writer interface {
	// InsertDataset создаёт новый пустой датасет и возвращает его корень.
	InsertDataset(ctx context.Context, ds domain.Dataset) (domain.DatasetRoot, error)

	// InsertUser добавляет пользователя в датасет. isSelf отмечает "себя" -
	// ровно один пользователь датасета должен иметь этот флаг.
	InsertUser(ctx context.Context, user domain.User, isSelf bool) error

	// InsertChat создаёт чат. srcRoot указывает, где искать файл изображения
	// чата, если он задан, для копирования в собственный корень DAO.
	InsertChat(ctx context.Context, srcRoot domain.DatasetRoot, chat domain.Chat) error

	// InsertMessages добавляет сообщения в чат, сохраняя порядок. srcRoot
	// указывает, где искать файлы, на которые ссылаются сообщения, для
	// копирования в собственный корень DAO.
	InsertMessages(ctx context.Context, srcRoot domain.DatasetRoot, chat domain.ChatID, msgs []domain.Message) error

	// Backup делает резервную копию текущего состояния датасета.
	Backup(ctx context.Context) error

	// DisableBackups временно отключает бэкапы перед серией записей
	// (для производительности массовой вставки).
	DisableBackups(ctx context.Context) error

	// EnableBackups снова включает бэкапы; вызывается executor'ом на всех
	// путях выхода, в том числе при ошибке.
	EnableBackups(ctx context.Context) error
}

// DAO объединяет обе стороны контракта. Большинство реализаций реализуют обе;
// потоки (internal/stream) и диффы нуждаются только в Reader.
type DAO interface {
	Reader
	Writer
}
