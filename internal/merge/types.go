// Package merge реализует исполнитель слияния : потребляет диффы
// движка internal/diff плюс пользовательские решения и записывает итоговый
// датасет в целевой DAO, копируя файлы и переписывая имена участников в
// служебных сообщениях.
package merge

import (
	"chatmerge/internal/diff"
	"chatmerge/internal/domain"
)

// UserAction - тег варианта UserMergeOption.
type UserAction int

const (
	// UserKeep - пользователь мастера переносится как есть.
	UserKeep UserAction = iota
	// UserAdd - пользователь есть только у слейва.
	UserAdd
	// UserReplace - один и тот же человек на обеих сторонах; побеждают
	// актуальные поля слейва под идентификатором мастера.
	UserReplace
)

// UserMergeOption - один элемент входного списка пользователей слияния.
// Явный список дополняется Keep для каждого пользователя мастера, не
// упомянутого в нём (см. Executor.Merge).
type UserMergeOption struct {
	Action UserAction
	Master domain.User // валиден при Keep и Replace
	Slave domain.User // валиден при Add и Replace
}

// ChatAction - тег варианта ChatMergeOption.
type ChatAction int

const (
	// ChatKeep - чат переносится целиком из мастера.
	ChatKeep ChatAction = iota
	// ChatAdd - чат переносится целиком из слейва.
	ChatAdd
	// ChatCombine - чат объединяется по решениям, снятым с сегментов диффа.
	ChatCombine
)

// ChatMergeOption - один элемент входного списка чатов слияния.
type ChatMergeOption struct {
	Action ChatAction

	MasterChat domain.Chat // валиден при Keep и Combine
	SlaveChat domain.Chat // валиден при Add и Combine

	Decisions []Decision // валиден при Combine
}

// DecisionKind - тег варианта Decision. Retain/Add/Replace/Match происходят
// прямо от сегментов диффа, DontReplace - пользовательское переопределение
// сегмента Replace.
type DecisionKind int

const (
	DecisionRetain DecisionKind = iota
	DecisionAdd
	DecisionReplace
	DecisionDontReplace
	DecisionMatch
)

// Decision - сегмент диффа после пользовательского переопределения (см.
// Override). Поля First/Last Master/Slave имеют тот же смысл, что и в
// diff.Segment.
type Decision struct {
	Kind DecisionKind

	HasMaster bool
	FirstMaster domain.Message
	LastMaster domain.Message

	HasSlave bool
	FirstSlave domain.Message
	LastSlave domain.Message
}

// DecisionFromSegment превращает сегмент диффа в решение по умолчанию: для
// Replace побеждает слейв (так сохраняется новое содержимое);
// пользовательский интерфейс может явно заменить такое решение на
// DecisionDontReplace через Override.
func DecisionFromSegment(seg diff.Segment) Decision {
	d := Decision{
		HasMaster: seg.HasMaster,
		FirstMaster: seg.FirstMaster,
		LastMaster: seg.LastMaster,
		HasSlave: seg.HasSlave,
		FirstSlave: seg.FirstSlave,
		LastSlave: seg.LastSlave,
	}
	switch seg.Kind {
	case diff.SegMatch:
		d.Kind = DecisionMatch
	case diff.SegRetain:
		d.Kind = DecisionRetain
	case diff.SegAdd:
		d.Kind = DecisionAdd
	case diff.SegReplace:
		d.Kind = DecisionReplace
	}
	return d
}

// Override превращает решение, снятое с сегмента Replace, в DontReplace -
// пользовательский выбор "оставить версию мастера". Не действует на
// решения других видов.
func (d Decision) Override() Decision {
	if d.Kind == DecisionReplace {
		d.Kind = DecisionDontReplace
	}
	return d
}
