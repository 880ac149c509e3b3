// Package diff реализует двухпотоковый движок сравнения -
// конечный автомат, проходящий по двум упорядоченным потокам сообщений
// (master и slave) и выдающий последовательность сегментов
// Match/Retain/Add/Replace.
package diff

import (
	"context"

	"chatmerge/internal/domain"
	"chatmerge/internal/stream"
)

// MasterMessage и SlaveMessage - типы-обёртки, различающие сообщения мастера
// и слейва на уровне системы типов. Движок диффа принимает только
// MasterStream/SlaveStream, поэтому перепутать стороны вызывающий код не
// может, не завернув поток явно не в ту обёртку.
type MasterMessage struct{ domain.Message }

// SlaveMessage - см. MasterMessage.
type SlaveMessage struct{ domain.Message }

// MasterStream оборачивает stream.Source, помечая его как мастер-сторону
// слияния.
type MasterStream struct{ src *stream.Source }

// NewMasterStream заворачивает источник сообщений как мастер-поток.
func NewMasterStream(src *stream.Source) *MasterStream { return &MasterStream{src: src} }

func (s *MasterStream) next(ctx context.Context) (MasterMessage, bool, error) {
	m, ok, err := s.src.Next(ctx)
	return MasterMessage{m}, ok, err
}

// SlaveStream оборачивает stream.Source, помечая его как slave-сторону
// слияния.
type SlaveStream struct{ src *stream.Source }

// NewSlaveStream заворачивает источник сообщений как slave-поток.
func NewSlaveStream(src *stream.Source) *SlaveStream { return &SlaveStream{src: src} }

func (s *SlaveStream) next(ctx context.Context) (SlaveMessage, bool, error) {
	m, ok, err := s.src.Next(ctx)
	return SlaveMessage{m}, ok, err
}

// SegmentKind - тег варианта диапазона, порождаемого движком.
type SegmentKind int

const (
	// SegMatch - диапазоны совпадают сообщение-в-сообщение под =~= с учётом
	// содержимого.
	SegMatch SegmentKind = iota
	// SegRetain - присутствует только у мастера.
	SegRetain
	// SegAdd - присутствует только у слейва.
	SegAdd
	// SegReplace - выровнены по source_id, но содержимое отличается -
	// настоящий конфликт.
	SegReplace
)

func (k SegmentKind) String() string {
	switch k {
	case SegMatch:
		return "Match"
	case SegRetain:
		return "Retain"
	case SegAdd:
		return "Add"
	case SegReplace:
		return "Replace"
	default:
		return "Unknown"
	}
}

// Segment - один сегмент диффа. HasMaster/HasSlave сообщают, значима ли
// соответствующая пара First/Last для этого Kind (Add не несёт мастер-часть,
// Retain не несёт slave-часть).
type Segment struct {
	Kind SegmentKind

	HasMaster bool
	FirstMaster domain.Message
	LastMaster domain.Message

	HasSlave bool
	FirstSlave domain.Message
	LastSlave domain.Message
}

func matchSegment(fm, lm, fs, ls domain.Message) Segment {
	return Segment{Kind: SegMatch, HasMaster: true, FirstMaster: fm, LastMaster: lm, HasSlave: true, FirstSlave: fs, LastSlave: ls}
}

func retainSegment(fm, lm domain.Message) Segment {
	return Segment{Kind: SegRetain, HasMaster: true, FirstMaster: fm, LastMaster: lm}
}

func addSegment(fs, ls domain.Message) Segment {
	return Segment{Kind: SegAdd, HasSlave: true, FirstSlave: fs, LastSlave: ls}
}

func replaceSegment(fm, lm, fs, ls domain.Message) Segment {
	return Segment{Kind: SegReplace, HasMaster: true, FirstMaster: fm, LastMaster: lm, HasSlave: true, FirstSlave: fs, LastSlave: ls}
}
