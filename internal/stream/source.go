// Package stream строит ленивый, перезапускаемый поток сообщений чата поверх
// DAO, подгружая сообщения пакетами фиксированного размера. Поток никогда не
// материализует чат целиком.
package stream

import (
	"context"
	"fmt"

	"chatmerge/internal/dao"
	"chatmerge/internal/domain"
)

// DefaultBatchSize - размер пакета чтения по умолчанию.
const DefaultBatchSize = 1000

// Source - ленивый поток сообщений одного чата. Не безопасен для
// конкурентного использования из нескольких горутин: предполагается
// однопоточный потребитель.
type Source struct {
	reader dao.Reader
	chat domain.ChatID
	batchSize int

	anchor *domain.Message
	buf []domain.Message
	bufPos int
	exhausted bool
}

// New создаёт поток, начинающийся с первого сообщения чата.
func New(reader dao.Reader, chat domain.ChatID, batchSize int) *Source {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Source{reader: reader, chat: chat, batchSize: batchSize}
}

// NewAfter создаёт поток, начинающийся сразу после anchor (anchor сам не
// включается в выдачу) - используется для перезапуска потребления с места,
// на котором источник был ранее остановлен.
func NewAfter(reader dao.Reader, chat domain.ChatID, anchor domain.Message, batchSize int) *Source {
	s := New(reader, chat, batchSize)
	s.anchor = &anchor
	return s
}

// fetchNextBatch подгружает очередной пакет, согласно:
// first_messages для начала потока, либо messages_after(anchor,
// batch_size+1).drop(1) для продолжения. Короткий пакет сигнализирует конец
// потока.
func (s *Source) fetchNextBatch(ctx context.Context) ([]domain.Message, error) {
	if s.exhausted {
		return nil, nil
	}

	var batch []domain.Message
	if s.anchor == nil {
		raw, err := s.reader.ScrollMessages(ctx, s.chat, 0, s.batchSize)
		if err != nil {
			return nil, fmt.Errorf("stream: fetching first batch for chat %d: %w", s.chat, err)
		}
		batch = raw
	} else {
		raw, err := s.reader.MessagesAfter(ctx, s.chat, *s.anchor, s.batchSize+1)
		if err != nil {
			return nil, fmt.Errorf("stream: fetching batch after %s in chat %d: %w", s.anchor.QualifiedID(), s.chat, err)
		}
		if len(raw) > 0 {
			raw = raw[1:]
		}
		batch = raw
	}

	if len(batch) < s.batchSize {
		s.exhausted = true
	}
	if len(batch) > 0 {
		last := batch[len(batch)-1]
		s.anchor = &last
	}
	return batch, nil
}

// NextBatch возвращает следующий необработанный пакет as-is, для массового
// копирования (например, merge-executor копирует целыми пакетами, не
// разворачивая их). Пустой срез без ошибки означает конец потока.
func (s *Source) NextBatch(ctx context.Context) ([]domain.Message, error) {
	if s.bufPos < len(s.buf) {
		rest := s.buf[s.bufPos:]
		s.buf, s.bufPos = nil, 0
		return rest, nil
	}
	return s.fetchNextBatch(ctx)
}

// Next возвращает следующее сообщение потока по одному - для
// по-сообщенческой итерации (например, движком диффов). ok=false означает
// конец потока.
func (s *Source) Next(ctx context.Context) (msg domain.Message, ok bool, err error) {
	for s.bufPos >= len(s.buf) {
		if s.exhausted {
			return domain.Message{}, false, nil
		}
		batch, err := s.fetchNextBatch(ctx)
		if err != nil {
			return domain.Message{}, false, err
		}
		s.buf, s.bufPos = batch, 0
		if len(batch) == 0 {
			return domain.Message{}, false, nil
		}
	}
	msg = s.buf[s.bufPos]
	s.bufPos++
	return msg, true, nil
}

// Anchor возвращает последнее сообщение последнего подгруженного пакета, если
// такой был. Новый Source, созданный через NewAfter от этого сообщения,
// продолжает чтение после конца пакета: сообщения пакета, ещё не отданные
// через Next, он не выдаёт.
func (s *Source) Anchor() (domain.Message, bool) {
	if s.anchor == nil {
		return domain.Message{}, false
	}
	return *s.anchor, true
}
