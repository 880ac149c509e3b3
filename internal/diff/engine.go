package diff

import (
	"context"
	"fmt"

	"chatmerge/internal/domain"
)

// groupMigrateFromWidenThreshold - порог, ниже которого from_id считается
// "узким" (до расширения Telegram user-id в октябре 2020).
const groupMigrateFromWidenThreshold = domain.UserID(1 << 32)

// state - состояние конечного автомата движка диффов.
type state int

const (
	stateNone state = iota
	stateMatch
	stateRetention
	stateAddition
	stateConflict
)

// Engine - конечный автомат, сравнивающий мастер- и slave-потоки сообщений
// одного логического чата и выдающий последовательность Segment.
type Engine struct {
	chat       string
	rootMaster domain.DatasetRoot
	rootSlave  domain.DatasetRoot
	files      domain.FileAccessor
}

// New создаёт движок диффов, сравнивающий файлы сообщений относительно
// корней датасетов rootMaster/rootSlave через files. chat - отображаемое имя
// чата для сообщений об ошибках.
func New(chat string, rootMaster, rootSlave domain.DatasetRoot, files domain.FileAccessor) *Engine {
	return &Engine{chat: chat, rootMaster: rootMaster, rootSlave: rootSlave, files: files}
}

// Run проходит оба потока в лок-шаге и возвращает полный список сегментов,
// покрывающих оба потока целиком: конкатенация мастер-половин сегментов
// воспроизводит мастер-поток, slave-половин - slave-поток. Проверяет
// ctx.Err() между шагами для кооперативной отмены - отменённый прогон
// возвращает domain.CancelledError вместе с уже накопленными сегментами.
func (e *Engine) Run(ctx context.Context, master *MasterStream, slave *SlaveStream) ([]Segment, error) {
	var segments []Segment

	var curM, curS domain.Message
	var curMOk, curSOk bool

	advanceMaster := func() error {
		m, ok, err := master.next(ctx)
		curM, curMOk = m.Message, ok
		return err
	}
	advanceSlave := func() error {
		s, ok, err := slave.next(ctx)
		curS, curSOk = s.Message, ok
		return err
	}

	if err := advanceMaster(); err != nil {
		return nil, fmt.Errorf("diff: reading first master message: %w", err)
	}
	if err := advanceSlave(); err != nil {
		return nil, fmt.Errorf("diff: reading first slave message: %w", err)
	}

	st := stateNone
	var firstM, lastM, firstS, lastS domain.Message

	for {
		if err := ctx.Err(); err != nil {
			return segments, domain.CancelledError{}
		}

		if !curMOk && !curSOk {
			switch st {
			case stateMatch:
				segments = append(segments, matchSegment(firstM, lastM, firstS, lastS))
			case stateRetention:
				segments = append(segments, retainSegment(firstM, lastM))
			case stateAddition:
				segments = append(segments, addSegment(firstS, lastS))
			case stateConflict:
				segments = append(segments, replaceSegment(firstM, lastM, firstS, lastS))
			}
			return segments, nil
		}

		switch st {
		case stateNone:
			switch {
			case curMOk && curSOk && domain.ContentAwareEqual(curM, curS, e.rootMaster, e.rootSlave, e.files):
				firstM, lastM, firstS, lastS = curM, curM, curS, curS
				if err := advanceMaster(); err != nil {
					return segments, err
				}
				if err := advanceSlave(); err != nil {
					return segments, err
				}
				st = stateMatch

			case curMOk && curSOk && e.isGroupMigrateFromSpecialCase(curM, curS):
				segments = append(segments, replaceSegment(curM, curM, curS, curS))
				if err := advanceMaster(); err != nil {
					return segments, err
				}
				if err := advanceSlave(); err != nil {
					return segments, err
				}
				// остаёмся в stateNone

			case curMOk && curSOk && curM.HasSourceID() && curS.HasSourceID() && curM.SourceIDOption == curS.SourceIDOption:
				if shift, isShift := e.detectTimeShift(curM, curS); isShift {
					return segments, &domain.TimeShiftError{
						Chat:         e.chat,
						SourceID:     curM.SourceIDOption,
						ShiftSeconds: shift,
					}
				}
				firstM, lastM, firstS, lastS = curM, curM, curS, curS
				if err := advanceMaster(); err != nil {
					return segments, err
				}
				if err := advanceSlave(); err != nil {
					return segments, err
				}
				st = stateConflict

			default:
				sign, err := compare(e.chat, curM, curMOk, curS, curSOk)
				if err != nil {
					return segments, err
				}
				switch {
				case sign > 0:
					firstS, lastS = curS, curS
					if err := advanceSlave(); err != nil {
						return segments, err
					}
					st = stateAddition
				case sign < 0:
					firstM, lastM = curM, curM
					if err := advanceMaster(); err != nil {
						return segments, err
					}
					st = stateRetention
				default:
					return segments, &domain.DataIntegrityError{
						Chat:    e.chat,
						Detail:  "messages are indistinguishable under the ordering relation but not practically equal",
						MsgRefs: []string{curM.QualifiedID(), curS.QualifiedID()},
					}
				}
			}

		case stateMatch:
			if curMOk && curSOk && domain.ContentAwareEqual(curM, curS, e.rootMaster, e.rootSlave, e.files) {
				lastM, lastS = curM, curS
				if err := advanceMaster(); err != nil {
					return segments, err
				}
				if err := advanceSlave(); err != nil {
					return segments, err
				}
				continue
			}
			segments = append(segments, matchSegment(firstM, lastM, firstS, lastS))
			st = stateNone

		case stateAddition:
			sign, err := compare(e.chat, curM, curMOk, curS, curSOk)
			if err != nil {
				return segments, err
			}
			if curSOk && sign > 0 {
				lastS = curS
				if err := advanceSlave(); err != nil {
					return segments, err
				}
				continue
			}
			segments = append(segments, addSegment(firstS, lastS))
			st = stateNone

		case stateRetention:
			sign, err := compare(e.chat, curM, curMOk, curS, curSOk)
			if err != nil {
				return segments, err
			}
			if curMOk && sign < 0 {
				lastM = curM
				if err := advanceMaster(); err != nil {
					return segments, err
				}
				continue
			}
			segments = append(segments, retainSegment(firstM, lastM))
			st = stateNone

		case stateConflict:
			if curMOk && curSOk {
				eq, err := domain.MessagesEqual(curM, curS, e.rootMaster, e.rootSlave, e.files)
				if err != nil {
					return segments, err
				}
				if !eq {
					lastM, lastS = curM, curS
					if err := advanceMaster(); err != nil {
						return segments, err
					}
					if err := advanceSlave(); err != nil {
						return segments, err
					}
					continue
				}
			}
			segments = append(segments, replaceSegment(firstM, lastM, firstS, lastS))
			st = stateNone
		}
	}
}

// compare реализует cmp(M,S): сравнение временных меток, затем source_id,
// затем проверку формального совпадения через searchable_string.
// Отсутствующая сторона считается "более поздней", чтобы однородно привести
// хвост без пары к Addition/Retention.
func compare(chat string, m domain.Message, mOk bool, s domain.Message, sOk bool) (int, error) {
	switch {
	case !mOk && !sOk:
		return 0, nil
	case !mOk:
		return 1, nil // мастер исчерпан - оставшийся слейв всегда "раньше" в терминах Addition
	case !sOk:
		return -1, nil // слейв исчерпан - оставшийся мастер всегда "раньше" в терминах Retention
	}

	if m.Timestamp != s.Timestamp {
		if m.Timestamp < s.Timestamp {
			return -1, nil
		}
		return 1, nil
	}
	if m.HasSourceID() && s.HasSourceID() {
		if m.SourceIDOption != s.SourceIDOption {
			if m.SourceIDOption < s.SourceIDOption {
				return -1, nil
			}
			return 1, nil
		}
		return 0, nil
	}
	if m.SearchableString() == s.SearchableString() {
		return 0, nil
	}
	return 0, &domain.DataIntegrityError{
		Chat:    chat,
		Detail:  "messages have equal timestamp but no source_id to disambiguate and differing searchable_string - not a total order",
		MsgRefs: []string{m.QualifiedID(), s.QualifiedID()},
	}
}

// detectTimeShift: если подстановка временной метки слейва в сообщение
// мастера делает их =~=, это сдвиг часового пояса между датасетами, а не
// настоящий конфликт. Возвращает сдвиг в секундах (положительный - слейв
// впереди мастера).
func (e *Engine) detectTimeShift(m, s domain.Message) (shiftSeconds int64, isShift bool) {
	shifted := m
	shifted.Timestamp = s.Timestamp
	eq, err := domain.MessagesEqual(shifted, s, e.rootMaster, e.rootSlave, e.files)
	if err != nil || !eq {
		return 0, false
	}
	delta := int64(s.Timestamp) - int64(m.Timestamp)
	if delta == 0 {
		return 0, false
	}
	return delta, true
}

// isGroupMigrateFromSpecialCase обрабатывает расширение формата Telegram
// user-id в октябре 2020: оба сообщения - служебные GroupMigrateFrom с
// одинаковым source_id, from_id мастера "узкий", from_id слейва "широкий", и
// подстановка широкого from_id в мастер делает сообщения =~=. Такая пара -
// одношаговый Replace, а не конфликт.
func (e *Engine) isGroupMigrateFromSpecialCase(m, s domain.Message) bool {
	if !m.IsService() || !s.IsService() {
		return false
	}
	if m.Typed.Service.Kind != domain.SvcGroupMigrateFrom || s.Typed.Service.Kind != domain.SvcGroupMigrateFrom {
		return false
	}
	if !m.HasSourceID() || !s.HasSourceID() || m.SourceIDOption != s.SourceIDOption {
		return false
	}
	if m.FromID >= groupMigrateFromWidenThreshold || s.FromID < groupMigrateFromWidenThreshold {
		return false
	}
	widened := m
	widened.FromID = s.FromID
	eq, err := domain.MessagesEqual(widened, s, e.rootMaster, e.rootSlave, e.files)
	return err == nil && eq
}
