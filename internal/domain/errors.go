package domain

import "fmt"

// DataIntegrityError помечает фатальную аномалию данных, обнаруженную при
// сравнении или слиянии сообщений: два сообщения неразличимы по cmp, но не
// равны, дублирующиеся source_id в пределах чата, участник чата ссылается на
// неизвестного пользователя и т.п. Операция прерывается; вызывающий код
// сообщает имя чата и идентификаторы проблемных сообщений.
type DataIntegrityError struct {
	Chat string
	Detail string
	MsgRefs []string
}

func (e *DataIntegrityError) Error() string {
	if len(e.MsgRefs) == 0 {
		return fmt.Sprintf("data integrity error in chat %s: %s", e.Chat, e.Detail)
	}
	return fmt.Sprintf("data integrity error in chat %s: %s (%v)", e.Chat, e.Detail, e.MsgRefs)
}

// TimeShiftError сигнализирует обнаруженное расхождение часовых поясов между
// двумя датасетами: сообщения с равным source_id совпадают после подстановки
// временной метки слейва вместо мастера. Фатальна для чата; вызывающий код
// ожидает применить сдвиг времени к одному из датасетов и повторить операцию.
type TimeShiftError struct {
	Chat         string
	SourceID     SourceID
	ShiftSeconds int64 // положительное значение - слейв впереди мастера
}

func (e *TimeShiftError) Error() string {
	direction := "slave is ahead of master"
	secs := e.ShiftSeconds
	if secs < 0 {
		direction = "master is ahead of slave"
		secs = -secs
	}
	return fmt.Sprintf(
		"%s by %d sec (%d hr) in chat %s (source_id %d) - apply a dataset time shift and retry",
		direction, secs, secs/3600, e.Chat, e.SourceID,
	)
}

// CancelledError - терминальное, не ошибочное состояние: операция была
// прервана кооперативным флагом отмены.
type CancelledError struct{}

func (CancelledError) Error() string { return "operation cancelled" }
