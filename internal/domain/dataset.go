package domain

import "github.com/google/uuid"

// Dataset - коллекция пользователей, чатов и сообщений, импортированная из
// одного источника. Идентифицируется UUID; равенство датасетов - это
// равенство UUID, остальные поля несущественны для сравнения.
type Dataset struct {
	UUID uuid.UUID
	Alias string
	SourceType string
}

// NewDatasetID генерирует новый случайный UUID для датасета.
func NewDatasetID() uuid.UUID {
	return uuid.New()
}

// Equal сравнивает датасеты по UUID.
func (d Dataset) Equal(other Dataset) bool {
	return d.UUID == other.UUID
}
