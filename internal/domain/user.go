package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Unnamed - заглушка, которую PrettyName возвращает, если у пользователя нет
// ни имени, ни фамилии, ни номера телефона, ни имени пользователя.
const Unnamed = "[unnamed]"

// User принадлежит ровно одному датасету и имеет уникальный в его пределах
// числовой идентификатор.
type User struct {
	DatasetUUID uuid.UUID
	ID UserID
	FirstName string
	LastName string
	Username string
	PhoneNumber string
	IsMyself bool
}

// PrettyName возвращает первое непустое из: имя+фамилия, номер телефона,
// имя пользователя, иначе Unnamed.
func (u User) PrettyName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.PhoneNumber != "" {
		return u.PhoneNumber
	}
	if u.Username != "" {
		return u.Username
	}
	return Unnamed
}

// ShortUser - облегчённая ссылка на пользователя: идентификатор плюс
// опциональное полное имя, без остальных полей User. Используется там, где
// не нужна полная запись - например, при построении текста участника чата.
type ShortUser struct {
	ID UserID
	FullName string // пусто, если имя неизвестно
}

// ToUser превращает ShortUser в полноценного User заданного датасета.
func (s ShortUser) ToUser(datasetUUID uuid.UUID) User {
	return User{
		DatasetUUID: datasetUUID,
		ID: s.ID,
		FirstName: s.FullName,
	}
}
