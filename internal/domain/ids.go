// Package domain содержит типизированную модель датасета, чата и сообщения,
// а также предикат практического равенства (=~=), используемый движком слияния.
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// UserID - уникальный в пределах датасета числовой идентификатор пользователя.
type UserID int64

// InvalidUserID обозначает пользователя, который не может быть однозначно определен.
const InvalidUserID UserID = 0

// IsValid сообщает, ссылается ли идентификатор на реального пользователя.
func (id UserID) IsValid() bool { return id > 0 }

// ChatID - уникальный в пределах датасета числовой идентификатор чата.
type ChatID int64

// SourceID - стабильный в рамках датасета идентификатор сообщения, унаследованный
// от исходного экспорта. Совпадение SourceID на обеих сторонах слияния - основной
// ключ выравнивания (см. движок диффов).
type SourceID int64

// InternalID - непрозрачный, монотонно возрастающий в пределах чата идентификатор,
// присваиваемый хранилищем. Он определяет порядок и используется для постраничной
// выборки, но не переносится между разными DAO: сравнение InternalID, полученных
// от разных хранилищ, - ошибка, поэтому это отдельный тип, а не голое int64.
type InternalID int64

// NoInternalID - значение InternalID для ещё не сохранённого сообщения.
const NoInternalID InternalID = -1

// Timestamp - число секунд эпохи Unix, момент отправки сообщения.
type Timestamp int64

// Before сообщает, предшествует ли t другому моменту.
func (t Timestamp) Before(other Timestamp) bool { return t < other }

// DatasetRoot - абсолютный путь к директории, хранящей файлы одного датасета.
// Все пути внутри сообщений датасета указываются относительно этого корня.
type DatasetRoot string

// Absolute возвращает абсолютный путь к файлу, заданному относительным путём
// внутри этого датасета. Паникует, если relPath уже абсолютный - это всегда
// признак ошибки вызывающего кода, а не данных пользователя.
func (r DatasetRoot) Absolute(relPath string) string {
	if filepath.IsAbs(relPath) {
		panic(fmt.Sprintf("path %q must be relative to the dataset root", relPath))
	}
	return filepath.Join(string(r), filepath.FromSlash(relPath))
}

// Relative возвращает путь absPath относительно корня датасета в виде строки
// с прямыми слешами - именно так пути к файлам хранятся во всех сообщениях.
func (r DatasetRoot) Relative(absPath string) (string, error) {
	rel, err := filepath.Rel(string(r), absPath)
	if err != nil {
		return "", fmt.Errorf("path %s is not under dataset root %s: %w", absPath, r, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s is not under dataset root %s", absPath, r)
	}
	return filepath.ToSlash(rel), nil
}
