package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ChatType распознаёт двух видов чатов: личную переписку и групповой чат.
type ChatType int

const (
	// ChatTypePersonal - личная переписка между ровно двумя пользователями.
	ChatTypePersonal ChatType = iota
	// ChatTypePrivateGroup - закрытый групповой чат.
	ChatTypePrivateGroup
)

// Chat принадлежит ровно одному датасету.
type Chat struct {
	DatasetUUID uuid.UUID
	ID ChatID
	NameOption string
	Type ChatType
	ImgPathOption string // путь относительно корня датасета
	MemberIDs []UserID
	MsgCount int
}

// QualifiedName возвращает отображаемое имя чата вместе с его ID, для сообщений
// об ошибках.
func (c Chat) QualifiedName() string {
	name := c.NameOption
	if name == "" {
		name = Unnamed
	}
	return fmt.Sprintf("'%s' (#%d)", name, c.ID)
}

// ChatWithDetails - чат вместе с последним сообщением и участниками; первый
// элемент Members - всегда сам пользователь ("self").
type ChatWithDetails struct {
	Chat Chat
	LastMsgOption *Message
	Members []User
}

// ResolveMember ищет участника чата по отображаемому имени - тому, что
// встречается в текстах служебных сообщений (invite/remove/call member
// lists). Возвращает ok=false, если ни один участник не совпал.
func (c ChatWithDetails) ResolveMember(memberName string) (User, bool) {
	for _, m := range c.Members {
		if m.PrettyName() == memberName {
			return m, true
		}
	}
	return User{}, false
}

// ResolveMembers применяет ResolveMember к каждому имени из списка, сохраняя
// позицию; на месте неразрешённого имени стоит нулевое значение User.
func (c ChatWithDetails) ResolveMembers(memberNames []string) []User {
	resolved := make([]User, len(memberNames))
	for i, name := range memberNames {
		if u, ok := c.ResolveMember(name); ok {
			resolved[i] = u
		}
	}
	return resolved
}
