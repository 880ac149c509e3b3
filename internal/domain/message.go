package domain

import (
	"strconv"
	"strings"
)

// ServiceKind - тег варианта служебного сообщения.
type ServiceKind int

const (
	SvcPhoneCall ServiceKind = iota
	SvcPinMessage
	SvcClearHistory
	SvcStatusTextChanged
	SvcNotice
	SvcGroupCreate
	SvcGroupEditTitle
	SvcGroupEditPhoto
	SvcGroupDeletePhoto
	SvcGroupInviteMembers
	SvcGroupRemoveMembers
	SvcGroupMigrateFrom
	SvcGroupMigrateTo
	SvcGroupCall
	SvcSuggestProfilePhoto
	SvcBlockUser
)

// Service - содержимое Service-сообщения. Значимы только поля, относящиеся
// к активному Kind, как и в Content.
type Service struct {
	Kind ServiceKind

	// PhoneCall
	DurationSecOption int
	DiscardReasonOption string

	// StatusTextChanged / Notice
	Text string

	// GroupEditTitle / GroupCreate / GroupMigrateFrom
	Title string

	// GroupEditPhoto / SuggestProfilePhoto
	PhotoPathOption string

	// GroupCreate / GroupInviteMembers / GroupRemoveMembers / GroupCall -
	// имена участников,
	// как они записаны в исходном экспорте; движок диффов их не разрешает,
	// а merge-executor переписывает их в итоговые имена (merge/memberfix.go).
	MemberNames []string

	// GroupMigrateTo
	MigrateToChatID ChatID

	// BlockUser
	IsBlocked bool
}

// FilesRelative возвращает файлы, на которые ссылается служебное сообщение.
func (s Service) FilesRelative() []string {
	switch s.Kind {
	case SvcGroupEditPhoto, SvcSuggestProfilePhoto:
		if s.PhotoPathOption != "" {
			return []string{s.PhotoPathOption}
		}
	}
	return nil
}

func (s Service) searchableTextComponents() []string {
	switch s.Kind {
	case SvcStatusTextChanged, SvcNotice:
		if s.Text != "" {
			return []string{s.Text}
		}
	case SvcGroupEditTitle, SvcGroupMigrateFrom:
		if s.Title != "" {
			return []string{s.Title}
		}
	case SvcGroupCreate:
		var out []string
		if s.Title != "" {
			out = append(out, s.Title)
		}
		return append(out, s.MemberNames...)
	case SvcGroupInviteMembers, SvcGroupRemoveMembers, SvcGroupCall:
		return s.MemberNames
	}
	return nil
}

// TypedKind различает Regular и Service сообщения.
type TypedKind int

const (
	TypedRegular TypedKind = iota
	TypedService
)

// Typed - тело сообщения: либо обычное (с Content и текстом), либо служебное.
type Typed struct {
	Kind TypedKind

	// Regular
	Text                  []RichTextElement
	Content               *Content // nil, если у сообщения нет вложения
	ReplyToSourceIDOption SourceID // 0, если сообщение ни на что не отвечает

	// Service
	Service Service
}

// Message не хранит свой ChatID или DatasetUUID - принадлежность определяется
// контекстом (потоком, из которого оно было прочитано), как и в исходной
// модели. SourceID - единственный ключ, переносимый между DAO; ID
// (InternalID) действителен только внутри своего DAO.
type Message struct {
	ID InternalID
	SourceIDOption SourceID // 0, если у сообщения нет стабильного source_id
	Timestamp Timestamp
	EditTimestampOption Timestamp
	FromID UserID
	ForwardFromNameOption string
	Typed Typed
}

// HasSourceID сообщает, есть ли у сообщения стабильный source_id.
func (m Message) HasSourceID() bool { return m.SourceIDOption != 0 }

// IsService сообщает, является ли сообщение служебным.
func (m Message) IsService() bool { return m.Typed.Kind == TypedService }

// FilesRelative возвращает все файлы сообщения относительно корня датасета.
func (m Message) FilesRelative() []string {
	switch m.Typed.Kind {
	case TypedRegular:
		if m.Typed.Content != nil {
			return m.Typed.Content.FilesRelative()
		}
	case TypedService:
		return m.Typed.Service.FilesRelative()
	}
	return nil
}

// SearchableString строит нормализованную строку для полнотекстового поиска:
// конкатенацию searchable_string всех rich-text частей плюс любой текст,
// который несёт Content или Service.
func (m Message) SearchableString() string {
	var parts []string
	switch m.Typed.Kind {
	case TypedRegular:
		for _, el := range m.Typed.Text {
			if el.SearchableString != "" {
				parts = append(parts, el.SearchableString)
			}
		}
		if m.Typed.Content != nil {
			parts = append(parts, m.Typed.Content.searchableTextComponents()...)
		}
	case TypedService:
		parts = append(parts, m.Typed.Service.searchableTextComponents()...)
	}
	return normalizeSearchableString(strings.Join(parts, " "))
}

// PlainText склеивает текст всех rich-text элементов Regular-сообщения без
// сохранения форматирования. Используется в отчётах и логах.
func (m Message) PlainText() string {
	if m.Typed.Kind != TypedRegular {
		return ""
	}
	var b strings.Builder
	for _, el := range m.Typed.Text {
		b.WriteString(el.Text)
	}
	return b.String()
}

// QualifiedID возвращает строковое представление, удобное для логов и
// сообщений об ошибках.
func (m Message) QualifiedID() string {
	if m.HasSourceID() {
		return "src#" + strconv.FormatInt(int64(m.SourceIDOption), 10)
	}
	return "internal#" + strconv.FormatInt(int64(m.ID), 10)
}
