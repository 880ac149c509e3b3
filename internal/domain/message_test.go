package domain

import (
	"reflect"
	"testing"
)

func TestSearchableStringRegular(t *testing.T) {
	t.Run("склейка частей и href ссылок", func(t *testing.T) {
		m := Message{Typed: Typed{
			Kind: TypedRegular,
			Text: []RichTextElement{
				MakePlain("see"),
				MakeLink("docs", "https://example.com", false),
			},
		}}
		want := "see docs https://example.com"
		if got := m.SearchableString(); got != want {
			t.Errorf("получено %q, хотели %q", got, want)
		}
	})

	t.Run("эмодзи стикера попадает в строку", func(t *testing.T) {
		m := Message{Typed: Typed{
			Kind:    TypedRegular,
			Content: &Content{Kind: ContentSticker, EmojiOption: "🎉"},
		}}
		if got := m.SearchableString(); got != "🎉" {
			t.Errorf("получено %q", got)
		}
	})

	t.Run("имя файла попадает в строку", func(t *testing.T) {
		m := Message{Typed: Typed{
			Kind:    TypedRegular,
			Content: &Content{Kind: ContentFile, FileNameOption: "report.pdf", PathOption: "files/report.pdf"},
		}}
		if got := m.SearchableString(); got != "report.pdf" {
			t.Errorf("получено %q", got)
		}
	})
}

func TestSearchableStringService(t *testing.T) {
	cases := []struct {
		name string
		svc  Service
		want string
	}{
		{
			name: "участники приглашения",
			svc:  Service{Kind: SvcGroupInviteMembers, MemberNames: []string{"Анна", "Борис"}},
			want: "Анна Борис",
		},
		{
			name: "участники звонка",
			svc:  Service{Kind: SvcGroupCall, MemberNames: []string{"Анна"}},
			want: "Анна",
		},
		{
			name: "создание группы - заголовок и участники",
			svc:  Service{Kind: SvcGroupCreate, Title: "Наш чат", MemberNames: []string{"Анна", "Борис"}},
			want: "Наш чат Анна Борис",
		},
		{
			name: "миграция - заголовок старой группы",
			svc:  Service{Kind: SvcGroupMigrateFrom, Title: "Старый чат"},
			want: "Старый чат",
		},
		{
			name: "закрепление сообщения не вносит текста",
			svc:  Service{Kind: SvcPinMessage},
			want: "",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := Message{Typed: Typed{Kind: TypedService, Service: c.svc}}
			if got := m.SearchableString(); got != c.want {
				t.Errorf("получено %q, хотели %q", got, c.want)
			}
		})
	}
}

func TestFilesRelative(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want []string
	}{
		{
			name: "видео с превью",
			msg: Message{Typed: Typed{Kind: TypedRegular, Content: &Content{
				Kind: ContentVideo, PathOption: "video/v.mp4", ThumbnailPathOption: "video/v_thumb.jpg",
			}}},
			want: []string{"video/v.mp4", "video/v_thumb.jpg"},
		},
		{
			name: "контакт с vcard",
			msg: Message{Typed: Typed{Kind: TypedRegular, Content: &Content{
				Kind: ContentSharedContact, VCardPathOption: "contacts/a.vcf",
			}}},
			want: []string{"contacts/a.vcf"},
		},
		{
			name: "геолокация без файлов",
			msg: Message{Typed: Typed{Kind: TypedRegular, Content: &Content{
				Kind: ContentLocation, LatStr: "55.7", LonStr: "37.6",
			}}},
			want: nil,
		},
		{
			name: "смена фото группы",
			msg: Message{Typed: Typed{Kind: TypedService, Service: Service{
				Kind: SvcGroupEditPhoto, PhotoPathOption: "chat_photos/p.jpg",
			}}},
			want: []string{"chat_photos/p.jpg"},
		},
		{
			name: "текстовое сообщение без вложений",
			msg:  Message{Typed: Typed{Kind: TypedRegular, Text: []RichTextElement{MakePlain("hi")}}},
			want: nil,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.msg.FilesRelative(); !reflect.DeepEqual(got, c.want) {
				t.Errorf("получено %v, хотели %v", got, c.want)
			}
		})
	}
}

func TestQualifiedID(t *testing.T) {
	withSrc := Message{ID: 7, SourceIDOption: 42}
	if got := withSrc.QualifiedID(); got != "src#42" {
		t.Errorf("получено %q", got)
	}
	withoutSrc := Message{ID: 7}
	if got := withoutSrc.QualifiedID(); got != "internal#7" {
		t.Errorf("получено %q", got)
	}
}
