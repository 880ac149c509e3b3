package domain

import (
	"regexp"
	"strings"
)

// normalizeRegex схлопывает любые разделители и невидимые форматирующие
// символы юникода (включая неразрывный пробел и ZWSP) в один пробел.
var normalizeRegex = regexp.MustCompile(`[\p{Z}\p{Cf}\n]+`)

func normalizeSearchableString(s string) string {
	return strings.TrimSpace(normalizeRegex.ReplaceAllString(s, " "))
}

// RichTextSpanKind - тег варианта внутри RichTextElement.
type RichTextSpanKind int

const (
	RtePlain RichTextSpanKind = iota
	RteBold
	RteItalic
	RteUnderline
	RteStrikethrough
	RteBlockquote
	RteSpoiler
	RteLink
	RtePrefmtInline
	RtePrefmtBlock
)

// RichTextElement - один типизированный фрагмент текста сообщения.
type RichTextElement struct {
	Kind RichTextSpanKind
	Text string // для всех вариантов кроме Link используется как основной текст
	Href string // только Link
	Hidden bool // только Link
	LanguageOption string // только PrefmtBlock
	SearchableString string
}

func makeSpan(kind RichTextSpanKind, text string) RichTextElement {
	return RichTextElement{
		Kind: kind,
		Text: text,
		SearchableString: normalizeSearchableString(text),
	}
}

func MakePlain(text string) RichTextElement { return makeSpan(RtePlain, text) }
func MakeBold(text string) RichTextElement { return makeSpan(RteBold, text) }
func MakeItalic(text string) RichTextElement { return makeSpan(RteItalic, text) }
func MakeUnderline(text string) RichTextElement { return makeSpan(RteUnderline, text) }
func MakeStrikethrough(text string) RichTextElement { return makeSpan(RteStrikethrough, text) }
func MakeBlockquote(text string) RichTextElement { return makeSpan(RteBlockquote, text) }
func MakeSpoiler(text string) RichTextElement { return makeSpan(RteSpoiler, text) }
func MakePrefmtInline(text string) RichTextElement { return makeSpan(RtePrefmtInline, text) }

// MakePrefmtBlock строит предварительно отформатированный блок кода с
// опциональным указанием языка.
func MakePrefmtBlock(text string, languageOption string) RichTextElement {
	return RichTextElement{
		Kind: RtePrefmtBlock,
		Text: text,
		LanguageOption: languageOption,
		SearchableString: normalizeSearchableString(text),
	}
}

// MakeLink строит ссылку. searchable_string - href, если видимый текст ему
// равен (обычная ссылка без подписи), иначе "текст href".
func MakeLink(textOption string, href string, hidden bool) RichTextElement {
	text := textOption
	var searchable string
	if text == href {
		searchable = href
	} else {
		searchable = strings.TrimSpace(text + " " + href)
	}
	return RichTextElement{
		Kind: RteLink,
		Text: text,
		Href: href,
		Hidden: hidden,
		SearchableString: normalizeSearchableString(searchable),
	}
}
