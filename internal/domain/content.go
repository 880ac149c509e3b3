package domain

// ContentKind - тег варианта внутри Content.
type ContentKind int

const (
	ContentSticker ContentKind = iota
	ContentPhoto
	ContentVoiceMsg
	ContentAudio
	ContentVideoMsg
	ContentVideo
	ContentAnimation
	ContentFile
	ContentLocation
	ContentPoll
	ContentSharedContact
)

// Content - содержимое Regular-сообщения. Только поля, относящиеся к
// активному Kind, значимы; остальные - нулевые значения.
type Content struct {
	Kind ContentKind

	// Path-bearing варианты: Sticker, Photo, VoiceMsg, Audio, VideoMsg, Video,
	// Animation, File. Пути - относительно корня датасета.
	PathOption string
	ThumbnailPathOption string

	// Sticker
	EmojiOption string

	// Audio / Video
	TitleOption string
	PerformerOption string

	// File
	FileNameOption string

	// Location
	LatStr string
	LonStr string
	AddressOption string
	LocTitleOption string

	// Poll
	PollQuestion string

	// SharedContact
	ContactFirstNameOption string
	ContactLastNameOption string
	ContactPhoneOption string
	VCardPathOption string
}

// hasPath сообщает, принадлежит ли Kind к path-bearing вариантам.
func (c Content) hasPath() bool {
	switch c.Kind {
	case ContentSticker, ContentPhoto, ContentVoiceMsg, ContentAudio,
		ContentVideoMsg, ContentVideo, ContentAnimation, ContentFile:
		return true
	default:
		return false
	}
}

// FilesRelative возвращает все пути, на которые ссылается это содержимое,
// относительно корня датасета, не проверяя их существования.
func (c Content) FilesRelative() []string {
	var paths []string
	switch c.Kind {
	case ContentSticker, ContentVideoMsg, ContentVideo, ContentAnimation, ContentFile:
		if c.PathOption != "" {
			paths = append(paths, c.PathOption)
		}
		if c.ThumbnailPathOption != "" {
			paths = append(paths, c.ThumbnailPathOption)
		}
	case ContentPhoto, ContentVoiceMsg, ContentAudio:
		if c.PathOption != "" {
			paths = append(paths, c.PathOption)
		}
	case ContentSharedContact:
		if c.VCardPathOption != "" {
			paths = append(paths, c.VCardPathOption)
		}
	case ContentLocation, ContentPoll:
		// не ссылаются на файлы
	}
	return paths
}

// searchableTextComponents - дополнительный текст, который Content вносит в
// searchable_string сообщения помимо его rich-text частей.
func (c Content) searchableTextComponents() []string {
	switch c.Kind {
	case ContentSticker:
		if c.EmojiOption != "" {
			return []string{c.EmojiOption}
		}
	case ContentAudio, ContentVideo:
		var out []string
		if c.TitleOption != "" {
			out = append(out, c.TitleOption)
		}
		if c.PerformerOption != "" {
			out = append(out, c.PerformerOption)
		}
		return out
	case ContentFile:
		if c.FileNameOption != "" {
			return []string{c.FileNameOption}
		}
	case ContentLocation:
		var out []string
		if c.AddressOption != "" {
			out = append(out, c.AddressOption)
		}
		if c.LocTitleOption != "" {
			out = append(out, c.LocTitleOption)
		}
		out = append(out, c.LatStr, c.LonStr)
		return out
	case ContentPoll:
		return []string{c.PollQuestion}
	case ContentSharedContact:
		var out []string
		if c.ContactFirstNameOption != "" {
			out = append(out, c.ContactFirstNameOption)
		}
		if c.ContactLastNameOption != "" {
			out = append(out, c.ContactLastNameOption)
		}
		if c.ContactPhoneOption != "" {
			out = append(out, c.ContactPhoneOption)
		}
		return out
	}
	return nil
}

// blankPaths возвращает a copy of c с обнулёнными path-полями, для
// использования предикатом практического равенства.
func (c Content) blankPaths() Content {
	blanked := c
	blanked.PathOption = ""
	blanked.ThumbnailPathOption = ""
	blanked.VCardPathOption = ""
	return blanked
}
