// Package log содержит обёртки над slog для логирования движка слияния.
package log

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// PhoneMaskerHandler - обертка для slog.Handler, которая маскирует номера
// телефонов в логах. Датасеты содержат персональные данные участников
// переписки (domain.User.PhoneNumber попадает в PrettyName и имена личных
// чатов), и номер не должен утекать в журналы сервера целиком.
type PhoneMaskerHandler struct {
	handler slog.Handler
}

// NewPhoneMaskerHandler создает новый обработчик с маскировкой номеров
func NewPhoneMaskerHandler(h slog.Handler) *PhoneMaskerHandler {
	return &PhoneMaskerHandler{handler: h}
}

// маскируем номера в международном формате: плюс и 7-15 цифр подряд
var phoneRegex = regexp.MustCompile(`\+\d{7,15}`)

// maskPhones оставляет от номера плюс, две первые и две последние цифры
func maskPhones(s string) string {
	return phoneRegex.ReplaceAllStringFunc(s, func(p string) string {
		if len(p) <= 5 {
			return p
		}
		return p[:3] + strings.Repeat("*", len(p)-5) + p[len(p)-2:]
	})
}

// Enabled реализует интерфейс slog.Handler
func (h *PhoneMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *PhoneMaskerHandler) Handle(ctx context.Context, r slog.Record) error {
	// Создаем изолированную копию записи, так как slog может переиспользовать
	// оригинал. Копия пересобирается через slog.NewRecord без атрибутов, и
	// атрибуты добавляются в нее заново уже маскированными.
	clone := r.Clone()
	clone.Message = maskPhones(r.Message)

	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, slog.Attr{
			Key:   a.Key,
			Value: maskAttributeValue(a.Value),
		})
		return true
	})
	clone = slog.NewRecord(clone.Time, clone.Level, clone.Message, clone.PC)
	clone.AddAttrs(attrs...)

	return h.handler.Handle(ctx, clone)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *PhoneMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		masked[i] = slog.Attr{
			Key:   attr.Key,
			Value: maskAttributeValue(attr.Value),
		}
	}
	return &PhoneMaskerHandler{handler: h.handler.WithAttrs(masked)}
}

// WithGroup реализует интерфейс slog.Handler
func (h *PhoneMaskerHandler) WithGroup(name string) slog.Handler {
	return &PhoneMaskerHandler{handler: h.handler.WithGroup(name)}
}

// maskAttributeValue рекурсивно маскирует значения атрибутов
func maskAttributeValue(v slog.Value) slog.Value {
	switch v.Kind() {
	case slog.KindString:
		return slog.StringValue(maskPhones(v.String()))
	case slog.KindAny:
		// Ошибки несут текст, в который может попасть номер (например, имя
		// файла датасета): преобразуем в строку и маскируем.
		if err, ok := v.Any().(error); ok {
			return slog.StringValue(maskPhones(err.Error()))
		}
		return v
	case slog.KindGroup:
		attrs := v.Group()
		masked := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			masked[i] = slog.Attr{
				Key:   attr.Key,
				Value: maskAttributeValue(attr.Value),
			}
		}
		return slog.GroupValue(masked...)
	default:
		// Для других типов возвращаем оригинальное значение
		return v
	}
}

// NewMaskedLogger создает новый экземпляр slog.Logger с маскировкой номеров
func NewMaskedLogger(h slog.Handler) *slog.Logger {
	return slog.New(NewPhoneMaskerHandler(h))
}
