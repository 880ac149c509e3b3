package log

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestMaskPhones(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "международный номер маскируется",
			in:   "user +79161234567 resolved",
			want: "user +79*******67 resolved",
		},
		{
			name: "короткий номер маскируется с остатком",
			in:   "call +1234567",
			want: "call +12***67",
		},
		{
			name: "номер без плюса не трогаем",
			in:   "internal_id 79161234567",
			want: "internal_id 79161234567",
		},
		{
			name: "обычный текст без изменений",
			in:   "merge finished",
			want: "merge finished",
		},
		{
			name: "несколько номеров в одной строке",
			in:   "+79161234567 and +79031112233",
			want: "+79*******67 and +79*******33",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel() // Добавляем параллельное выполнение для выявления гонок
			if got := maskPhones(tt.in); got != tt.want {
				t.Errorf("maskPhones(%q) = %q, ожидалось %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPhoneMaskerHandler(t *testing.T) {
	t.Run("маскирует сообщение и строковые атрибуты", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewMaskedLogger(slog.NewTextHandler(&buf, nil))

		logger.Info("chat renamed to +79161234567", "phone", "+79161234567", "count", 3)

		out := buf.String()
		if strings.Contains(out, "+79161234567") {
			t.Errorf("номер не был замаскирован: %s", out)
		}
		if !strings.Contains(out, "+79*******67") {
			t.Errorf("ожидалась маска в выводе: %s", out)
		}
		if !strings.Contains(out, "count=3") {
			t.Errorf("нестроковый атрибут должен остаться как есть: %s", out)
		}
	})

	t.Run("маскирует текст ошибок", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewMaskedLogger(slog.NewTextHandler(&buf, nil))

		logger.Error("copy failed", "error", errors.New("file for +79161234567 missing"))

		out := buf.String()
		if strings.Contains(out, "+79161234567") {
			t.Errorf("номер внутри ошибки не был замаскирован: %s", out)
		}
	})

	t.Run("маскирует атрибуты из With", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewMaskedLogger(slog.NewTextHandler(&buf, nil)).With("owner", "+79161234567")

		logger.Info("dataset opened")

		out := buf.String()
		if strings.Contains(out, "+79161234567") {
			t.Errorf("номер в With-атрибуте не был замаскирован: %s", out)
		}
	})
}
