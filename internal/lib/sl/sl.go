// Package sl содержит вспомогательные функции для структурированного логирования через slog.
package sl

import (
	"io"
	"log/slog"
)

// New создаёт текстовый логгер процесса: уровень debug для локального
// запуска, info для остальных окружений.
func New(env string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if env == "local" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Err возвращает атрибут "error" с текстом ошибки.
//
//	log.Error("failed to reconcile transaction", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op возвращает атрибут "op" с именем операции, как в `const op = "pkg.Func"`.
func Op(op string) slog.Attr {
	return slog.String("op", op)
}
