package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/formrelay/core/logger"
	tghelpers "github.com/m3rciful/formrelay/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// summary is the single handler.handled line written per update.
type summary struct {
	handler string
	start   time.Time
	skipped bool
	err     error
	extras  []slog.Attr
}

func (s summary) log(c tele.Context) {
	ctx := tghelpers.WithHandler(c, s.handler)
	replies, kb := tghelpers.Replies(c)

	status, outcome := "ok", "ok"
	switch {
	case s.err != nil:
		status, outcome = "fail", "fail"
	case s.skipped:
		status = "skip"
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", s.handler),
		slog.String("outcome", outcome),
		slog.Int("messages", replies),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(s.start)),
	}
	if s.err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(s.err.Error(), 256)),
			slog.String("err_code", errorCode(s.err)),
		)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", append(attrs, s.extras...)...)
}

func normalizeHandlerName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.TrimPrefix(name, "/"), " ", "_")
}

// errorCode names err by its Bot API code when there is one, else by its type.
func errorCode(err error) string {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return fmt.Sprintf("TG_%d", apiErr.Code)
	}
	name := fmt.Sprintf("%T", errors.Unwrap(err))
	if errors.Unwrap(err) == nil {
		name = fmt.Sprintf("%T", err)
	}
	name = name[strings.LastIndex(name, ".")+1:]
	return strings.ToUpper(strings.TrimLeft(name, "*"))
}
