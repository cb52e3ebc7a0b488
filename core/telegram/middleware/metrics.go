package middleware

import (
	tghelpers "github.com/m3rciful/formrelay/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// MessageMetricsMiddleware resets the per-update reply counters read by the
// handler summary log.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		tghelpers.ResetReplies(c)
		return next(c)
	}
}
