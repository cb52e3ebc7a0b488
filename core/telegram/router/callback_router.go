package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/formrelay/core/conversation"
	tg "github.com/m3rciful/formrelay/core/telegram"
	"github.com/m3rciful/formrelay/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/formrelay/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute turns answer button presses into postback events. Other
// callbacks are acknowledged and ignored.
func CallbackRoute(opts Options) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		cb := c.Callback()
		if cb == nil {
			return nil
		}

		_ = c.Respond()

		key, payload := callbacks.ParseCallbackData(cb)
		name := "callback." + normalizeHandlerName(key)
		if key != callbacks.AnswerUnique || c.Sender() == nil {
			summary{handler: name, start: start, skipped: true, extras: []slog.Attr{
				slog.String("cb_key", key),
				slog.String("reason", "not_found"),
			}}.log(c)
			return nil
		}

		ev := conversation.Event{
			UserID: tghelpers.UserID(c),
			Kind:   conversation.EventPostback,
			Text:   payload,
		}
		return handleEvent(c, name, start, opts, ev)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  handler,
	}
}
