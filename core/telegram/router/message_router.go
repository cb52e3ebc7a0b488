// Package router binds telebot endpoints to the conversation tracker.
package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/formrelay/core/conversation"
	"github.com/m3rciful/formrelay/core/forms"
	tg "github.com/m3rciful/formrelay/core/telegram"
	"github.com/m3rciful/formrelay/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/formrelay/core/telegram/helpers"
	"github.com/m3rciful/formrelay/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Conversations turns an inbound event into a reply.
type Conversations interface {
	Handle(ctx context.Context, ev conversation.Event) (conversation.Reply, error)
}

// InboundObserver counts accepted events.
type InboundObserver interface {
	InboundEvent(transport, kind string)
}

// Options wires routes to the tracker.
type Options struct {
	Conversations Conversations
	Observer      InboundObserver
}

// TextRoutes feeds every text message to the tracker as a free text event.
func TextRoutes(opts Options) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Sender() == nil || c.Text() == "" {
			summary{handler: "text", start: start, skipped: true}.log(c)
			return nil
		}
		ev := conversation.Event{
			UserID: tghelpers.UserID(c),
			Kind:   conversation.EventMessage,
			Text:   c.Text(),
		}
		return handleEvent(c, "text", start, opts, ev)
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: handler},
	}
}

func handleEvent(c tele.Context, name string, start time.Time, opts Options, ev conversation.Event) error {
	if opts.Observer != nil {
		opts.Observer.InboundEvent(tghelpers.Transport, ev.Kind.String())
	}
	ctx := tghelpers.WithHandler(c, name)

	var extras []slog.Attr
	reply, err := opts.Conversations.Handle(ctx, ev)
	if errors.Is(err, forms.ErrCatalogEmpty) {
		extras = append(extras, slog.String("reason", "catalog_empty"))
		err = nil
	}
	if err == nil && !reply.Empty() {
		err = tghelpers.SendWithMarkup(c, reply.Text, Markup(reply))
	}
	summary{handler: name, start: start, err: err, extras: extras}.log(c)
	return err
}

// Markup renders reply buttons as an inline keyboard, one option per row.
func Markup(reply conversation.Reply) *tele.ReplyMarkup {
	if len(reply.Buttons) == 0 {
		return nil
	}
	btns := make([]keyboard.InlineBtn, 0, len(reply.Buttons))
	for _, b := range reply.Buttons {
		btns = append(btns, keyboard.InlineBtn{
			Text:   b.Title,
			Unique: callbacks.AnswerUnique,
			Data:   callbacks.FitPayload(callbacks.AnswerUnique, b.Payload),
		})
	}
	return keyboard.InlineButtons(btns)
}
