package helpers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/m3rciful/formrelay/core/logger"
	"github.com/m3rciful/formrelay/core/netutil"
	"github.com/m3rciful/formrelay/core/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	job := func(context.Context) error { return withStatus(run(), endpoint) }
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, job); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// withStatus attaches the Bot API status so the dispatcher can classify the failure.
func withStatus(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	code := 0
	var apiErr *tele.Error
	var floodErr tele.FloodError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &floodErr):
		code = http.StatusTooManyRequests
	}
	if code == 0 {
		return err
	}
	return fmt.Errorf("%w: %w", err, &netutil.StatusError{Method: http.MethodPost, URL: endpoint, Code: code})
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	err := sendAsync(c, "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
	if err == nil {
		countReply(c, sendOpts)
	}
	return err
}

// SendWithMarkup sends raw text with an optional reply markup.
func SendWithMarkup(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if markup == nil {
		return SendText(c, text)
	}
	return SendText(c, text, &tele.SendOptions{ReplyMarkup: markup})
}
