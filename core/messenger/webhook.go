package messenger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/m3rciful/formrelay/core/conversation"
	"github.com/m3rciful/formrelay/core/logger"
	"github.com/m3rciful/formrelay/core/sender"
)

const (
	transportName = "messenger"
	maxBodyBytes  = 1 << 20
)

// Conversations turns an inbound event into a reply.
type Conversations interface {
	Handle(ctx context.Context, ev conversation.Event) (conversation.Reply, error)
}

// Sender delivers a rendered message to a user.
type Sender interface {
	Send(ctx context.Context, recipientID string, msg OutboundMessage) (*SendResponse, error)
}

// Queue runs outbound calls off the webhook goroutine.
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run func(context.Context) error) error
}

// InboundObserver counts accepted events.
type InboundObserver interface {
	InboundEvent(transport, kind string)
}

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature checks when non-empty.
	AppSecret     string
	Conversations Conversations
	Sender        Sender
	// Endpoint names the Send API in logs.
	Endpoint string
	// Queue is optional; without it replies are sent inline.
	Queue    Queue
	Observer InboundObserver
}

// Handler serves the Messenger webhook.
type Handler struct {
	opts HandlerOptions
	wg   sync.WaitGroup
}

// NewHandler builds a webhook handler.
func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{opts: opts}
}

// Routes mounts the verification and event endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeVerify)
	r.Post("/", h.ServeEvents)
	return r
}

// Wait blocks until every accepted callback has been processed.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// ServeVerify answers the subscription handshake.
func (h *Handler) ServeVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.opts.VerifyToken != "" &&
		hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(h.opts.VerifyToken)) {
		logger.MSG.LogAttrs(r.Context(), slog.LevelInfo, "webhook verified",
			slog.String("event", "messenger.verify"),
			slog.String("status", "ok"),
		)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
		return
	}
	logger.MSG.LogAttrs(r.Context(), slog.LevelWarn, "webhook verification refused",
		slog.String("event", "messenger.verify"),
		slog.String("status", "fail"),
		slog.String("mode", logger.SanitizeLimit(q.Get("hub.mode"), 32)),
	)
	http.Error(w, "Error, wrong validation token", http.StatusForbidden)
}

// ServeEvents accepts a callback, acknowledges it and processes its events in
// the background.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.MSG.LogAttrs(ctx, slog.LevelWarn, "read callback failed",
			slog.String("event", "messenger.callback"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.verifySignature(r.Header, body); err != nil {
		logger.MSG.LogAttrs(ctx, slog.LevelError, "TransportError",
			slog.String("event", "messenger.signature"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var cb Callback
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&cb); err != nil {
		logger.MSG.LogAttrs(ctx, slog.LevelWarn, "decode callback failed",
			slog.String("event", "messenger.callback"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	if cb.Object != "page" {
		logger.MSG.LogAttrs(ctx, slog.LevelDebug, "ignoring callback",
			slog.String("event", "messenger.callback"),
			slog.String("status", "skip"),
			slog.String("object", logger.SanitizeLimit(cb.Object, 32)),
		)
		return
	}

	bg := context.WithoutCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.process(bg, cb)
	}()
}

func (h *Handler) verifySignature(header http.Header, body []byte) error {
	if h.opts.AppSecret == "" {
		return nil
	}
	if sig := header.Get("X-Hub-Signature-256"); sig != "" {
		return checkSignature(sig, "sha256=", sha256.New, h.opts.AppSecret, body)
	}
	if sig := header.Get("X-Hub-Signature"); sig != "" {
		return checkSignature(sig, "sha1=", sha1.New, h.opts.AppSecret, body)
	}
	return fmt.Errorf("%w: missing signature header", ErrSignature)
}

func checkSignature(header, prefix string, newHash func() hash.Hash, secret string, body []byte) error {
	hexSig, ok := strings.CutPrefix(header, prefix)
	if !ok {
		return fmt.Errorf("%w: unexpected scheme", ErrSignature)
	}
	want, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrSignature
	}
	return nil
}

func (h *Handler) process(ctx context.Context, cb Callback) {
	for _, entry := range cb.Entry {
		for _, m := range entry.Messaging {
			ev, rid, ok := toEvent(m)
			if !ok {
				continue
			}
			evCtx := logger.WithUser(ctx, transportName, ev.UserID)
			if rid != "" {
				evCtx = logger.WithRID(evCtx, rid)
			}
			h.handleEvent(evCtx, ev)
		}
	}
}

// recoverEvent logs a panic raised while handling one event so the remaining
// events and the process keep running.
func recoverEvent(ctx context.Context, ev conversation.Event) {
	if r := recover(); r != nil {
		logger.MSG.LogAttrs(ctx, slog.LevelError, "UncaughtFault",
			slog.String("event", "messenger.panic"),
			slog.String("status", "fail"),
			slog.String("kind", ev.Kind.String()),
			slog.Any("err", r),
			slog.String("stack", string(debug.Stack())),
		)
	}
}

// toEvent maps a webhook event to a conversation event. Echoes, events
// without a sender and messages without text are dropped.
func toEvent(m Messaging) (conversation.Event, string, bool) {
	if m.Sender.ID == "" {
		return conversation.Event{}, "", false
	}
	switch {
	case m.Postback != nil:
		return conversation.Event{UserID: m.Sender.ID, Kind: conversation.EventPostback, Text: m.Postback.Payload}, "", true
	case m.Message != nil && !m.Message.IsEcho && m.Message.Text != "":
		return conversation.Event{UserID: m.Sender.ID, Kind: conversation.EventMessage, Text: m.Message.Text}, m.Message.MID, true
	}
	return conversation.Event{}, "", false
}

func (h *Handler) handleEvent(ctx context.Context, ev conversation.Event) {
	defer recoverEvent(ctx, ev)
	start := time.Now()
	if h.opts.Observer != nil {
		h.opts.Observer.InboundEvent(transportName, ev.Kind.String())
	}
	logger.MSG.LogAttrs(ctx, slog.LevelDebug, "incoming event",
		slog.String("event", "messenger.in"),
		slog.String("kind", ev.Kind.String()),
		slog.String("text", logger.SanitizeLimit(ev.Text, 64)),
	)

	reply, err := h.opts.Conversations.Handle(ctx, ev)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.MSG.LogAttrs(ctx, slog.LevelWarn, "conversation error",
			slog.String("event", "messenger.handle"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	if reply.Empty() {
		return
	}

	msg := Render(reply)
	if err := h.deliver(ctx, ev.UserID, msg); err != nil {
		logger.MSG.LogAttrs(ctx, slog.LevelError, "reply not sent",
			slog.String("event", "messenger.reply"),
			slog.String("status", "fail"),
			slog.String("err", sender.SanitizeError(err)),
			slog.Duration("duration", logger.Took(start)),
		)
		return
	}
	logger.MSG.LogAttrs(ctx, slog.LevelDebug, "reply scheduled",
		slog.String("event", "messenger.reply"),
		slog.String("status", "ok"),
		slog.Int("buttons", len(reply.Buttons)),
		slog.Duration("duration", logger.Took(start)),
	)
}

func (h *Handler) deliver(ctx context.Context, recipientID string, msg OutboundMessage) error {
	if h.opts.Sender == nil {
		return errors.New("messenger: no sender configured")
	}
	run := func(ctx context.Context) error {
		_, err := h.opts.Sender.Send(ctx, recipientID, msg)
		return err
	}
	if h.opts.Queue == nil {
		return run(ctx)
	}
	return h.opts.Queue.Enqueue(ctx, "messenger.send", h.opts.Endpoint, run)
}
