package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/formrelay/core/forms"
	"github.com/m3rciful/formrelay/core/logger"
)

// FormPicker supplies the form for a new conversation.
type FormPicker interface {
	PickRandom() (forms.Form, error)
}

// Submitter delivers a completed answer set.
type Submitter interface {
	Submit(ctx context.Context, url string, answers []forms.Answer) error
}

// Observer is notified about conversation milestones. Submission outcomes are
// only visible here and in logs; users always get ThanksText.
type Observer interface {
	ConversationStarted(formID string)
	AnswerRecorded(formID string)
	SubmissionSucceeded(formID string)
	SubmissionFailed(formID string, err error)
	CatalogEmpty()
}

// Options configures NewTracker.
type Options struct {
	Forms     FormPicker
	Submitter Submitter
	Observer  Observer
}

// Tracker maps users to their in-progress conversation. It is safe for
// concurrent use; unfinished conversations are kept until the process exits.
type Tracker struct {
	forms     FormPicker
	submitter Submitter
	observer  Observer

	mu       sync.Mutex
	sessions map[string]*Conversation
}

// NewTracker builds a Tracker with no conversations.
func NewTracker(opts Options) *Tracker {
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Tracker{
		forms:     opts.Forms,
		submitter: opts.Submitter,
		observer:  obs,
		sessions:  make(map[string]*Conversation),
	}
}

// Handle routes ev to start-or-continue logic and returns the reply for the
// user. When no form is available the reply is UnavailableText and the error
// wraps forms.ErrCatalogEmpty. On completion the answers are submitted before
// Handle returns; submission errors are never returned.
func (t *Tracker) Handle(ctx context.Context, ev Event) (Reply, error) {
	start := time.Now()

	t.mu.Lock()
	current := t.sessions[ev.UserID]
	tr, err := Step(current, ev, t.pick)
	if err != nil {
		t.mu.Unlock()
		if errors.Is(err, forms.ErrCatalogEmpty) {
			t.observer.CatalogEmpty()
		}
		logger.Conv.LogAttrs(ctx, slog.LevelWarn, "conversation not started",
			slog.String("event", "conversation.start"),
			slog.String("status", "fail"),
			slog.String("user_id", ev.UserID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: UnavailableText}, err
	}
	// State is dropped before the submission is posted.
	if tr.Next != nil {
		t.sessions[ev.UserID] = tr.Next
	} else {
		delete(t.sessions, ev.UserID)
	}
	t.mu.Unlock()

	switch {
	case tr.Started:
		t.observer.ConversationStarted(tr.Next.FormID)
		logger.Conv.LogAttrs(ctx, slog.LevelInfo, "conversation started",
			slog.String("event", "conversation.start"),
			slog.String("status", "ok"),
			slog.String("user_id", ev.UserID),
			slog.String("form_id", tr.Next.FormID),
			slog.Int("questions", len(tr.Next.Questions)),
		)
	case tr.Next != nil || tr.Submit != nil:
		formID := current.FormID
		t.observer.AnswerRecorded(formID)
		logger.Conv.LogAttrs(ctx, slog.LevelDebug, "answer recorded",
			slog.String("event", "conversation.answer"),
			slog.String("status", "ok"),
			slog.String("user_id", ev.UserID),
			slog.String("kind", ev.Kind.String()),
			slog.String("form_id", formID),
			slog.Int("question", current.Index()),
		)
	default:
		event := "conversation.hint"
		if ev.Kind == EventPostback {
			event = "conversation.stray_postback"
		}
		logger.Conv.LogAttrs(ctx, slog.LevelDebug, "suggesting trigger",
			slog.String("event", event),
			slog.String("status", "skip"),
			slog.String("user_id", ev.UserID),
			slog.String("kind", ev.Kind.String()),
		)
	}

	if tr.Submit != nil {
		t.submit(ctx, tr.Submit, start)
	}
	return tr.Reply, nil
}

func (t *Tracker) pick() (forms.Form, error) {
	if t.forms == nil {
		return forms.Form{}, forms.ErrCatalogEmpty
	}
	return t.forms.PickRandom()
}

func (t *Tracker) submit(ctx context.Context, s *Submission, start time.Time) {
	attrs := []slog.Attr{
		slog.String("event", "submission"),
		slog.String("user_id", s.UserID),
		slog.String("form_id", s.FormID),
		slog.String("url", s.URL),
		slog.Int("answers", len(s.Answers)),
	}

	var err error
	if t.submitter == nil {
		err = errors.New("no submitter configured")
	} else {
		err = t.submitter.Submit(ctx, s.URL, s.Answers)
	}
	attrs = append(attrs, slog.Duration("duration", logger.Took(start)))

	if err != nil {
		t.observer.SubmissionFailed(s.FormID, err)
		attrs = append(attrs,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		logger.Submit.LogAttrs(ctx, slog.LevelError, "submission failed", attrs...)
		return
	}
	t.observer.SubmissionSucceeded(s.FormID)
	attrs = append(attrs, slog.String("status", "ok"))
	logger.Submit.LogAttrs(ctx, slog.LevelInfo, "submission saved", attrs...)
}

// Phase reports the phase of userID and the index of the question awaiting an answer.
func (t *Tracker) Phase(userID string) (Phase, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conv := t.sessions[userID]
	return conv.Phase(), conv.Index()
}

// InProgress reports whether userID has a conversation.
func (t *Tracker) InProgress(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[userID]
	return ok
}

// Active returns the number of in-progress conversations.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

type nopObserver struct{}

func (nopObserver) ConversationStarted(string)     {}
func (nopObserver) AnswerRecorded(string)          {}
func (nopObserver) SubmissionSucceeded(string)     {}
func (nopObserver) SubmissionFailed(string, error) {}
func (nopObserver) CatalogEmpty()                  {}
