package conversation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/m3rciful/formrelay/core/forms"
)

// Submission is the side effect of a completed conversation.
type Submission struct {
	UserID  string
	FormID  string
	URL     string
	Answers []forms.Answer
}

// Transition is the outcome of applying one event to a user's state.
// Next == nil means the user ends up without a conversation.
type Transition struct {
	Next    *Conversation
	Reply   Reply
	Submit  *Submission
	Started bool
}

// PickFunc chooses the form a new conversation is built from.
type PickFunc func() (forms.Form, error)

// Step applies ev to conv. It never mutates conv. The only error is the one
// returned by pick when a start is requested.
func Step(conv *Conversation, ev Event, pick PickFunc) (Transition, error) {
	if conv == nil || conv.Phase() != PhaseAwaiting {
		if ev.Kind == EventMessage && IsTrigger(ev.Text) {
			form, err := pick()
			if err != nil {
				return Transition{}, err
			}
			return Start(form), nil
		}
		// Postbacks never start a conversation.
		return Transition{Reply: Reply{Text: HintText}}, nil
	}
	return Answer(conv, ev.UserID, ev.Text), nil
}

// IsTrigger reports whether text asks for a new conversation.
func IsTrigger(text string) bool {
	return strings.Contains(strings.ToLower(text), TriggerPhrase)
}

// Start snapshots form into a new conversation and renders its first question.
func Start(form forms.Form) Transition {
	next := &Conversation{
		FormID:          form.ID,
		Questions:       slices.Clone(form.Questions),
		SaveDestination: form.SaveDestination,
	}
	prefix := fmt.Sprintf(startPrefixFormat, form.Title)
	return Transition{
		Next:    next,
		Reply:   RenderQuestion(next, prefix),
		Started: true,
	}
}

// Answer records text for the current question of conv.
func Answer(conv *Conversation, userID, text string) Transition {
	q := conv.Questions[conv.Index()]
	next := *conv
	next.Answers = append(slices.Clip(conv.Answers), forms.Answer{Answer: text, WidgetID: q.ID})

	if next.Phase() == PhaseCompleted {
		return Transition{
			Reply: Reply{Text: ThanksText},
			Submit: &Submission{
				UserID:  userID,
				FormID:  next.FormID,
				URL:     next.SubmitURL(),
				Answers: next.Answers,
			},
		}
	}
	return Transition{
		Next:  &next,
		Reply: RenderQuestion(&next, ""),
	}
}

// RenderQuestion renders the question awaiting an answer, optionally preceded
// by prefix on its own line.
func RenderQuestion(conv *Conversation, prefix string) Reply {
	q := conv.Questions[conv.Index()]

	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('\n')
	}
	b.WriteString(q.Title)
	if q.Description != "" {
		b.WriteString(": ")
		b.WriteString(q.Description)
	}

	reply := Reply{Text: b.String()}
	if q.Kind != forms.KindMultipleChoice {
		return reply
	}
	for i, opt := range q.Options {
		if i >= MaxButtons {
			break
		}
		reply.Buttons = append(reply.Buttons, Button{Title: opt.Title, Payload: opt.Title})
	}
	return reply
}
