// Package conversation drives one form per user: it starts a conversation on
// the trigger phrase, asks one question at a time, and hands the completed
// answer set to a submitter.
package conversation

import (
	"github.com/m3rciful/formrelay/core/forms"
)

const (
	// TriggerPhrase starts a conversation when found anywhere in a message, ignoring case.
	TriggerPhrase = "ask me"
	// MaxButtons is the number of options the messaging surface can show per question.
	MaxButtons = 3

	// HintText answers users without a conversation who did not ask for one.
	HintText = `Hi! you can start getting questions by saying "ask me"`
	// ThanksText closes every completed conversation, whatever the submission outcome.
	ThanksText = "Thanks for answering! ask me again if you want to answer more questions..."
	// UnavailableText is sent when no form can be picked.
	UnavailableText = "Sorry, there are no questions available right now. Please try again later."

	startPrefixFormat = "You are about to answer some questions about \"%s\".\nLets start with the first one:"
)

// EventKind tells free text apart from button presses.
type EventKind int

const (
	// EventMessage is a free text message.
	EventMessage EventKind = iota
	// EventPostback is a structured button reply carrying a payload.
	EventPostback
)

func (k EventKind) String() string {
	if k == EventPostback {
		return "postback"
	}
	return "message"
}

// Event is an inbound message or postback from one user.
type Event struct {
	UserID string
	Kind   EventKind
	// Text is the message text or the postback payload.
	Text string
}

// Button is a quick reply offered with a question.
type Button struct {
	Title   string
	Payload string
}

// Reply is the transport-neutral answer to an event.
type Reply struct {
	Text    string
	Buttons []Button
}

// Empty reports whether there is nothing to send.
func (r Reply) Empty() bool {
	return r.Text == "" && len(r.Buttons) == 0
}

// Phase is the per-user position in the question sequence.
type Phase int

const (
	// PhaseNone means the user has no conversation.
	PhaseNone Phase = iota
	// PhaseAwaiting means the user is expected to answer the current question.
	PhaseAwaiting
	// PhaseCompleted is transient: every question has an answer and the state is about to be dropped.
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaiting:
		return "awaiting"
	case PhaseCompleted:
		return "completed"
	default:
		return "none"
	}
}

// Conversation is the in-progress state of one user answering one form.
// Questions and SaveDestination are snapshots taken when the form was picked.
type Conversation struct {
	FormID          string
	Questions       []forms.Question
	Answers         []forms.Answer
	SaveDestination string
}

// Phase derives the conversation phase from the answer count.
func (c *Conversation) Phase() Phase {
	if c == nil {
		return PhaseNone
	}
	if len(c.Answers) >= len(c.Questions) {
		return PhaseCompleted
	}
	return PhaseAwaiting
}

// Index is the position of the question awaiting an answer.
func (c *Conversation) Index() int {
	if c == nil {
		return 0
	}
	return len(c.Answers)
}

// SubmitURL is the destination the answers are posted to.
func (c *Conversation) SubmitURL() string {
	return c.SaveDestination + c.FormID
}
