// Package forms holds the form catalog fetched from the form source and the
// HTTP sink that receives completed answer sets.
package forms

// Kind is the rendering kind of a question.
type Kind int

const (
	// KindFreeText is a plain text question and the fallback for unknown components.
	KindFreeText Kind = iota
	// KindMultipleChoice offers options rendered as buttons.
	KindMultipleChoice
)

const componentMultipleChoice = "MultipleChoice"

func (k Kind) String() string {
	if k == KindMultipleChoice {
		return componentMultipleChoice
	}
	return "FreeText"
}

// Option is a selectable answer of a multiple choice question.
type Option struct {
	Title string
}

// Question is a single widget of a form's first step.
type Question struct {
	ID          string
	Title       string
	Description string
	Kind        Kind
	Options     []Option
}

// Form is an immutable form definition.
type Form struct {
	ID              string
	Title           string
	Questions       []Question
	SaveDestination string
}

// SubmitURL is where the completed answers for this form are posted.
func (f Form) SubmitURL() string {
	return f.SaveDestination + f.ID
}

// Answer is one collected reply bound to the question it answers.
type Answer struct {
	Answer   string `json:"answer"`
	WidgetID string `json:"widget_id"`
}
