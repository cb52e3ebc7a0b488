package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// looseID accepts identifiers encoded either as JSON strings or numbers.
type looseID string

func (id *looseID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = looseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = looseID(n.String())
	return nil
}

type rawOption struct {
	Title string `json:"title"`
}

type rawWidget struct {
	ID          looseID `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Component   string  `json:"component"`
	Props       struct {
		Options []rawOption `json:"options"`
	} `json:"props"`
}

type rawStep struct {
	Widgets []rawWidget `json:"widgets"`
}

type rawForm struct {
	ID     looseID `json:"id"`
	Header struct {
		Heading string `json:"heading"`
		Title   string `json:"title"`
	} `json:"header"`
	Steps    []rawStep `json:"steps"`
	Settings struct {
		SaveDestination string `json:"saveDestination"`
	} `json:"settings"`
}

// ParseForms decodes the form source payload. Records without widgets in their
// first step are skipped and counted.
func ParseForms(data []byte) ([]Form, int, error) {
	var raw []rawForm
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("decode forms: %w", err)
	}

	out := make([]Form, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		if len(r.Steps) == 0 || len(r.Steps[0].Widgets) == 0 {
			skipped++
			continue
		}
		out = append(out, r.toForm())
	}
	return out, skipped, nil
}

func (r rawForm) toForm() Form {
	title := r.Header.Heading
	if title == "" {
		title = r.Header.Title
	}
	widgets := r.Steps[0].Widgets
	questions := make([]Question, 0, len(widgets))
	for _, w := range widgets {
		q := Question{
			ID:          string(w.ID),
			Title:       w.Title,
			Description: w.Description,
			Kind:        KindFreeText,
		}
		if w.Component == componentMultipleChoice {
			q.Kind = KindMultipleChoice
			for _, o := range w.Props.Options {
				q.Options = append(q.Options, Option{Title: o.Title})
			}
		}
		questions = append(questions, q)
	}
	return Form{
		ID:              string(r.ID),
		Title:           title,
		Questions:       questions,
		SaveDestination: r.Settings.SaveDestination,
	}
}
