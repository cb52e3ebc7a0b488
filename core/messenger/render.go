package messenger

import "github.com/m3rciful/formrelay/core/conversation"

// Render converts a transport-neutral reply into a Send API message. Replies
// with buttons become a button template; everything else is plain text.
func Render(r conversation.Reply) OutboundMessage {
	if len(r.Buttons) == 0 {
		return OutboundMessage{Text: r.Text}
	}
	buttons := make([]PostbackButton, 0, len(r.Buttons))
	for _, b := range r.Buttons {
		buttons = append(buttons, PostbackButton{Type: "postback", Title: b.Title, Payload: b.Payload})
	}
	return OutboundMessage{
		Attachment: &Attachment{
			Type: "template",
			Payload: TemplatePayload{
				TemplateType: "button",
				Text:         r.Text,
				Buttons:      buttons,
			},
		},
	}
}
