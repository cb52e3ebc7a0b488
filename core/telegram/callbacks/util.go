// Package callbacks decodes inline button payloads.
package callbacks

import (
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

// AnswerUnique is the callback key of answer buttons.
const AnswerUnique = "answer"

// MaxDataBytes is the Bot API limit for callback data.
const MaxDataBytes = 64

// ParseCallbackData splits a callback into its unique key and payload. It
// prefers the fields telebot already split for registered endpoints and falls
// back to the raw \f<unique>|<payload> encoding.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	parts := strings.SplitN(raw, "|", 2)
	unique := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return unique, payload
}

// CallbackPayload returns the payload of the current callback.
func CallbackPayload(c tele.Context) string {
	_, payload := ParseCallbackData(c.Callback())
	return payload
}

// FitPayload trims payload so that the encoded callback for unique fits the
// Bot API limit, cutting on a rune boundary.
func FitPayload(unique, payload string) string {
	room := MaxDataBytes - len("\f"+unique+"|")
	if room <= 0 {
		return ""
	}
	if len(payload) <= room {
		return payload
	}
	cut := payload[:room]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
