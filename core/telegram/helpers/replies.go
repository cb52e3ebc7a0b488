package helpers

import (
	tele "gopkg.in/telebot.v4"
)

const (
	repliesKey  = "replies"
	keyboardKey = "kb"
)

// ResetReplies zeroes the per-update reply counters.
func ResetReplies(c tele.Context) {
	c.Set(repliesKey, 0)
	c.Set(keyboardKey, false)
}

// Replies reports how many replies were sent or queued for the update and
// whether any of them carried a keyboard.
func Replies(c tele.Context) (int, bool) {
	n, _ := c.Get(repliesKey).(int)
	kb, _ := c.Get(keyboardKey).(bool)
	return n, kb
}

func countReply(c tele.Context, opts *tele.SendOptions) {
	n, _ := c.Get(repliesKey).(int)
	c.Set(repliesKey, n+1)
	if opts != nil && opts.ReplyMarkup != nil {
		c.Set(keyboardKey, true)
	}
}
