package webhook

import (
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// isBotMentioned reports whether any mentionee of the message is the bot itself.
func isBotMentioned(textMsg webhook.TextMessageContent) bool {
	return len(selfMentions(textMsg.Mention)) > 0
}

func selfMentions(mention *webhook.Mention) []webhook.UserMentionee {
	if mention == nil {
		return nil
	}
	var self []webhook.UserMentionee
	for _, m := range mention.Mentionees {
		if um, ok := m.(webhook.UserMentionee); ok && um.IsSelf {
			self = append(self, um)
		}
	}
	return self
}

// removeBotMentions strips every @bot span from text.
// LINE reports mention offsets in characters, so the text is cut by runes,
// back to front so earlier offsets stay valid.
func removeBotMentions(text string, mention *webhook.Mention) string {
	self := selfMentions(mention)
	if len(self) == 0 {
		return text
	}
	slices.SortFunc(self, func(a, b webhook.UserMentionee) int {
		return int(b.Index - a.Index)
	})

	runes := []rune(text)
	for _, m := range self {
		start := max(int(m.Index), 0)
		end := min(int(m.Index+m.Length), len(runes))
		if start >= end {
			continue
		}
		runes = append(runes[:start], runes[end:]...)
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}
