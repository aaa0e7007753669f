// Package lineutil provides utility functions for building LINE messages and actions.
package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/garyellow/unibot-go/internal/modules/catalogue"
)

// QuickReplyItem represents an item in a quick reply.
type QuickReplyItem struct {
	ImageURL string
	Action   messaging_api.ActionInterface
}

// Action is an alias for the LINE SDK action interface for convenience.
type Action = messaging_api.ActionInterface

// NewTextMessage creates a simple text message.
// LINE API limits: max 5000 characters per text message
func NewTextMessage(text string) *messaging_api.TextMessage {
	if len([]rune(text)) > MaxTextMessageLength {
		text = TruncateRunes(text, MaxTextMessageLength)
	}

	return &messaging_api.TextMessage{
		Text: text,
	}
}

// NewQuickReply creates a quick reply message component.
// LINE API limits: max 13 items
func NewQuickReply(items []QuickReplyItem) *messaging_api.QuickReply {
	if len(items) > MaxQuickReplyItemCount {
		items = items[:MaxQuickReplyItemCount]
	}

	quickReplyItems := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		qrItem := messaging_api.QuickReplyItem{
			Action: item.Action,
		}
		if item.ImageURL != "" {
			qrItem.ImageUrl = item.ImageURL
		}
		quickReplyItems[i] = qrItem
	}

	return &messaging_api.QuickReply{
		Items: quickReplyItems,
	}
}

// NewMessageAction creates a message action that sends a message when clicked.
func NewMessageAction(label, text string) Action {
	return &messaging_api.MessageAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Text:  text,
	}
}

// NewPostbackAction creates a postback action that sends data to the bot when clicked.
func NewPostbackAction(label, data string) Action {
	return &messaging_api.PostbackAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Data:  data,
	}
}

// NewPostbackActionWithDisplayText creates a postback action that also
// echoes displayText into the chat as if the user typed it.
func NewPostbackActionWithDisplayText(label, displayText, data string) Action {
	return &messaging_api.PostbackAction{
		Label:       TruncateRunes(label, MaxQuickReplyLabel),
		DisplayText: displayText,
		Data:        data,
	}
}

// TruncateRunes truncates text by rune count (not byte count) to properly handle UTF-8.
// Returns truncated string with "..." if exceeds maxRunes.
func TruncateRunes(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// QuickReplyItems flattens keyboard rows into postback quick reply items.
// Buttons whose data exceeds the postback limit are skipped.
func QuickReplyItems(keyboard [][]catalogue.Button) []QuickReplyItem {
	var items []QuickReplyItem
	for _, row := range keyboard {
		for _, btn := range row {
			if len(btn.Data) > MaxPostbackData {
				continue
			}
			items = append(items, QuickReplyItem{
				Action: NewPostbackActionWithDisplayText(btn.Label, btn.Label, btn.Data),
			})
		}
	}
	return items
}

// BuildReply converts a catalogue reply into LINE messages. Every message
// is plain text; a keyboard becomes the quick reply of its message.
// Edits are not supported by LINE, so every message is sent as new.
func BuildReply(reply catalogue.Reply) []messaging_api.MessageInterface {
	messages := make([]messaging_api.MessageInterface, 0, len(reply.Messages))
	for _, m := range reply.Messages {
		msg := NewTextMessage(m.Text)
		if items := QuickReplyItems(m.Keyboard); len(items) > 0 {
			msg.QuickReply = NewQuickReply(items)
		}
		messages = append(messages, msg)
	}
	if len(messages) > MaxMessagesPerReply {
		messages = messages[:MaxMessagesPerReply]
	}
	return messages
}
