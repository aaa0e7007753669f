package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/garyellow/unibot-go/internal/modules/catalogue"
)

// MaxCallbackData is the Bot API limit for inline button data, in bytes.
const MaxCallbackData = catalogue.MaxTokenBytes

// answerCallback acknowledges a button press so the client stops its spinner.
func (p *Poller) answerCallback(ctx context.Context, id string) {
	if !p.acquire(ctx) {
		return
	}
	if _, err := p.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		p.logger.WithError(err).WarnContext(ctx, "Failed to answer callback query")
	}
}

// deliver sends every message of the reply in order. An edit that the
// platform rejects is retried as a new message.
func (p *Poller) deliver(ctx context.Context, chatID int64, messageID int, reply catalogue.Reply) {
	for _, msg := range reply.Messages {
		if !p.acquire(ctx) {
			return
		}

		if msg.Delivery == catalogue.DeliveryEdit && messageID != 0 {
			_, err := p.api.Send(p.editConfig(ctx, chatID, messageID, msg))
			if err == nil || isNotModified(err) {
				continue
			}
			p.logger.WithError(err).WarnContext(ctx, "Edit rejected; resending as new message")
			p.metrics.RecordDeliveryFallback(Transport)
			if !p.acquire(ctx) {
				return
			}
		}

		if _, err := p.api.Send(p.messageConfig(ctx, chatID, msg)); err != nil {
			p.logger.WithError(err).ErrorContext(ctx, "Failed to send message")
		}
	}
}

func (p *Poller) acquire(ctx context.Context) bool {
	if p.limiter.Allow() {
		return true
	}
	p.metrics.RecordRateLimiterDrop("global")
	return p.limiter.Wait(ctx) == nil
}

func (p *Poller) messageConfig(ctx context.Context, chatID int64, msg catalogue.Message) tgbotapi.MessageConfig {
	cfg := tgbotapi.NewMessage(chatID, msg.Text)
	cfg.ParseMode = parseMode(msg.Format)
	if markup := p.inlineKeyboard(ctx, msg.Keyboard); markup != nil {
		cfg.ReplyMarkup = *markup
	}
	return cfg
}

func (p *Poller) editConfig(ctx context.Context, chatID int64, messageID int, msg catalogue.Message) tgbotapi.EditMessageTextConfig {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, msg.Text)
	cfg.ParseMode = parseMode(msg.Format)
	cfg.ReplyMarkup = p.inlineKeyboard(ctx, msg.Keyboard)
	return cfg
}

// inlineKeyboard converts button rows. A button whose callback data exceeds
// the platform limit would make Telegram reject the whole message, so it is
// logged and left out.
func (p *Poller) inlineKeyboard(ctx context.Context, rows [][]catalogue.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if len(b.Data) > MaxCallbackData {
				p.logger.WithField("callback_data", b.Data).
					WithField("bytes", len(b.Data)).
					WarnContext(ctx, "Callback data exceeds Telegram limit; button dropped")
				p.metrics.RecordDroppedButton(Transport)
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		if len(buttons) > 0 {
			keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(keyboard) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	return &markup
}

func parseMode(f catalogue.Format) string {
	if f == catalogue.FormatHTML {
		return tgbotapi.ModeHTML
	}
	return ""
}

// isNotModified matches the error returned when an edit would not change
// the message, e.g. the same button pressed twice.
func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
