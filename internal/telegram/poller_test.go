package telegram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/unibot-go/internal/bot"
	"github.com/garyellow/unibot-go/internal/config"
	"github.com/garyellow/unibot-go/internal/ctxutil"
	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/modules/catalogue"
)

// fakeAPI records every Chattable instead of calling the Bot API.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	editErr  error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.editErr != nil {
		return tgbotapi.Message{}, f.editErr
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// scriptedHandler returns the same reply for every action, marking the
// first message as an edit for callbacks like the catalogue controller does.
type scriptedHandler struct {
	mu      sync.Mutex
	reply   catalogue.Reply
	actions []catalogue.Action
	users   []string
}

func (s *scriptedHandler) Name() string { return "scripted" }

func (s *scriptedHandler) Handle(ctx context.Context, a catalogue.Action) (catalogue.Reply, error) {
	s.mu.Lock()
	s.actions = append(s.actions, a)
	s.users = append(s.users, ctxutil.GetUserID(ctx))
	s.mu.Unlock()

	reply := catalogue.Reply{State: s.reply.State, Messages: append([]catalogue.Message(nil), s.reply.Messages...)}
	if a.Kind == catalogue.KindCallback && len(reply.Messages) > 0 {
		reply.Messages[0].Delivery = catalogue.DeliveryEdit
	}
	return reply, nil
}

func menuReply() catalogue.Reply {
	return catalogue.Reply{
		State: catalogue.StateMainMenu,
		Messages: []catalogue.Message{{
			Text:   "<b>Меню</b>",
			Format: catalogue.FormatHTML,
			Keyboard: [][]catalogue.Button{
				{{Label: "🩺 Медицина", Data: "spec_Медицина"}, {Label: "⚖️ Право", Data: "spec_Право"}},
				{{Label: "❓ Помощь", Data: catalogue.TokenHelp}},
			},
		}},
	}
}

func newTestPoller(t *testing.T, api *fakeAPI, h *scriptedHandler, workers int) (*Poller, *metrics.Metrics) {
	t.Helper()
	return newTestPollerWithLog(t, api, h, workers, logger.NewWithWriter("error", io.Discard))
}

func newTestPollerWithLog(t *testing.T, api *fakeAPI, h *scriptedHandler, workers int, log *logger.Logger) (*Poller, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	botCfg := &config.BotConfig{WebhookTimeout: 5 * time.Second, GlobalRateRPS: 1000}

	p, err := New(Config{
		Workers:   workers,
		BotConfig: botCfg,
		Metrics:   m,
		Logger:    log,
		Username:  "unibot",
		API:       api,
		Processor: bot.NewProcessor(bot.ProcessorConfig{
			Handler:   h,
			Logger:    log,
			Metrics:   m,
			BotConfig: botCfg,
		}),
	})
	require.NoError(t, err)
	return p, m
}

func commandUpdate(id int, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: 10,
			Text:      text,
			Chat:      &tgbotapi.Chat{ID: 100},
			From:      &tgbotapi.User{ID: 42},
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
		},
	}
}

func callbackUpdate(id int, data string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			Data: data,
			From: &tgbotapi.User{ID: 42},
			Message: &tgbotapi.Message{
				MessageID: 77,
				Chat:      &tgbotapi.Chat{ID: 100},
			},
		},
	}
}

func TestHandleUpdate_Command(t *testing.T) {
	api := &fakeAPI{}
	h := &scriptedHandler{reply: menuReply()}
	p, m := newTestPoller(t, api, h, 1)

	p.HandleUpdate(context.Background(), commandUpdate(1, "/start@unibot"))

	require.Len(t, h.actions, 1)
	assert.Equal(t, catalogue.Action{Kind: catalogue.KindCommand, Payload: "start"}, h.actions[0])
	assert.Equal(t, "42", h.users[0])

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok, "expected a new message, got %T", api.sent[0])
	assert.Equal(t, int64(100), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Len(t, markup.InlineKeyboard[0], 2)
	require.NotNil(t, markup.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, catalogue.TokenHelp, *markup.InlineKeyboard[1][0].CallbackData)
	assert.Empty(t, api.requests, "commands need no callback answer")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues(Transport, "main_menu", "success")))
}

func TestHandleUpdate_FreeText(t *testing.T) {
	api := &fakeAPI{}
	h := &scriptedHandler{reply: menuReply()}
	p, _ := newTestPoller(t, api, h, 1)

	p.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: 2,
		Message:  &tgbotapi.Message{Text: "медицина", Chat: &tgbotapi.Chat{ID: 100, Type: "private"}, From: &tgbotapi.User{ID: 42}},
	})

	require.Len(t, h.actions, 1)
	assert.Equal(t, catalogue.KindText, h.actions[0].Kind)
	assert.Equal(t, "медицина", h.actions[0].Payload)
}

func TestHandleUpdate_CallbackEditsInPlace(t *testing.T) {
	api := &fakeAPI{}
	h := &scriptedHandler{reply: menuReply()}
	p, m := newTestPoller(t, api, h, 1)

	p.HandleUpdate(context.Background(), callbackUpdate(3, "spec_Медицина"))

	require.Len(t, api.requests, 1)
	answer, ok := api.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", answer.CallbackQueryID)

	require.Len(t, api.sent, 1)
	edit, ok := api.sent[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok, "expected an edit, got %T", api.sent[0])
	assert.Equal(t, 77, edit.MessageID)
	assert.Equal(t, int64(100), edit.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, edit.ParseMode)
	require.NotNil(t, edit.ReplyMarkup)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DeliveryFallbacks.WithLabelValues(Transport)))
}

func TestHandleUpdate_EditFallback(t *testing.T) {
	tests := []struct {
		name         string
		editErr      error
		wantSent     int
		wantFallback float64
	}{
		{"rejected edit is resent", errors.New("Bad Request: message to edit not found"), 2, 1},
		{"not modified is success", errors.New("Bad Request: message is not modified"), 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{editErr: tt.editErr}
			h := &scriptedHandler{reply: menuReply()}
			p, m := newTestPoller(t, api, h, 1)

			p.HandleUpdate(context.Background(), callbackUpdate(4, catalogue.TokenStart))

			require.Len(t, api.sent, tt.wantSent)
			assert.Equal(t, tt.wantFallback, testutil.ToFloat64(m.DeliveryFallbacks.WithLabelValues(Transport)))
			if tt.wantSent == 2 {
				resend, ok := api.sent[1].(tgbotapi.MessageConfig)
				require.True(t, ok)
				assert.Equal(t, "<b>Меню</b>", resend.Text)
				assert.NotNil(t, resend.ReplyMarkup)
			}
		})
	}
}

func TestHandleUpdate_SplitReply(t *testing.T) {
	api := &fakeAPI{}
	h := &scriptedHandler{reply: catalogue.Reply{
		State: catalogue.StateSpecialtyResults,
		Messages: []catalogue.Message{
			{Text: "часть 1", Format: catalogue.FormatPlain},
			{Text: "часть 2", Format: catalogue.FormatPlain, Keyboard: [][]catalogue.Button{{{Label: "🏠", Data: "start"}}}},
		},
	}}
	p, _ := newTestPoller(t, api, h, 1)

	p.HandleUpdate(context.Background(), callbackUpdate(5, "spec_Медицина"))

	require.Len(t, api.sent, 2)
	head, ok := api.sent[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Empty(t, head.ParseMode, "split chunks are unstyled")
	assert.Nil(t, head.ReplyMarkup)
	tail, ok := api.sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "часть 2", tail.Text)
	assert.NotNil(t, tail.ReplyMarkup)
}

func TestHandleUpdate_OversizedCallbackDataDropped(t *testing.T) {
	api := &fakeAPI{}
	// 5 + 2*30 bytes: over the limit although only 35 runes long.
	long := catalogue.SpecialtyToken(strings.Repeat("Ж", 30))
	require.Greater(t, len(long), MaxCallbackData)

	h := &scriptedHandler{reply: catalogue.Reply{Messages: []catalogue.Message{{
		Text: "x",
		Keyboard: [][]catalogue.Button{
			{{Label: "Ж", Data: long}, {Label: "Право", Data: "spec_Право"}},
			{{Label: "Ж", Data: long}},
			{{Label: "❓", Data: catalogue.TokenHelp}},
		},
	}}}}
	var logs bytes.Buffer
	p, m := newTestPollerWithLog(t, api, h, 1, logger.NewWithWriter("warn", &logs))

	p.HandleUpdate(context.Background(), commandUpdate(6, "/start"))

	require.Len(t, api.sent, 1)
	msg := api.sent[0].(tgbotapi.MessageConfig)
	markup := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, markup.InlineKeyboard, 2, "a row left empty is removed")
	require.Len(t, markup.InlineKeyboard[0], 1)
	assert.Equal(t, "spec_Право", *markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, catalogue.TokenHelp, *markup.InlineKeyboard[1][0].CallbackData)

	assert.Contains(t, logs.String(), "Callback data exceeds Telegram limit")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DroppedButtons.WithLabelValues(Transport)))
}

func TestHandleUpdate_GroupText(t *testing.T) {
	group := func(text string) tgbotapi.Update {
		return tgbotapi.Update{
			UpdateID: 8,
			Message: &tgbotapi.Message{
				Text: text,
				Chat: &tgbotapi.Chat{ID: -100, Type: "supergroup"},
				From: &tgbotapi.User{ID: 42},
			},
		}
	}

	t.Run("ignored without mention", func(t *testing.T) {
		api := &fakeAPI{}
		h := &scriptedHandler{reply: menuReply()}
		p, _ := newTestPoller(t, api, h, 1)

		p.HandleUpdate(context.Background(), group("кто идёт обедать?"))

		assert.Empty(t, h.actions)
		assert.Empty(t, api.sent)
	})

	t.Run("answered with mention", func(t *testing.T) {
		api := &fakeAPI{}
		h := &scriptedHandler{reply: menuReply()}
		p, _ := newTestPoller(t, api, h, 1)

		p.HandleUpdate(context.Background(), group("@UniBot медицина"))

		require.Len(t, h.actions, 1)
		assert.Equal(t, catalogue.Action{Kind: catalogue.KindText, Payload: "медицина"}, h.actions[0])
		assert.Len(t, api.sent, 1)
	})

	t.Run("commands need no mention", func(t *testing.T) {
		api := &fakeAPI{}
		h := &scriptedHandler{reply: menuReply()}
		p, _ := newTestPoller(t, api, h, 1)

		update := commandUpdate(9, "/start")
		update.Message.Chat = &tgbotapi.Chat{ID: -100, Type: "group"}
		p.HandleUpdate(context.Background(), update)

		require.Len(t, h.actions, 1)
		assert.Equal(t, catalogue.KindCommand, h.actions[0].Kind)
	})
}

func TestStripMention(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		username string
		want     string
		found    bool
	}{
		{"leading", "@unibot право", "unibot", "право", true},
		{"trailing mixed case", "право @UNIBOT", "unibot", "право", true},
		{"repeated", "@unibot право @unibot", "unibot", "право", true},
		{"other bot", "@otherbot право", "unibot", "@otherbot право", false},
		{"no username", "@unibot право", "", "@unibot право", false},
		{"no mention", "право", "unibot", "право", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := stripMention(tt.text, tt.username)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToInbound_Ignored(t *testing.T) {
	tests := []struct {
		name   string
		update tgbotapi.Update
	}{
		{"empty update", tgbotapi.Update{}},
		{"sticker message", tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Sticker: &tgbotapi.Sticker{}}}},
		{"message without chat", tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi"}}},
		{"callback without origin", tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "x", Data: "start"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := toInbound(tt.update, "unibot")
			assert.False(t, ok)
		})
	}
}

func TestServe_WorkerPool(t *testing.T) {
	api := &fakeAPI{}
	h := &scriptedHandler{reply: menuReply()}
	p, _ := newTestPoller(t, api, h, 4)

	updates := make(chan tgbotapi.Update)
	p.Serve(context.Background(), updates)
	for i := range 20 {
		updates <- commandUpdate(i, "/help")
	}
	close(updates)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 20, api.sentCount())
}

func TestShutdown_StopsIdleWorkers(t *testing.T) {
	p, _ := newTestPoller(t, &fakeAPI{}, &scriptedHandler{}, 3)

	p.Serve(context.Background(), make(chan tgbotapi.Update))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	// Shutdown is idempotent
	require.NoError(t, p.Shutdown(ctx))
}

// fakeSource hands out a channel and closes it when polling stops.
type fakeSource struct {
	ch      chan tgbotapi.Update
	stopped bool
}

func (s *fakeSource) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return s.ch
}

func (s *fakeSource) StopReceivingUpdates() {
	s.stopped = true
	close(s.ch)
}

func TestStart_UsesSource(t *testing.T) {
	api := &fakeAPI{}
	h := &scriptedHandler{reply: menuReply()}
	p, _ := newTestPoller(t, api, h, 2)
	src := &fakeSource{ch: make(chan tgbotapi.Update)}
	p.source = src

	p.Start(context.Background())
	src.ch <- callbackUpdate(9, catalogue.TokenHelp)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, src.stopped)
	assert.Equal(t, 1, api.sentCount())
}
