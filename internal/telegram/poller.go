// Package telegram runs the Telegram transport: it long-polls the Bot API,
// dispatches updates to a worker pool and delivers catalogue replies as
// HTML messages with inline keyboards.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/garyellow/unibot-go/internal/bot"
	"github.com/garyellow/unibot-go/internal/config"
	"github.com/garyellow/unibot-go/internal/ctxutil"
	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/modules/catalogue"
	"github.com/garyellow/unibot-go/internal/ratelimit"
)

// Transport is the transport label used in logs, metrics and context.
const Transport = "telegram"

// API is the subset of *tgbotapi.BotAPI used for delivery.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UpdateSource produces updates by long polling.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller consumes Telegram updates with a bounded worker pool.
type Poller struct {
	api       API
	source    UpdateSource
	processor *bot.Processor
	limiter   *ratelimit.Limiter // Global limiter for outbound API calls
	metrics   *metrics.Metrics
	logger    *logger.Logger
	workers   int
	username  string // bot username without "@", for group mentions

	mu      sync.Mutex
	cancel  context.CancelFunc
	polling bool
	wg      sync.WaitGroup
}

// Config holds configuration for creating a new Poller.
type Config struct {
	Token       string
	APIEndpoint string // Bot API endpoint format, empty = library default
	Workers     int
	BotConfig   *config.BotConfig
	Processor   *bot.Processor
	Metrics     *metrics.Metrics
	Logger      *logger.Logger

	// Username is the bot's username. It is read from the Bot API when the
	// client is created here; with an injected API it must be set to answer
	// free text in groups.
	Username string

	// API and Source replace the Bot API client, mainly in tests.
	API    API
	Source UpdateSource
}

// New creates a Poller. Without an injected API it connects to the Bot API,
// which validates the token.
func New(cfg Config) (*Poller, error) {
	log := cfg.Logger.WithModule("telegram")
	api, source, username := cfg.API, cfg.Source, cfg.Username
	if api == nil {
		endpoint := cfg.APIEndpoint
		if endpoint == "" {
			endpoint = tgbotapi.APIEndpoint
		}
		if err := tgbotapi.SetLogger(botLogger{log}); err != nil {
			return nil, fmt.Errorf("set telegram logger: %w", err)
		}
		botAPI, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
		if err != nil {
			return nil, fmt.Errorf("connect telegram bot api: %w", err)
		}
		log.WithField("username", botAPI.Self.UserName).Info("Telegram bot authorized")
		api, source = botAPI, botAPI
		username = botAPI.Self.UserName
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Poller{
		api:       api,
		source:    source,
		processor: cfg.Processor,
		limiter:   ratelimit.New(cfg.BotConfig.GlobalRateRPS, cfg.BotConfig.GlobalRateRPS),
		metrics:   cfg.Metrics,
		logger:    log,
		workers:   workers,
		username:  username,
	}, nil
}

// Start begins long polling and returns immediately.
func (p *Poller) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = config.TelegramPollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := p.source.GetUpdatesChan(u)
	p.mu.Lock()
	p.polling = true
	p.mu.Unlock()

	p.Serve(ctx, updates)
	p.logger.WithField("workers", p.workers).Info("Telegram polling started")
}

// Serve dispatches updates from the channel to the worker pool until the
// channel closes or Shutdown is called.
func (p *Poller) Serve(ctx context.Context, updates <-chan tgbotapi.Update) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for range p.workers {
		p.wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case update, ok := <-updates:
					if !ok {
						return
					}
					p.safeHandle(ctx, update)
				}
			}
		})
	}
}

func (p *Poller) safeHandle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).
				WithField("update_id", update.UpdateID).
				Error("Panic in update processing")
		}
	}()
	p.HandleUpdate(ctx, update)
}

// HandleUpdate processes one update synchronously.
func (p *Poller) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	in, ok := toInbound(update, p.username)
	if !ok {
		return
	}

	ctx = ctxutil.WithTransport(ctx, Transport)
	ctx = ctxutil.WithUserID(ctx, strconv.FormatInt(in.userID, 10))
	ctx = ctxutil.WithChatID(ctx, strconv.FormatInt(in.chatID, 10))
	ctx = ctxutil.WithRequestID(ctx, "tg-"+strconv.Itoa(update.UpdateID))
	// Replies in flight finish even when polling stops.
	ctx = ctxutil.PreserveTracing(ctx)

	if in.callbackID != "" {
		p.answerCallback(ctx, in.callbackID)
	}

	reply := p.processor.Process(ctx, in.action)
	p.deliver(ctx, in.chatID, in.messageID, reply)
}

// inbound is an update reduced to what the processor needs.
type inbound struct {
	chatID     int64
	userID     int64
	messageID  int // message to edit for callbacks, 0 otherwise
	callbackID string
	action     catalogue.Action
}

// toInbound reduces an update to an inbound action. In group chats free
// text is only taken when it mentions the bot; the mention is stripped.
func toInbound(update tgbotapi.Update, username string) (inbound, bool) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		in := inbound{
			callbackID: q.ID,
			action:     catalogue.Action{Kind: catalogue.KindCallback, Payload: q.Data},
		}
		if q.From != nil {
			in.userID = q.From.ID
			in.chatID = q.From.ID
		}
		if q.Message != nil && q.Message.Chat != nil {
			in.chatID = q.Message.Chat.ID
			in.messageID = q.Message.MessageID
		}
		return in, in.chatID != 0
	case update.Message != nil && update.Message.Chat != nil:
		m := update.Message
		if m.Text == "" {
			return inbound{}, false
		}
		in := inbound{chatID: m.Chat.ID}
		if m.From != nil {
			in.userID = m.From.ID
		}
		if m.IsCommand() {
			in.action = catalogue.Action{Kind: catalogue.KindCommand, Payload: m.Command()}
			return in, true
		}
		text := m.Text
		if !m.Chat.IsPrivate() {
			var mentioned bool
			if text, mentioned = stripMention(text, username); !mentioned {
				return inbound{}, false
			}
		}
		in.action = catalogue.Action{Kind: catalogue.KindText, Payload: text}
		return in, true
	default:
		return inbound{}, false
	}
}

// stripMention removes every "@username" from text, ignoring case.
// It reports whether a mention was found.
func stripMention(text, username string) (string, bool) {
	if username == "" {
		return text, false
	}
	mention := "@" + username

	var (
		b     strings.Builder
		found bool
	)
	for i := 0; i < len(text); {
		if end := i + len(mention); end <= len(text) && strings.EqualFold(text[i:end], mention) {
			found = true
			i = end
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	if !found {
		return text, false
	}
	return strings.TrimSpace(b.String()), true
}

// Shutdown stops polling and waits for in-flight updates.
// It returns an error if the context is canceled before completion.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.polling {
		p.source.StopReceivingUpdates()
		p.polling = false
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// botLogger routes library logs through the application logger.
type botLogger struct {
	log *logger.Logger
}

func (l botLogger) Println(v ...any) {
	l.log.Debug(fmt.Sprint(v...))
}

func (l botLogger) Printf(format string, v ...any) {
	l.log.Debugf(format, v...)
}
