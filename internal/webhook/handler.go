// Package webhook receives LINE webhook callbacks, maps events to catalogue
// actions and replies with text messages carrying quick-reply buttons.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/unibot-go/internal/bot"
	"github.com/garyellow/unibot-go/internal/config"
	"github.com/garyellow/unibot-go/internal/ctxutil"
	"github.com/garyellow/unibot-go/internal/lineutil"
	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/modules/catalogue"
	"github.com/garyellow/unibot-go/internal/ratelimit"
)

// Transport is the transport label used in logs, metrics and context.
const Transport = "line"

// loadingSeconds is the LINE maximum, matching config.WebhookProcessing.
const loadingSeconds int32 = 60

// Handler handles LINE webhook events
type Handler struct {
	channelSecret string
	client        Client
	metrics       *metrics.Metrics
	logger        *logger.Logger
	processor     *bot.Processor
	rateLimiter   *ratelimit.Limiter // Global limiter for outbound API calls
	wg            sync.WaitGroup

	// LINE API constraints (from config.BotConfig)
	maxMessagesPerReply int
	maxEventsPerWebhook int
	minReplyTokenLength int
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret string
	ChannelToken  string
	Client        Client // nil = Messaging API client for ChannelToken
	BotConfig     *config.BotConfig
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Processor     *bot.Processor
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	client := cfg.Client
	if client == nil {
		var err error
		if client, err = NewClient(cfg.ChannelToken); err != nil {
			return nil, err
		}
	}

	return &Handler{
		channelSecret:       cfg.ChannelSecret,
		client:              client,
		metrics:             cfg.Metrics,
		logger:              cfg.Logger.WithModule("webhook"),
		processor:           cfg.Processor,
		rateLimiter:         ratelimit.New(cfg.BotConfig.GlobalRateRPS, cfg.BotConfig.GlobalRateRPS),
		maxMessagesPerReply: cfg.BotConfig.MaxMessagesPerReply,
		maxEventsPerWebhook: cfg.BotConfig.MaxEventsPerWebhook,
		minReplyTokenLength: cfg.BotConfig.MinReplyTokenLength,
	}, nil
}

// Handle is the Gin handler for the webhook endpoint
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			h.metrics.RecordHTTPError("invalid_signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			h.metrics.RecordHTTPError("parse_error")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE expects 200 before the reply is built.
	c.Status(http.StatusOK)

	if len(cb.Events) > h.maxEventsPerWebhook {
		h.logger.WithField("event_count", len(cb.Events)).
			WithField("limit", h.maxEventsPerWebhook).
			Warn("Too many events in webhook batch; truncating")
		cb.Events = cb.Events[:h.maxEventsPerWebhook]
	}

	// The request body is gone once the response completes.
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async event processing")
			}
		}()

		for _, event := range events {
			h.processEvent(context.Background(), event)
		}
	})
}

// inbound is an event reduced to what the processor needs.
type inbound struct {
	eventType    string
	eventID      string
	replyToken   string
	source       webhook.SourceInterface
	action       catalogue.Action
	isRedelivery bool
}

// processEvent handles a single webhook event.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface) {
	start := time.Now()

	in, ok := toInbound(event)
	if !ok {
		h.logger.WithField("event_type", fmt.Sprintf("%T", event)).Debug("Unsupported event type")
		return
	}

	ctx = ctxutil.WithTransport(ctx, Transport)
	ctx = ctxutil.WithUserID(ctx, userID(in.source))
	ctx = ctxutil.WithChatID(ctx, chatID(in.source))
	log := h.logger.WithField("event_type", in.eventType)
	if in.eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, in.eventID)
		log = log.WithRequestID(in.eventID)
	}
	if in.isRedelivery {
		log = log.WithField("is_redelivery", true)
	}

	if isPersonalChat(in.source) {
		if err := h.client.ShowLoadingAnimation(chatID(in.source), loadingSeconds); err != nil {
			log.WithError(err).Warn("Failed to show loading animation")
		}
	}

	reply := h.processor.Process(ctx, in.action)
	messages := lineutil.BuildReply(reply)
	if len(messages) == 0 {
		return
	}
	if len(messages) > h.maxMessagesPerReply {
		log.WithField("message_count", len(messages)).
			WithField("limit", h.maxMessagesPerReply).
			Warn("Message count exceeds limit; truncating")
		messages = messages[:h.maxMessagesPerReply]
	}

	if len(in.replyToken) < h.minReplyTokenLength {
		log.WithField("token_length", len(in.replyToken)).Debug("Invalid reply token, skipping reply")
		return
	}

	if !h.rateLimiter.Allow() {
		log.Warn("Global rate limit exceeded; waiting")
		h.metrics.RecordRateLimiterDrop("global")
		if err := h.rateLimiter.Wait(ctx); err != nil {
			return
		}
	}

	if err := h.client.ReplyMessage(in.replyToken, messages); err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Invalid reply token") {
			log.WithError(err).Debug("Reply token already used or invalid")
		} else {
			log.WithError(err).ErrorContext(ctx, "Failed to send reply")
		}
		h.metrics.RecordHTTPError("reply_error")
		return
	}

	log.WithField("state", reply.State.String()).
		WithField("message_count", len(messages)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Event processed")
}

// toInbound maps supported events to catalogue actions. Group and room
// text is answered only when the bot is mentioned.
func toInbound(event webhook.EventInterface) (inbound, bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		text, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			return inbound{}, false
		}
		payload := text.Text
		if !isPersonalChat(e.Source) {
			if !isBotMentioned(text) {
				return inbound{}, false
			}
			payload = removeBotMentions(text.Text, text.Mention)
		}
		return inbound{
			eventType:    "message",
			eventID:      e.WebhookEventId,
			replyToken:   e.ReplyToken,
			source:       e.Source,
			action:       catalogue.Action{Kind: catalogue.KindText, Payload: payload, Plain: true},
			isRedelivery: redelivered(e.DeliveryContext),
		}, true
	case webhook.PostbackEvent:
		var data string
		if e.Postback != nil {
			data = e.Postback.Data
		}
		return inbound{
			eventType:    "postback",
			eventID:      e.WebhookEventId,
			replyToken:   e.ReplyToken,
			source:       e.Source,
			action:       catalogue.Action{Kind: catalogue.KindCallback, Payload: data, Plain: true},
			isRedelivery: redelivered(e.DeliveryContext),
		}, true
	case webhook.FollowEvent:
		return inbound{
			eventType:    "follow",
			eventID:      e.WebhookEventId,
			replyToken:   e.ReplyToken,
			source:       e.Source,
			action:       catalogue.Action{Kind: catalogue.KindFollow, Plain: true},
			isRedelivery: redelivered(e.DeliveryContext),
		}, true
	default:
		return inbound{}, false
	}
}

func redelivered(dc *webhook.DeliveryContext) bool {
	return dc != nil && dc.IsRedelivery
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
