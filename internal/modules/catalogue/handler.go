// Package catalogue implements the conversation controller for the
// university catalogue: it resolves inbound actions to a menu state, queries
// the store and renders a transport-neutral reply.
package catalogue

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/unibot-go/internal/errors"
	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/storage"
	"github.com/garyellow/unibot-go/internal/stringutil"
)

// ModuleName identifies the controller in logs and error context.
const ModuleName = "catalogue"

// Config holds presentation settings.
type Config struct {
	LocalCity       string
	Glyphs          []string // nil uses DefaultGlyphs
	ResultLimit     int
	MaxMessageRunes int
}

// Handler is the stateless conversation controller.
type Handler struct {
	store   storage.CatalogueReader
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a controller over store. m may be nil.
func NewHandler(store storage.CatalogueReader, cfg Config, log *logger.Logger, m *metrics.Metrics) *Handler {
	if len(cfg.Glyphs) == 0 {
		cfg.Glyphs = DefaultGlyphs
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 8
	}
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = 4000
	}
	return &Handler{
		store:   store,
		cfg:     cfg,
		logger:  log,
		metrics: m,
	}
}

// Name returns the module name
func (h *Handler) Name() string {
	return ModuleName
}

// Handle resolves an action and renders its reply.
// On failure the reply carries GenericErrorText and the error is returned
// for the caller to report; it is already logged here.
func (h *Handler) Handle(ctx context.Context, a Action) (Reply, error) {
	route, err := h.resolve(ctx, a)
	if err != nil {
		return h.fail(ctx, route, err)
	}

	format := FormatHTML
	if a.Plain {
		format = FormatPlain
	}
	first := DeliverySend
	if a.Kind == KindCallback {
		first = DeliveryEdit
	}

	var reply Reply
	switch route.State {
	case StateSpecialtyResults:
		reply, err = h.specialtyResults(ctx, route.Specialty, format, first)
	case StateHelp:
		reply = h.help(format, first)
	default:
		reply, err = h.mainMenu(ctx, format, first)
	}
	if err != nil {
		return h.fail(ctx, route, err)
	}
	reply.State = route.State
	return reply, nil
}

// resolve maps an action to a route. Free text needs the specialty list.
func (h *Handler) resolve(ctx context.Context, a Action) (Route, error) {
	switch a.Kind {
	case KindCommand:
		return ParseCommand(a.Payload), nil
	case KindCallback:
		return ParseCallback(a.Payload), nil
	case KindFollow:
		return Route{State: StateMainMenu}, nil
	}

	if route, ok := keywordRoute(a.Payload); ok {
		return route, nil
	}
	specialties, err := h.store.ListSpecialties(ctx)
	if err != nil {
		return Route{State: StateMainMenu}, errors.NewWrapper(ModuleName, "match_text").Wrap(err, GenericErrorText)
	}
	if name, ok := matchSpecialty(specialties, a.Payload); ok {
		return Route{State: StateSpecialtyResults, Specialty: name}, nil
	}
	return Route{State: StateMainMenu}, nil
}

func (h *Handler) mainMenu(ctx context.Context, format Format, delivery Delivery) (Reply, error) {
	var (
		specialtyCount  int
		universityCount int
		specialties     []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := h.store.CountSpecialties(gctx)
		specialtyCount = n
		return err
	})
	g.Go(func() error {
		n, err := h.store.CountUniversities(gctx)
		universityCount = n
		return err
	})
	g.Go(func() error {
		list, err := h.store.ListSpecialties(gctx)
		specialties = list
		return err
	})
	if err := g.Wait(); err != nil {
		return Reply{}, errors.NewWrapper(ModuleName, StateMainMenu.String()).Wrap(err, GenericErrorText)
	}

	return Reply{Messages: []Message{{
		Text:     renderWelcome(format, specialtyCount, universityCount, h.cfg.LocalCity),
		Format:   format,
		Keyboard: menuKeyboard(specialties, h.cfg.Glyphs),
		Delivery: delivery,
	}}}, nil
}

func (h *Handler) specialtyResults(ctx context.Context, specialty string, format Format, delivery Delivery) (Reply, error) {
	universities, err := h.store.UniversitiesFor(ctx, specialty, h.cfg.ResultLimit)
	if err != nil {
		return Reply{}, errors.NewWrapper(ModuleName, StateSpecialtyResults.String()).Wrap(err, GenericErrorText)
	}

	if len(universities) == 0 {
		return Reply{Messages: []Message{{
			Text:     renderNoMatch(specialty),
			Format:   FormatPlain,
			Keyboard: noMatchKeyboard(),
			Delivery: delivery,
		}}}, nil
	}

	text := renderResults(format, specialty, h.cfg.LocalCity, universities)
	if stringutil.RuneLen(text) <= h.cfg.MaxMessageRunes {
		return Reply{Messages: []Message{{
			Text:     text,
			Format:   format,
			Keyboard: resultsKeyboard(),
			Delivery: delivery,
		}}}, nil
	}

	// Too large for one message: cutting styled text could break markup,
	// so both chunks are plain.
	plain := renderResults(FormatPlain, specialty, h.cfg.LocalCity, universities)
	head, tail := splitText(plain, h.cfg.MaxMessageRunes)
	if h.metrics != nil {
		h.metrics.RecordSplit()
	}
	log := h.logger.WithModule(ModuleName).
		WithField("specialty", specialty).
		WithField("runes", stringutil.RuneLen(plain))
	log.InfoContext(ctx, "Results message split")

	// The reply is at most two messages; whatever does not fit the second
	// one is dropped rather than rejected by the platform.
	if stringutil.RuneLen(tail) > h.cfg.MaxMessageRunes {
		kept, dropped := splitText(tail, h.cfg.MaxMessageRunes)
		log.WithField("dropped_runes", stringutil.RuneLen(dropped)).
			WarnContext(ctx, "Results tail truncated")
		tail = kept
	}

	messages := []Message{{
		Text:     head,
		Format:   FormatPlain,
		Delivery: delivery,
	}}
	if tail != "" {
		messages = append(messages, Message{
			Text:     tail,
			Format:   FormatPlain,
			Keyboard: resultsKeyboard(),
			Delivery: DeliverySend,
		})
	} else {
		messages[0].Keyboard = resultsKeyboard()
	}
	return Reply{Messages: messages}, nil
}

func (h *Handler) help(format Format, delivery Delivery) Reply {
	return Reply{Messages: []Message{{
		Text:     renderHelp(format, h.cfg.LocalCity),
		Format:   format,
		Keyboard: helpKeyboard(),
		Delivery: delivery,
	}}}
}

// fail logs err and returns the generic error reply.
func (h *Handler) fail(ctx context.Context, route Route, err error) (Reply, error) {
	h.logger.WithModule(ModuleName).
		WithField("state", route.State.String()).
		WithField("specialty", route.Specialty).
		WithError(err).
		ErrorContext(ctx, "Catalogue request failed")

	reply := ErrorReply(errors.GetUserMessage(err, GenericErrorText))
	reply.State = route.State
	return reply, err
}

// ErrorReply is the plain message sent when an action fails.
func ErrorReply(text string) Reply {
	return Reply{Messages: []Message{{
		Text:     text,
		Format:   FormatPlain,
		Delivery: DeliverySend,
	}}}
}
