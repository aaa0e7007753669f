package catalogue

import (
	"strings"
)

// Callback tokens carried by buttons.
const (
	TokenStart       = "start"
	TokenHelp        = "help"
	TokenBackToStart = "back_to_start"

	// SpecialtyPrefix precedes the verbatim specialty name in a selection token.
	SpecialtyPrefix = "spec_"
)

// MaxTokenBytes is the largest callback token every transport accepts.
// Telegram caps inline button data at 64 bytes.
const MaxTokenBytes = 64

// MaxSpecialtyBytes bounds a specialty name, in bytes, so that its selection
// token fits MaxTokenBytes. A Cyrillic letter takes two bytes.
const MaxSpecialtyBytes = MaxTokenBytes - len(SpecialtyPrefix)

// SpecialtyFits reports whether name can be carried by a selection token.
func SpecialtyFits(name string) bool {
	return len(name) <= MaxSpecialtyBytes
}

// Kind classifies an inbound action.
type Kind int

const (
	// KindCommand is a slash command such as /start.
	KindCommand Kind = iota
	// KindCallback is a button press carrying a token.
	KindCallback
	// KindText is a free-text message.
	KindText
	// KindFollow is a platform "user added the bot" event.
	KindFollow
)

// Action is one inbound user action as seen by the controller.
type Action struct {
	Kind    Kind
	Payload string // Command name, callback token or message text
	Plain   bool   // Transport cannot render styled text
}

// State is a presentation state of the conversation menu.
type State int

const (
	StateMainMenu State = iota
	StateSpecialtyResults
	StateHelp
)

// String returns the state name used in logs and metric labels.
func (s State) String() string {
	switch s {
	case StateMainMenu:
		return "main_menu"
	case StateSpecialtyResults:
		return "specialty_results"
	case StateHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Route is a resolved destination: a state plus the specialty for results.
type Route struct {
	State     State
	Specialty string
}

// SpecialtyToken builds the selection token for a specialty.
func SpecialtyToken(name string) string {
	return SpecialtyPrefix + name
}

// ParseCallback maps a button token to a route. Unknown tokens fall back to
// the main menu.
func ParseCallback(data string) Route {
	switch {
	case data == TokenStart, data == TokenBackToStart:
		return Route{State: StateMainMenu}
	case data == TokenHelp:
		return Route{State: StateHelp}
	case strings.HasPrefix(data, SpecialtyPrefix):
		return Route{State: StateSpecialtyResults, Specialty: strings.TrimPrefix(data, SpecialtyPrefix)}
	default:
		return Route{State: StateMainMenu}
	}
}

// ParseCommand maps a command name, with or without the leading slash and
// an optional @botname suffix, to a route.
func ParseCommand(cmd string) Route {
	cmd = strings.TrimPrefix(strings.TrimSpace(cmd), "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	if strings.EqualFold(cmd, TokenHelp) {
		return Route{State: StateHelp}
	}
	return Route{State: StateMainMenu}
}
