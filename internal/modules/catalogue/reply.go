package catalogue

// Format selects how a message text is styled.
type Format int

const (
	// FormatHTML marks text using the Telegram HTML subset (<b>, <a>).
	FormatHTML Format = iota
	// FormatPlain marks unstyled text.
	FormatPlain
)

// Delivery tells the transport how to deliver a message.
type Delivery int

const (
	// DeliverySend posts a new message.
	DeliverySend Delivery = iota
	// DeliveryEdit replaces the message the user pressed a button on.
	DeliveryEdit
)

// Button is one navigation option: a visible label and the token sent back
// when it is pressed.
type Button struct {
	Label string
	Data  string
}

// Message is a transport-neutral outbound message.
type Message struct {
	Text     string
	Format   Format
	Keyboard [][]Button // Rows of buttons, nil when the message has none
	Delivery Delivery
}

// Reply is everything sent back for one inbound action, in delivery order.
type Reply struct {
	Messages []Message
	State    State // Presentation state that produced the reply
}

// Buttons returns the keyboard rows flattened in reading order.
func (m Message) Buttons() []Button {
	var out []Button
	for _, row := range m.Keyboard {
		out = append(out, row...)
	}
	return out
}
