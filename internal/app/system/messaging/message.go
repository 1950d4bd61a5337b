package messaging

// Message is an outbound message object.
type Message interface {
	MessageType() string
}

// TextMessage is a plain text message.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TextMessage) MessageType() string { return "text" }

// Text builds a text message.
func Text(s string) TextMessage { return TextMessage{Type: "text", Text: s} }

// TemplateMessage wraps a buttons template.
type TemplateMessage struct {
	Type     string          `json:"type"`
	AltText  string          `json:"altText"`
	Template ButtonsTemplate `json:"template"`
}

func (TemplateMessage) MessageType() string { return "template" }

// ButtonsTemplate is a card with a title, a body text and up to four actions.
type ButtonsTemplate struct {
	Type    string   `json:"type"`
	Title   string   `json:"title,omitempty"`
	Text    string   `json:"text"`
	Actions []Action `json:"actions"`
}

// Action is a template action. Only the fields relevant to Type are set.
type Action struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Data    string `json:"data,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Initial string `json:"initial,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Buttons builds a buttons template message.
func Buttons(altText, title, text string, actions ...Action) TemplateMessage {
	return TemplateMessage{
		Type:    "template",
		AltText: altText,
		Template: ButtonsTemplate{
			Type:    "buttons",
			Title:   title,
			Text:    text,
			Actions: actions,
		},
	}
}

// DatePicker builds a datetimepicker action in date mode. The chosen date
// comes back in the postback's params.date.
func DatePicker(label, data string) Action {
	return Action{Type: "datetimepicker", Label: label, Data: data, Mode: "date"}
}
