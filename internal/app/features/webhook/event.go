package webhook

import (
	"encoding/json"
	"time"
)

// Payload is the webhook request body. Events are decoded one at a time so
// a single malformed event does not reject the batch.
type Payload struct {
	Destination string            `json:"destination"`
	Events      []json.RawMessage `json:"events"`
}

// Event is one platform event. Only the fields this service reads are
// declared.
type Event struct {
	Type            string          `json:"type" validate:"required"`
	WebhookEventID  string          `json:"webhookEventId"`
	Mode            string          `json:"mode"`
	Timestamp       int64           `json:"timestamp" validate:"gte=0"`
	ReplyToken      string          `json:"replyToken"`
	Source          Source          `json:"source"`
	DeliveryContext DeliveryContext `json:"deliveryContext"`

	Message  *MessageContent  `json:"message,omitempty" validate:"required_if=Type message"`
	Postback *PostbackContent `json:"postback,omitempty" validate:"required_if=Type postback"`
	Joined   *Joined          `json:"joined,omitempty" validate:"required_if=Type memberJoined"`
}

// Time is the event's server timestamp.
func (e Event) Time() time.Time { return time.UnixMilli(e.Timestamp) }

// Source identifies who sent the event.
type Source struct {
	Type    string `json:"type" validate:"required,oneof=user group room"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId" validate:"required_if=Type group"`
	RoomID  string `json:"roomId"`
}

// DeliveryContext tells whether the platform is resending an event.
type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// MessageContent is the message of a message event.
type MessageContent struct {
	ID   string `json:"id"`
	Type string `json:"type" validate:"required"`
	Text string `json:"text"`
}

// PostbackContent is the payload of a postback event. Params carries the
// value picked in a datetimepicker action.
type PostbackContent struct {
	Data   string            `json:"data"`
	Params map[string]string `json:"params,omitempty"`
}

// Joined lists the members of a memberJoined event.
type Joined struct {
	Members []Member `json:"members" validate:"dive"`
}

// Member is a joined member.
type Member struct {
	Type   string `json:"type" validate:"required"`
	UserID string `json:"userId" validate:"required_if=Type user"`
}
