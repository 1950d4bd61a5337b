package webhook

import (
	"net/url"
	"strings"

	"github.com/dalemusser/mapstash/internal/app/features/period"
)

// Postback is a decoded postback action. It is one of SetStartDate,
// SetEndDate, OpenKeyboard or UnknownPostback.
type Postback interface {
	isPostback()
}

// SetStartDate sets the start of the sender's saving period.
type SetStartDate struct{ Date period.Date }

// SetEndDate sets the end of the sender's saving period.
type SetEndDate struct{ Date period.Date }

// OpenKeyboard asks the bot to acknowledge a keyboard-opening action.
type OpenKeyboard struct{}

// UnknownPostback is anything this service does not understand.
type UnknownPostback struct{ Data string }

func (SetStartDate) isPostback()    {}
func (SetEndDate) isPostback()      {}
func (OpenKeyboard) isPostback()    {}
func (UnknownPostback) isPostback() {}

// DecodePostback classifies a postback payload. The date for a set action
// comes from the picker's params, or from a date= field in the data.
func DecodePostback(p PostbackContent) Postback {
	values, err := url.ParseQuery(strings.TrimSpace(p.Data))
	if err != nil {
		return UnknownPostback{Data: p.Data}
	}

	if values.Get("inputOption") == "openKeyboard" {
		return OpenKeyboard{}
	}

	switch values.Get("action") {
	case "setStartDate", "setEndDate":
		raw := p.Params["date"]
		if raw == "" {
			raw = values.Get("date")
		}
		d, err := period.ParseDate(raw)
		if err != nil {
			return UnknownPostback{Data: p.Data}
		}
		if values.Get("action") == "setStartDate" {
			return SetStartDate{Date: d}
		}
		return SetEndDate{Date: d}
	case "openKeyboard":
		return OpenKeyboard{}
	default:
		return UnknownPostback{Data: p.Data}
	}
}
