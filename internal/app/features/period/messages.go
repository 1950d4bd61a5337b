package period

import (
	"fmt"

	"github.com/dalemusser/mapstash/internal/app/system/messaging"
)

// Postback data carried by the prompt's date pickers.
const (
	SetStartData = "action=setStartDate"
	SetEndData   = "action=setEndDate"
)

// Prompt is the template message offering start and end date pickers.
func Prompt() messaging.TemplateMessage {
	return messaging.Buttons(
		"Set saving period",
		"Saving period",
		"Choose the first and last day links should be saved.",
		messaging.DatePicker("Start date", SetStartData),
		messaging.DatePicker("End date", SetEndData),
	)
}

// StatusText describes p after an update and asks for a missing bound.
func StatusText(p Period) string {
	switch {
	case p.Start != nil && p.End != nil:
		return fmt.Sprintf("Saving period set: %s to %s.", p.Start, p.End)
	case p.Start != nil:
		return fmt.Sprintf("Start date set to %s. Please choose an end date too.", p.Start)
	case p.End != nil:
		return fmt.Sprintf("End date set to %s. Please choose a start date too.", p.End)
	default:
		return "No saving period is set."
	}
}

// InvalidText is the reply when the chosen bounds are out of order.
const InvalidText = "The start date must be on or before the end date. Please try again."

// RejectedText is the reply when a link arrives outside the user's period.
const RejectedText = "Links shared outside your saving period are not saved."
