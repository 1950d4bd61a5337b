package webhook

import (
	"fmt"

	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
)

const (
	notPlaceText        = "That link doesn't point to a place on Google Maps."
	placeNotFoundText   = "Couldn't find that place on Google Maps."
	saveFailedText      = "Something went wrong while saving the link. Please try again later."
	postbackFailedText  = "Something went wrong while handling that action. Please try again."
	unknownPostbackText = "Unknown action."
	openKeyboardText    = "Opening the keyboard."
)

// savedText confirms a stored link.
func savedText(l models.Link) string {
	if l.Address == "" {
		return fmt.Sprintf("Saved %s.", l.Name)
	}
	return fmt.Sprintf("Saved %s (%s).", l.Name, l.Address)
}

// saveErrorText picks the reply for a failed save.
func saveErrorText(err error) string {
	switch failures.KindOf(err) {
	case failures.KindInvalidInput:
		return notPlaceText
	case failures.KindPlaceNotFound:
		return placeNotFoundText
	case failures.KindUpstream:
		msg := failures.UpstreamMessage(err)
		if msg == "" {
			msg = "the places service did not respond"
		}
		return "An error occurred: " + msg
	default:
		return saveFailedText
	}
}

func followText(command string) string {
	return fmt.Sprintf("Thanks for adding me! Send a Google Maps link and I'll save the place. Send %q to choose which days links are saved.", command)
}

func botJoinedText() string {
	return "Thanks for inviting me! Share a Google Maps link here and I'll save the place for everyone in the group."
}

func memberWelcomeText(saved int64) string {
	switch saved {
	case 0:
		return "Welcome! Share a Google Maps link here and I'll save the place for the group."
	case 1:
		return "Welcome! This group has 1 saved place, and you can see it now."
	default:
		return fmt.Sprintf("Welcome! This group has %d saved places, and you can see them now.", saved)
	}
}
