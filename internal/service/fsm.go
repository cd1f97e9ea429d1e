package service

import "carmatch/internal/model"

// Event drives the conversation state machine
type Event string

const (
	// EventFollowUp: the profile is still incomplete, another question is due.
	EventFollowUp Event = "follow_up"
	// EventReady: readiness allows a recommendation.
	EventReady Event = "ready"
	// EventUserMessage: the customer reacted to a recommendation.
	EventUserMessage Event = "user_message"
	// EventExit: the customer ended the conversation.
	EventExit Event = "exit"
)

// Transition returns the next mode. It is pure; callers run side effects
// only after the new mode is known. Unknown pairs keep the current mode.
func Transition(mode model.Mode, ev Event) model.Mode {
	if ev == EventExit {
		return model.ModeClosed
	}

	switch mode {
	case model.ModeDiscovery:
		switch ev {
		case EventFollowUp:
			return model.ModeClarification
		case EventReady:
			return model.ModeRecommendation
		}
	case model.ModeClarification:
		switch ev {
		case EventFollowUp:
			return model.ModeClarification
		case EventReady:
			return model.ModeRecommendation
		}
	case model.ModeRecommendation:
		switch ev {
		case EventUserMessage:
			return model.ModeRefinement
		case EventReady:
			return model.ModeRecommendation
		}
	case model.ModeRefinement:
		switch ev {
		case EventReady:
			return model.ModeRecommendation
		case EventUserMessage:
			return model.ModeRefinement
		}
	case model.ModeClosed:
		return model.ModeClosed
	}
	return mode
}
