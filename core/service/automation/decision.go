// Package automation holds the decision table that turns a classified
// message plus tenant policy into an action. Pure, no I/O.
package automation

import (
	"replyflow_server/core/domain"
	"replyflow_server/core/port/out"
)

// ActionKind enumerates what happens to a classified message.
type ActionKind int

const (
	ActionSuppress ActionKind = iota
	ActionRouteToHuman
	ActionAutoReply
)

func (k ActionKind) String() string {
	switch k {
	case ActionSuppress:
		return "suppress"
	case ActionRouteToHuman:
		return "route_to_human"
	case ActionAutoReply:
		return "auto_reply"
	default:
		return "unknown"
	}
}

// Action is the decision result. Draft is set only for ActionAutoReply.
type Action struct {
	Kind  ActionKind
	Draft *out.DraftInput
}

// Decide evaluates the rules in order: spam is suppressed, requires_human and
// anything the policy does not permit goes to a human, the rest gets an
// auto-reply draft built from the tenant settings.
func Decide(msg *domain.InboundMessage, category domain.IntentCategory, settings *domain.AutomationSettings) Action {
	if category == domain.CategorySpam {
		return Action{Kind: ActionSuppress}
	}
	if category == domain.CategoryRequiresHuman {
		return Action{Kind: ActionRouteToHuman}
	}
	if settings == nil || !settings.AutoReplyEnabled {
		return Action{Kind: ActionRouteToHuman}
	}
	if !settings.Allows(category) {
		return Action{Kind: ActionRouteToHuman}
	}

	return Action{
		Kind: ActionAutoReply,
		Draft: &out.DraftInput{
			Subject:     msg.Subject,
			Body:        msg.Body,
			FromName:    msg.FromName,
			Tone:        settings.Tone,
			Purpose:     settings.Purpose,
			ReplyLength: settings.ReplyLength,
		},
	}
}
