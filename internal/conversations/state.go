package conversations

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosedConversation is returned for mutations on a closed conversation.
	ErrClosedConversation = errors.New("conversations: conversation is closed")

	// ErrInvalidStage is returned when a stage does not belong to the
	// conversation's funnel.
	ErrInvalidStage = errors.New("conversations: stage not in funnel")
)

// DefaultOverdueThreshold is how long a contact message may wait for an
// agent reply before the conversation counts as overdue.
const DefaultOverdueThreshold = 5 * time.Minute

// ApplyInbound records the state effects of a contact-authored message.
// isAnswered only drops back to false while the conversation has never
// been answered; afterwards it is sticky and needsResponse alone tracks
// the pending reply.
func (c *Conversation) ApplyInbound(now time.Time) {
	c.LastMessageAt = &now
	c.NeedsResponse = true
	if c.FirstResponseAt == nil {
		c.IsAnswered = false
	}
}

// ApplyOutbound records the state effects of an agent-authored message,
// whether sent through the platform or observed from an external client.
func (c *Conversation) ApplyOutbound(now time.Time) {
	c.LastMessageAt = &now
	c.LastResponseAt = &now
	c.IsAnswered = true
	c.NeedsResponse = false
	if c.FirstResponseAt == nil {
		c.FirstResponseAt = &now
	}
}

// SetFunnel routes the conversation into a funnel, resetting the stage to
// the funnel's entry point. Used by classification on first contact and by
// manual reclassification.
func (c *Conversation) SetFunnel(funnel FunnelType) {
	c.FunnelType = funnel
	c.FunnelStage = InitialStage(funnel)
}

// BackfillFunnel assigns the funnel only when none was meaningfully set.
// A department is auto-set once and never silently overwritten.
func (c *Conversation) BackfillFunnel(funnel FunnelType) bool {
	if c.FunnelType != "" && c.FunnelType != FunnelNone {
		return false
	}
	c.SetFunnel(funnel)
	return true
}

// AdvanceStage moves to an explicit stage inside the current funnel.
func (c *Conversation) AdvanceStage(stage FunnelStage) error {
	if c.Status == StatusClosed {
		return ErrClosedConversation
	}
	if !ValidStage(c.FunnelType, stage) {
		return fmt.Errorf("%w: %s in %s", ErrInvalidStage, stage, c.FunnelType)
	}
	c.FunnelStage = stage
	return nil
}

// Assign hands the conversation to an agent, entering the funnel matching
// the agent's role when the conversation has none yet.
func (c *Conversation) Assign(agent string, role FunnelType) error {
	if c.Status == StatusClosed {
		return ErrClosedConversation
	}
	c.AssignedAgent = agent
	if role != "" && role != FunnelNone {
		c.BackfillFunnel(role)
	}
	return nil
}

// Close terminates the conversation. Closing is explicit and final; no
// automatic path reopens or re-closes a conversation.
func (c *Conversation) Close() {
	c.Status = StatusClosed
	c.NeedsResponse = false
}

// Overdue reports whether the conversation has been waiting on an agent
// longer than threshold. lastContactMessageAt is the creation time of the
// most recent contact-authored message, zero when there is none. Overdue
// is derived state, never stored.
func (c *Conversation) Overdue(lastContactMessageAt time.Time, threshold time.Duration, now time.Time) bool {
	if !c.NeedsResponse || c.LastMessageAt == nil || lastContactMessageAt.IsZero() {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultOverdueThreshold
	}
	return lastContactMessageAt.Before(now.Add(-threshold))
}
