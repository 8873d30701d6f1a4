package conversations

import (
	"time"

	"github.com/google/uuid"
)

// Status is the conversation lifecycle state. Closed is terminal and only
// ever reached through explicit agent action.
type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
	StatusClosed  Status = "closed"
)

// FunnelType is the department pipeline a conversation is routed through.
type FunnelType string

const (
	FunnelNone     FunnelType = "none"
	FunnelSupport  FunnelType = "support"
	FunnelSales    FunnelType = "sales"
	FunnelRecovery FunnelType = "recovery"
)

// FunnelStage is an ordered step within a funnel. Stages are scoped to
// their funnel type and only advance through explicit agent action.
type FunnelStage string

const (
	StageNone FunnelStage = "none"

	StageSalesInitial     FunnelStage = "sales_initial"
	StageSalesNegotiation FunnelStage = "sales_negotiation"
	StageSalesDebate      FunnelStage = "sales_debate"
	StageSalesClosing     FunnelStage = "sales_closing"

	StageSupportInitial FunnelStage = "support_initial"
	StageSupportProcess FunnelStage = "support_process"
	StageSupportClosing FunnelStage = "support_closing"

	StageRecoveryInitial    FunnelStage = "recovery_initial"
	StageRecoveryEvaluation FunnelStage = "recovery_evaluation"
	StageRecoveryProposal   FunnelStage = "recovery_proposal"
	StageRecoveryFollowup   FunnelStage = "recovery_followup"
	StageRecoveryClosing    FunnelStage = "recovery_closing"
)

var funnelStages = map[FunnelType][]FunnelStage{
	FunnelSales:    {StageSalesInitial, StageSalesNegotiation, StageSalesDebate, StageSalesClosing},
	FunnelSupport:  {StageSupportInitial, StageSupportProcess, StageSupportClosing},
	FunnelRecovery: {StageRecoveryInitial, StageRecoveryEvaluation, StageRecoveryProposal, StageRecoveryFollowup, StageRecoveryClosing},
}

// StagesFor returns the ordered stages of a funnel, nil for FunnelNone.
func StagesFor(funnel FunnelType) []FunnelStage {
	return funnelStages[funnel]
}

// InitialStage returns the entry stage for a funnel.
func InitialStage(funnel FunnelType) FunnelStage {
	stages := funnelStages[funnel]
	if len(stages) == 0 {
		return StageNone
	}
	return stages[0]
}

// ValidStage reports whether stage belongs to funnel.
func ValidStage(funnel FunnelType, stage FunnelStage) bool {
	for _, s := range funnelStages[funnel] {
		if s == stage {
			return true
		}
	}
	return false
}

// Conversation is an ongoing exchange with one contact.
type Conversation struct {
	ID              uuid.UUID     `json:"id"`
	ContactID       uuid.UUID     `json:"contact_id"`
	Status          Status        `json:"status"`
	FunnelType      FunnelType    `json:"funnel_type"`
	FunnelStage     FunnelStage   `json:"funnel_stage"`
	AssignedAgent   string        `json:"assigned_agent,omitempty"`
	LeadID          uuid.NullUUID `json:"lead_id,omitempty"`
	IsAnswered      bool          `json:"is_answered"`
	NeedsResponse   bool          `json:"needs_response"`
	LastMessageAt   *time.Time    `json:"last_message_at,omitempty"`
	FirstResponseAt *time.Time    `json:"first_response_at,omitempty"`
	LastResponseAt  *time.Time    `json:"last_response_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SenderType distinguishes who authored a message.
type SenderType string

const (
	SenderContact SenderType = "contact"
	SenderAgent   SenderType = "agent"
)

// MessageType is the payload kind of a message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
	TypeLocation MessageType = "location"
)

// Message is a single message inside a conversation. ExternalMessageID is
// globally unique and serves as the idempotency key for webhook retries.
type Message struct {
	ID                uuid.UUID   `json:"id"`
	ConversationID    uuid.UUID   `json:"conversation_id"`
	ExternalMessageID string      `json:"external_message_id"`
	SenderType        SenderType  `json:"sender_type"`
	MessageType       MessageType `json:"message_type"`
	Content           string      `json:"content"`
	MediaURL          string      `json:"media_url,omitempty"`
	IsRead            bool        `json:"is_read"`
	CreatedAt         time.Time   `json:"created_at"`
}

// MediaFallback returns placeholder content for media messages that
// arrive without a caption.
func MediaFallback(t MessageType) string {
	switch t {
	case TypeImage:
		return "Image received"
	case TypeVideo:
		return "Video received"
	case TypeAudio:
		return "Audio received"
	case TypeDocument:
		return "Document received"
	case TypeLocation:
		return "Location shared"
	default:
		return "Message received"
	}
}
