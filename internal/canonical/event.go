package canonical

import "encoding/json"

// Origin records where a CanonicalEvent's data came from.
type Origin string

const (
	OriginGateway  Origin = "Gateway"
	OriginAuditLog Origin = "AuditLog"
	OriginHybrid   Origin = "Hybrid"
	OriginInternal Origin = "Internal"
)

// EventType enumerates the canonical action kinds a processor can produce.
// Distinct from the upstream gateway event_type tag in internal/rawframe,
// though each admitted gateway tag maps to exactly one EventType (e.g.
// MessageUpdate always maps to MessageEdit, MemberAdd to MemberJoin;
// MessageDelete and MessageDeleteBulk stay distinct).
type EventType string

const (
	EventMemberJoin          EventType = "MemberJoin"
	EventMemberLeave         EventType = "MemberLeave"
	EventMessageSend         EventType = "MessageSend"
	EventMessageEdit         EventType = "MessageEdit"
	EventMessageDelete       EventType = "MessageDelete"
	EventMessageDeleteBulk   EventType = "MessageDeleteBulk"
	EventInteractionUse      EventType = "InteractionUse"
	EventReactionAdd         EventType = "ReactionAdd"
	EventReactionRemove      EventType = "ReactionRemove"
	EventReactionRemoveEmoji EventType = "ReactionRemoveEmoji"
	EventReactionRemoveAll   EventType = "ReactionRemoveAll"
)

// AgentSpecialType classifies the actor attributed to an event beyond
// "it's a user".
type AgentSpecialType string

const (
	AgentDefault  AgentSpecialType = "Default"
	AgentSelf     AgentSpecialType = "Architus"
	AgentSystem   AgentSpecialType = "System"
	AgentBot      AgentSpecialType = "Bot"
	AgentWebhook  AgentSpecialType = "Webhook"
)

// Channel identifies the channel an event occurred in; Name is best-effort
// and may be absent if not resolvable at normalization time.
type Channel struct {
	ID   uint64 `json:"id"`
	Name string `json:"name,omitempty"`
}

// Agent attributes an event to its actor.
type Agent struct {
	Entity          Entity           `json:"entity"`
	SpecialType     AgentSpecialType `json:"special_type"`
	WebhookUsername string           `json:"webhook_username,omitempty"`
}

// Content is the structured rich-content extraction over any user-supplied
// text associated with the event.
type Content struct {
	Text                  string   `json:"text"`
	UsersMentioned        []uint64 `json:"users_mentioned,omitempty"`
	ChannelsMentioned     []uint64 `json:"channels_mentioned,omitempty"`
	RolesMentioned        []uint64 `json:"roles_mentioned,omitempty"`
	EmojisUsed            []string `json:"emojis_used,omitempty"`
	CustomEmojisUsed      []uint64 `json:"custom_emojis_used,omitempty"`
	CustomEmojiNamesUsed  []string `json:"custom_emoji_names_used,omitempty"`
	URLStems              []string `json:"url_stems,omitempty"`
}

// Source retains the raw JSON an event was derived from, for debugging and
// potential reprocessing. At most one of these is populated per Origin.
type Source struct {
	GatewayJSON  json.RawMessage `json:"gateway_json,omitempty"`
	AuditLogJSON json.RawMessage `json:"audit_log_json,omitempty"`
	InternalJSON json.RawMessage `json:"internal_json,omitempty"`
}

// Event is the post-normalization canonical record. Field names track
// spec.md §3 exactly.
type Event struct {
	ID           string     `json:"id"`
	IDParams     []uint64   `json:"id_params"`
	Timestamp    uint64     `json:"timestamp"`
	Origin       Origin     `json:"origin"`
	Type         EventType  `json:"type"`
	GuildID      uint64     `json:"guild_id"`
	Channel      *Channel   `json:"channel,omitempty"`
	Agent        *Agent     `json:"agent,omitempty"`
	Subject      Entity     `json:"subject,omitempty"`
	Auxiliary    []Entity   `json:"auxiliary,omitempty"`
	Content      *Content   `json:"content,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	AuditLogID   string     `json:"audit_log_id,omitempty"`
	Source       *Source    `json:"source,omitempty"`
}

// Validate checks the invariants spec.md §3 requires hold before an
// Event is handed to the batcher: GuildID is set, IDParams holds one to
// three elements populated by the owning processor, and Type is set.
func (e *Event) Validate() error {
	if e.GuildID == 0 {
		return errInvalidEvent("guild_id must be non-zero")
	}
	if len(e.IDParams) < 1 || len(e.IDParams) > 3 {
		return errInvalidEvent("id_params must have 1-3 elements")
	}
	if e.Type == "" {
		return errInvalidEvent("type must be set")
	}
	return nil
}

type invalidEventError string

func (e invalidEventError) Error() string { return "canonical: invalid event: " + string(e) }

func errInvalidEvent(msg string) error { return invalidEventError(msg) }
