package canonical

// Entity is the tagged-union type referenced by Subject, Agent and
// Auxiliary. It mirrors the teacher's interface-plus-concrete-types style
// (small sealed-ish interfaces with a marker method) rather than a single
// struct with optional fields for every kind.
type Entity interface {
	isEntity()
}

// UserLike is a user or bot-like actor: a real user, a webhook actor, or
// the service's own bot user.
type UserLike struct {
	ID            uint64 `json:"id"`
	Name          string `json:"name,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	Discriminator uint16 `json:"discriminator,omitempty"`
	Color         uint32 `json:"color,omitempty"`
}

func (UserLike) isEntity() {}

// Role is a guild role entity (e.g. as an auxiliary on a role-mention-only
// event, or a role-mentioned entity inside content).
type Role struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name,omitempty"`
	Color uint32 `json:"color,omitempty"`
}

func (Role) isEntity() {}

// ChannelEntity is a channel entity.
type ChannelEntity struct {
	ID   uint64 `json:"id"`
	Name string `json:"name,omitempty"`
}

func (ChannelEntity) isEntity() {}

// MessageEntity identifies a message by ID only — used as Subject for
// reaction and message-delete events.
type MessageEntity struct {
	ID uint64 `json:"id"`
}

func (MessageEntity) isEntity() {}

// EmojiEntity is a custom emoji entity, distinguished from an emoji-used-in
// content.EmojisUsed string so a (possibly deleted) custom emoji can still
// be referenced as a first-class Entity (e.g. as Subject of a
// ReactionRemoveEmoji event).
type EmojiEntity struct {
	ID   uint64 `json:"id"`
	Name string `json:"name,omitempty"`
}

func (EmojiEntity) isEntity() {}
