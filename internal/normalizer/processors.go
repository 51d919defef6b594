package normalizer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/architus/gateway-logs-pipeline/internal/canonical"
	"github.com/architus/gateway-logs-pipeline/internal/jsonpath"
	"github.com/architus/gateway-logs-pipeline/internal/rawframe"
	"github.com/architus/gateway-logs-pipeline/internal/richcontent"
)

func agentFor(authorID uint64, username string, isBot bool, webhookID uint64, botUserID uint64) *canonical.Agent {
	special := canonical.AgentDefault
	switch {
	case webhookID != 0:
		special = canonical.AgentWebhook
	case authorID == botUserID && botUserID != 0:
		special = canonical.AgentSelf
	case isBot:
		special = canonical.AgentBot
	}
	return &canonical.Agent{
		Entity:      canonical.UserLike{ID: authorID, Name: username},
		SpecialType: special,
	}
}

// ProcessMemberAdd handles a guild member join. id_params := (user_id,
// joined_at_ms), per spec.md §4.4 item 1.
func ProcessMemberAdd(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	userID, err := jsonpath.NewSource(pathUserID, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: user.id: %v", ErrFatal, err)
	}
	username, _ := jsonpath.NewSource(pathUserUsername, asString).WithDefault("").Resolve(nctx.Doc)
	discriminator, _ := jsonpath.NewSource(pathUserDiscriminator, asUint16).WithDefault(uint16(0)).Resolve(nctx.Doc)
	joinedAtStr, err := jsonpath.NewSource(pathJoinedAt, asString).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: joined_at: %v", ErrFatal, err)
	}
	joinedAt, err := time.Parse(time.RFC3339, joinedAtStr)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: parsing joined_at: %v", ErrFatal, err)
	}
	joinedAtMs := uint64(joinedAt.UnixMilli())

	return canonical.Event{
		Type:      canonical.EventMemberJoin,
		Origin:    canonical.OriginGateway,
		IDParams:  []uint64{userID, joinedAtMs},
		Timestamp: joinedAtMs,
		Subject:   canonical.UserLike{ID: userID, Name: username, Discriminator: discriminator},
		Content:   buildContent(richcontent.WriteUserMention(userID) + " joined"),
	}, nil
}

// ProcessMemberRemove handles a guild member leave (kick or voluntary —
// no audit-log lookup is made here or later in the pipeline to tell a
// ban or kick from a voluntary leave). id_params := (user_id, ingress_ts).
func ProcessMemberRemove(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	userID, err := jsonpath.NewSource(pathUserID, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: user.id: %v", ErrFatal, err)
	}
	username, _ := jsonpath.NewSource(pathUserUsername, asString).WithDefault("").Resolve(nctx.Doc)
	discriminator, _ := jsonpath.NewSource(pathUserDiscriminator, asUint16).WithDefault(uint16(0)).Resolve(nctx.Doc)

	return canonical.Event{
		Type:     canonical.EventMemberLeave,
		Origin:   canonical.OriginGateway,
		IDParams: []uint64{userID, frame.IngressTimestamp},
		Subject:  canonical.UserLike{ID: userID, Name: username, Discriminator: discriminator},
		Content:  buildContent(richcontent.WriteUserMention(userID) + " left"),
	}, nil
}

// ProcessMessageCreate handles a new message. Only Regular and Reply
// sub-kinds are admitted; other message types (system messages, e.g.
// pins/boosts) are dropped per spec.md §4.4 item 3. id_params :=
// (message_id,).
func ProcessMessageCreate(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	msgType, _ := jsonpath.NewSource(jsonpath.MustCompile("type"), asFloatAsInt).WithDefault(0).Resolve(nctx.Doc)
	if msgType != 0 && msgType != 19 { // 0 = Default, 19 = Reply
		return canonical.Event{}, ErrDrop
	}

	msgID, err := jsonpath.NewSource(pathMessageID, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: id: %v", ErrFatal, err)
	}
	channelID, err := jsonpath.NewSource(pathChannelID, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: channel_id: %v", ErrFatal, err)
	}
	content, _ := jsonpath.NewSource(pathContent, asString).WithDefault("").Resolve(nctx.Doc)
	authorID, err := jsonpath.NewSource(pathAuthorID, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: author.id: %v", ErrFatal, err)
	}
	authorName, _ := jsonpath.NewSource(pathAuthorName, asString).WithDefault("").Resolve(nctx.Doc)
	isBot, _ := jsonpath.NewSource(pathAuthorBot, asBool).WithDefault(false).Resolve(nctx.Doc)
	webhookID, _ := jsonpath.NewSource(pathWebhookID, asUint64).WithDefault(0).Resolve(nctx.Doc)

	return canonical.Event{
		Type:     canonical.EventMessageSend,
		Origin:   canonical.OriginGateway,
		IDParams: []uint64{msgID},
		Channel:  &canonical.Channel{ID: channelID},
		Agent:    agentFor(authorID, authorName, isBot, webhookID, nctx.BotUserID),
		Subject:  canonical.MessageEntity{ID: msgID},
		Content:  buildContent(content),
	}, nil
}

// ProcessMessageUpdate handles a message edit. Always maps to MessageEdit
// (spec.md §3 EventType comment). id_params := (message_id, ingress_ts) —
// an edit isn't itself uniquely identified by message_id alone, since a
// message can be edited more than once.
func ProcessMessageUpdate(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	msgID, err := jsonpath.NewSource(pathMessageID, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: id: %v", ErrFatal, err)
	}
	channelID, _ := jsonpath.NewSource(pathChannelID, asUint64).WithDefault(0).Resolve(nctx.Doc)
	content, hasContent := contentOrDrop(nctx.Doc)
	if !hasContent {
		// Embed-only / metadata-only updates carry no editable text; still
		// a legitimate edit event, just with empty content.
		content = ""
	}

	event := canonical.Event{
		Type:     canonical.EventMessageEdit,
		Origin:   canonical.OriginGateway,
		IDParams: []uint64{msgID, frame.IngressTimestamp},
		Subject:  canonical.MessageEntity{ID: msgID},
		Content:  buildContent(content),
	}
	if channelID != 0 {
		event.Channel = &canonical.Channel{ID: channelID}
	}
	return event, nil
}

func contentOrDrop(doc interface{}) (string, bool) {
	v, err := jsonpath.NewSource(pathContent, asString).Resolve(doc)
	if err != nil {
		return "", false
	}
	return v, true
}

// ProcessMessageDelete handles a single message delete. id_params :=
// (message_id, ingress_ts).
func ProcessMessageDelete(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	msgID, err := jsonpath.NewSource(pathMessageID, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: id: %v", ErrFatal, err)
	}
	channelID, _ := jsonpath.NewSource(pathChannelID, asUint64).WithDefault(0).Resolve(nctx.Doc)

	event := canonical.Event{
		Type:     canonical.EventMessageDelete,
		Origin:   canonical.OriginGateway,
		IDParams: []uint64{msgID, frame.IngressTimestamp},
		Subject:  canonical.MessageEntity{ID: msgID},
	}
	if channelID != 0 {
		event.Channel = &canonical.Channel{ID: channelID}
	}
	return event, nil
}

// ProcessMessageDeleteBulk handles a bulk message delete. Fans into one
// CanonicalEvent per spec.md's data model (a bulk delete is one logical
// event, not N); id_params := (first_id, ingress_ts), with the full ID set
// retained as Auxiliary entities.
func ProcessMessageDeleteBulk(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	ids, err := jsonpath.NewSource(pathIDsBulk, asUint64Slice).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: ids: %v", ErrFatal, err)
	}
	if len(ids) == 0 {
		return canonical.Event{}, ErrDrop
	}
	channelID, _ := jsonpath.NewSource(pathChannelID, asUint64).WithDefault(0).Resolve(nctx.Doc)

	aux := make([]canonical.Entity, 0, len(ids))
	for _, id := range ids {
		aux = append(aux, canonical.MessageEntity{ID: id})
	}

	event := canonical.Event{
		Type:      canonical.EventMessageDeleteBulk,
		Origin:    canonical.OriginGateway,
		IDParams:  []uint64{ids[0], frame.IngressTimestamp},
		Subject:   canonical.MessageEntity{ID: ids[0]},
		Auxiliary: aux,
	}
	if channelID != 0 {
		event.Channel = &canonical.Channel{ID: channelID}
	}
	return event, nil
}

// ProcessInteractionCreate handles a slash-command / component invocation.
// id_params := (interaction_id,).
func ProcessInteractionCreate(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	interactionID, err := jsonpath.NewSource(pathInteractionID, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: id: %v", ErrFatal, err)
	}
	userID, err := jsonpath.NewSource(pathInteractionUser, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: member.user.id: %v", ErrFatal, err)
	}
	channelID, _ := jsonpath.NewSource(pathChannelID, asUint64).WithDefault(0).Resolve(nctx.Doc)

	event := canonical.Event{
		Type:     canonical.EventInteractionUse,
		Origin:   canonical.OriginGateway,
		IDParams: []uint64{interactionID},
		Agent:    &canonical.Agent{Entity: canonical.UserLike{ID: userID}, SpecialType: canonical.AgentDefault},
		Subject:  canonical.UserLike{ID: userID},
	}
	if channelID != 0 {
		event.Channel = &canonical.Channel{ID: channelID}
	}
	return event, nil
}

// ProcessReactionAdd handles a reaction add. id_params := (user_id,
// message_id, ingress_ts) — matches spec.md §4.4 item 1's worked example
// exactly, since a user can react with the same emoji to the same message
// more than once across its lifetime (add, remove, add again).
func ProcessReactionAdd(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	return processReaction(frame, nctx, canonical.EventReactionAdd)
}

// ProcessReactionRemove handles a single reaction removal.
func ProcessReactionRemove(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	return processReaction(frame, nctx, canonical.EventReactionRemove)
}

func processReaction(frame rawframe.Frame, nctx Context, eventType canonical.EventType) (canonical.Event, error) {
	userID, err := jsonpath.NewSource(pathUserID2, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: user_id: %v", ErrFatal, err)
	}
	msgID, err := jsonpath.NewSource(pathMsgID2, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: message_id: %v", ErrFatal, err)
	}
	channelID, _ := jsonpath.NewSource(pathChannelID, asUint64).WithDefault(0).Resolve(nctx.Doc)
	emojiID, _ := jsonpath.NewSource(pathEmojiID, asUint64).WithDefault(0).Resolve(nctx.Doc)
	emojiName, _ := jsonpath.NewSource(pathEmojiName, asString).WithDefault("").Resolve(nctx.Doc)

	event := canonical.Event{
		Type:     eventType,
		Origin:   canonical.OriginGateway,
		IDParams: []uint64{userID, msgID, frame.IngressTimestamp},
		Agent:    &canonical.Agent{Entity: canonical.UserLike{ID: userID}, SpecialType: canonical.AgentDefault},
		Subject:  canonical.MessageEntity{ID: msgID},
	}
	if channelID != 0 {
		event.Channel = &canonical.Channel{ID: channelID}
	}
	event.Content = reactionContent(emojiID, emojiName)
	if emojiID != 0 {
		event.Auxiliary = []canonical.Entity{canonical.EmojiEntity{ID: emojiID, Name: emojiName}}
	}
	return event, nil
}

// reactionContent builds the Content block for a single-emoji reaction
// event, mirroring the original's format_content: a unicode emoji (no id)
// contributes emojis_used, a custom emoji contributes custom_emojis_used
// (+ custom_emoji_names_used when the gateway still knows its name).
func reactionContent(emojiID uint64, emojiName string) *canonical.Content {
	if emojiID != 0 {
		c := &canonical.Content{
			Text:             richcontent.WriteCustomEmoji(false, emojiName, emojiID),
			CustomEmojisUsed: []uint64{emojiID},
		}
		if emojiName != "" {
			c.CustomEmojiNamesUsed = []string{emojiName}
		}
		return c
	}
	if emojiName == "" {
		return nil
	}
	return &canonical.Content{Text: emojiName, EmojisUsed: []string{emojiName}}
}

// ProcessReactionRemoveEmoji handles "all reactions of one emoji removed
// from a message". id_params := (message_id, emoji_id_or_hash, ingress_ts).
func ProcessReactionRemoveEmoji(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	msgID, err := jsonpath.NewSource(pathMsgID2, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: message_id: %v", ErrFatal, err)
	}
	channelID, _ := jsonpath.NewSource(pathChannelID, asUint64).WithDefault(0).Resolve(nctx.Doc)
	emojiID, _ := jsonpath.NewSource(pathEmojiID, asUint64).WithDefault(0).Resolve(nctx.Doc)
	emojiName, _ := jsonpath.NewSource(pathEmojiName, asString).WithDefault("").Resolve(nctx.Doc)

	emojiKey := emojiID
	if emojiKey == 0 {
		emojiKey = hashEmojiName(emojiName)
	}

	event := canonical.Event{
		Type:     canonical.EventReactionRemoveEmoji,
		Origin:   canonical.OriginGateway,
		IDParams: []uint64{msgID, emojiKey, frame.IngressTimestamp},
		Subject:  canonical.MessageEntity{ID: msgID},
		Content:  reactionContent(emojiID, emojiName),
	}
	if emojiID != 0 {
		event.Auxiliary = []canonical.Entity{canonical.EmojiEntity{ID: emojiID, Name: emojiName}}
	}
	if channelID != 0 {
		event.Channel = &canonical.Channel{ID: channelID}
	}
	return event, nil
}

// ProcessReactionRemoveAll handles "all reactions removed from a message".
// id_params := (message_id, ingress_ts).
func ProcessReactionRemoveAll(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error) {
	msgID, err := jsonpath.NewSource(pathMsgID2, asUint64).Resolve(nctx.Doc)
	if err != nil {
		return canonical.Event{}, fmt.Errorf("%w: message_id: %v", ErrFatal, err)
	}
	channelID, _ := jsonpath.NewSource(pathChannelID, asUint64).WithDefault(0).Resolve(nctx.Doc)

	event := canonical.Event{
		Type:     canonical.EventReactionRemoveAll,
		Origin:   canonical.OriginGateway,
		IDParams: []uint64{msgID, frame.IngressTimestamp},
		Subject:  canonical.MessageEntity{ID: msgID},
		Content:  &canonical.Content{Text: "all reactions removed"},
	}
	if channelID != 0 {
		event.Channel = &canonical.Channel{ID: channelID}
	}
	return event, nil
}

// hashEmojiName derives a stable fallback key for a unicode emoji (which
// has no numeric ID) so ReactionRemoveEmoji's id_params stay u64-typed.
func hashEmojiName(name string) uint64 {
	var h uint64 = 14695981039346656037 // FNV-1a offset basis
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return h
}

func asFloatAsInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err
	default:
		return 0, fmt.Errorf("normalizer: expected numeric, got %T", v)
	}
}
