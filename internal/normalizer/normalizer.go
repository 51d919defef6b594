// Package normalizer implements the Event Normalizer (spec.md §4.4): a
// dispatch table of per-event-type processors, each a pure-ish function
// translating one admitted RawFrame into a CanonicalEvent. Grounded on the
// teacher's handler-registry style (a map of string tag to handler func,
// as in internal/websocket's message-type switch), generalized here into
// an explicit registerable table instead of a type switch, since the
// admission list (spec.md §6) is itself data, not code.
package normalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/architus/gateway-logs-pipeline/internal/auditlog"
	"github.com/architus/gateway-logs-pipeline/internal/canonical"
	"github.com/architus/gateway-logs-pipeline/internal/idgen"
	"github.com/architus/gateway-logs-pipeline/internal/rawframe"
	"github.com/architus/gateway-logs-pipeline/internal/richcontent"
)

// ErrDrop signals a known-ignorable sub-kind: ack and discard, never an
// error surfaced to the caller.
var ErrDrop = errors.New("normalizer: drop")

// ErrFatal signals a schema violation: reject without requeue.
var ErrFatal = errors.New("normalizer: fatal")

// ErrTransient signals a retryable failure (e.g. audit-log temporarily
// unavailable): reject with requeue.
var ErrTransient = errors.New("normalizer: transient")

// Context is the shared, read-only environment a Processor runs with.
type Context struct {
	Doc       interface{} // inner, decoded once via jsonpath.Decode
	Logger    *slog.Logger
	BotUserID uint64
	AuditLog  *auditlog.Searcher
	IDs       *idgen.Deterministic
}

// Processor maps one admitted RawFrame to a CanonicalEvent.
type Processor func(ctx context.Context, frame rawframe.Frame, nctx Context) (canonical.Event, error)

// Table is the dispatch table: upstream event_type tag -> Processor.
type Table struct {
	processors map[string]Processor
}

// NewTable builds the dispatch table with the fixed admission list
// (spec.md §6): only these eleven upstream tags are registered, so
// Dispatch rejects any other event_type with ErrUnrecognized without a
// per-caller allow-list check.
func NewTable() *Table {
	t := &Table{processors: make(map[string]Processor, 11)}
	t.processors["MemberAdd"] = ProcessMemberAdd
	t.processors["MemberRemove"] = ProcessMemberRemove
	t.processors["MessageCreate"] = ProcessMessageCreate
	t.processors["MessageUpdate"] = ProcessMessageUpdate
	t.processors["MessageDelete"] = ProcessMessageDelete
	t.processors["MessageDeleteBulk"] = ProcessMessageDeleteBulk
	t.processors["InteractionCreate"] = ProcessInteractionCreate
	t.processors["ReactionAdd"] = ProcessReactionAdd
	t.processors["ReactionRemove"] = ProcessReactionRemove
	t.processors["ReactionRemoveEmoji"] = ProcessReactionRemoveEmoji
	t.processors["ReactionRemoveAll"] = ProcessReactionRemoveAll
	return t
}

// Admits reports whether a given upstream event_type tag is in the
// dispatch table — used by the Gateway Ingress's static allow-list check.
func (t *Table) Admits(eventType string) bool {
	_, ok := t.processors[eventType]
	return ok
}

// ErrUnrecognized is returned by Dispatch for an event_type with no
// registered processor — the ingress's allow-list should have filtered
// these out already, so reaching this is itself noteworthy.
var ErrUnrecognized = errors.New("normalizer: unrecognized event_type")

// Dispatch decodes frame.Inner, looks up the processor for
// frame.EventType, and runs it. A panic inside the processor is recovered
// and returned as an ErrTransient error, so the consumer leaves the frame
// unacked for redelivery.
func (t *Table) Dispatch(ctx context.Context, frame rawframe.Frame, nctx Context) (event canonical.Event, err error) {
	proc, ok := t.processors[frame.EventType]
	if !ok {
		return canonical.Event{}, fmt.Errorf("%w: %q", ErrUnrecognized, frame.EventType)
	}

	if nctx.Doc == nil {
		var v interface{}
		if err := json.Unmarshal(frame.Inner, &v); err != nil {
			return canonical.Event{}, fmt.Errorf("%w: decoding inner: %v", ErrFatal, err)
		}
		nctx.Doc = v
	}

	defer func() {
		if r := recover(); r != nil {
			event, err = canonical.Event{}, fmt.Errorf("%w: processor panic: %v", ErrTransient, r)
		}
	}()

	event, err = proc(ctx, frame, nctx)
	if err != nil {
		return canonical.Event{}, err
	}

	event.GuildID = frame.GuildID
	event.Source = &canonical.Source{GatewayJSON: json.RawMessage(frame.Inner)}
	if event.ID == "" {
		event.ID = nctx.IDs.EventID(string(event.Type), event.IDParams)
	}
	if event.Timestamp == 0 {
		event.Timestamp = frame.IngressTimestamp
	}
	if err := event.Validate(); err != nil {
		return canonical.Event{}, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return event, nil
}

// buildContent runs the Rich-Content Analyzer over a text field and
// translates its extraction into canonical.Content.
func buildContent(text string) *canonical.Content {
	ext := richcontent.Extract(text)
	return &canonical.Content{
		Text:                 text,
		UsersMentioned:       ext.UsersMentioned,
		ChannelsMentioned:    ext.ChannelsMentioned,
		RolesMentioned:       ext.RolesMentioned,
		EmojisUsed:           ext.EmojisUsed,
		CustomEmojisUsed:     ext.CustomEmojisUsed,
		CustomEmojiNamesUsed: ext.CustomEmojiNamesUsed,
		URLStems:             ext.URLStems,
	}
}
