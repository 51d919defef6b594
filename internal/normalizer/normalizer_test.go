package normalizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/architus/gateway-logs-pipeline/internal/canonical"
	"github.com/architus/gateway-logs-pipeline/internal/idgen"
	"github.com/architus/gateway-logs-pipeline/internal/rawframe"
)

func testIDs(t *testing.T) *idgen.Deterministic {
	t.Helper()
	ids, err := idgen.NewDeterministic([]byte("test-secret"))
	require.NoError(t, err)
	return ids
}

func frameFor(eventType string, guildID uint64, inner string) rawframe.Frame {
	return rawframe.Frame{
		IngressTimestamp: 1700000000000,
		EventType:        eventType,
		GuildID:          guildID,
		Inner:            []byte(inner),
	}
}

// TestDispatch_MemberAdd covers spec.md §8 scenario (a): MemberAdd gateway
// event produces a MemberJoin CanonicalEvent with id_params =
// (user_id, joined_at_ms).
func TestDispatch_MemberAdd(t *testing.T) {
	table := NewTable()
	frame := frameFor("MemberAdd", 42, `{"user":{"id":"448546825532866560","username":"alice","discriminator":"1234"},"joined_at":"2021-03-15T12:00:00.000Z"}`)

	event, err := table.Dispatch(context.Background(), frame, Context{IDs: testIDs(t)})
	require.NoError(t, err)
	require.Equal(t, canonical.EventMemberJoin, event.Type)
	require.Equal(t, []uint64{448546825532866560, 1615809600000}, event.IDParams)
	require.Equal(t, uint64(42), event.GuildID)
	require.NotEmpty(t, event.ID)
	require.Equal(t, canonical.UserLike{ID: 448546825532866560, Name: "alice", Discriminator: 1234}, event.Subject)
	require.Equal(t, "<@448546825532866560> joined", event.Content.Text)
	require.Equal(t, []uint64{448546825532866560}, event.Content.UsersMentioned)
}

// TestDispatch_ReactionAdd covers spec.md §8 scenario (b).
func TestDispatch_ReactionAdd(t *testing.T) {
	table := NewTable()
	frame := frameFor("ReactionAdd", 7, `{"user_id":"5","message_id":"20","channel_id":"11","emoji":{"id":null,"name":"👍"}}`)

	event, err := table.Dispatch(context.Background(), frame, Context{IDs: testIDs(t)})
	require.NoError(t, err)
	require.Equal(t, canonical.EventReactionAdd, event.Type)
	require.Equal(t, []uint64{5, 20, frame.IngressTimestamp}, event.IDParams)
	require.Equal(t, uint64(11), event.Channel.ID)
	require.Equal(t, canonical.UserLike{ID: 5}, event.Agent.Entity)
	require.Equal(t, canonical.MessageEntity{ID: 20}, event.Subject)
	require.Nil(t, event.Auxiliary)
	require.Equal(t, []string{"👍"}, event.Content.EmojisUsed)
}

// TestDispatch_ReactionAddCustomEmoji covers the Auxiliary side of the
// reaction content rule: a custom emoji (non-zero id) does carry an
// EmojiEntity auxiliary, unlike the unicode case above.
func TestDispatch_ReactionAddCustomEmoji(t *testing.T) {
	table := NewTable()
	frame := frameFor("ReactionAdd", 7, `{"user_id":"5","message_id":"99","channel_id":"11","emoji":{"id":"200","name":"pog"}}`)

	event, err := table.Dispatch(context.Background(), frame, Context{IDs: testIDs(t)})
	require.NoError(t, err)
	require.Len(t, event.Auxiliary, 1)
	require.Equal(t, canonical.EmojiEntity{ID: 200, Name: "pog"}, event.Auxiliary[0])
	require.Equal(t, []uint64{200}, event.Content.CustomEmojisUsed)
	require.Equal(t, []string{"pog"}, event.Content.CustomEmojiNamesUsed)
}

// TestDispatch_MessageCreateExtractsContent covers spec.md §8 scenario (c):
// mentions/URL-stem extraction flows through into the CanonicalEvent.
func TestDispatch_MessageCreateExtractsContent(t *testing.T) {
	table := NewTable()
	frame := frameFor("MessageCreate", 1, `{"id":"500","channel_id":"9","content":"hi <@123> check https://blog.example.com/post","author":{"id":"1","username":"bob","bot":false}}`)

	event, err := table.Dispatch(context.Background(), frame, Context{IDs: testIDs(t)})
	require.NoError(t, err)
	require.Equal(t, canonical.EventMessageSend, event.Type)
	require.Contains(t, event.Content.UsersMentioned, uint64(123))
	require.Contains(t, event.Content.URLStems, "example.com")
	require.Contains(t, event.Content.URLStems, "blog.example.com")
}

// TestDispatch_MessageCreateDropsSystemMessages covers the non-Regular/
// Reply sub-kind drop rule (spec.md §4.4 item 3).
func TestDispatch_MessageCreateDropsSystemMessages(t *testing.T) {
	table := NewTable()
	frame := frameFor("MessageCreate", 1, `{"id":"500","channel_id":"9","type":7,"author":{"id":"1"}}`)

	_, err := table.Dispatch(context.Background(), frame, Context{IDs: testIDs(t)})
	require.ErrorIs(t, err, ErrDrop)
}

func TestDispatch_UnrecognizedEventType(t *testing.T) {
	table := NewTable()
	frame := frameFor("PresenceUpdate", 1, `{}`)
	_, err := table.Dispatch(context.Background(), frame, Context{IDs: testIDs(t)})
	require.ErrorIs(t, err, ErrUnrecognized)
}

func TestDispatch_MessageDeleteBulkCarriesAuxiliary(t *testing.T) {
	table := NewTable()
	frame := frameFor("MessageDeleteBulk", 1, `{"ids":["1","2","3"],"channel_id":"9"}`)
	event, err := table.Dispatch(context.Background(), frame, Context{IDs: testIDs(t)})
	require.NoError(t, err)
	require.Len(t, event.Auxiliary, 3)
	require.Equal(t, []uint64{1, frame.IngressTimestamp}, event.IDParams)
}

func TestDispatch_IdempotentIDAcrossRedelivery(t *testing.T) {
	table := NewTable()
	ids := testIDs(t)
	frame := frameFor("MemberRemove", 1, `{"user":{"id":"9","username":"x"}}`)

	e1, err := table.Dispatch(context.Background(), frame, Context{IDs: ids})
	require.NoError(t, err)
	e2, err := table.Dispatch(context.Background(), frame, Context{IDs: ids})
	require.NoError(t, err)
	require.Equal(t, e1.ID, e2.ID)
}

func TestAdmits(t *testing.T) {
	table := NewTable()
	require.True(t, table.Admits("ReactionRemoveAll"))
	require.False(t, table.Admits("PresenceUpdate"))
	require.False(t, table.Admits("GuildCreate"))
}
