package rawframe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{
		IngressTimestamp: 1700000000123,
		EventType:        "MessageCreate",
		GuildID:          100,
		Inner:            []byte(`{"content":"hello"}`),
	}

	encoded, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, f, decoded)
}

func TestEncode_RejectsZeroGuildID(t *testing.T) {
	_, err := Encode(Frame{EventType: "MessageCreate", GuildID: 0})
	require.Error(t, err)
}

func TestEncode_RejectsEmptyEventType(t *testing.T) {
	_, err := Encode(Frame{EventType: "", GuildID: 1})
	require.Error(t, err)
}

func TestDecode_TruncatedEnvelope(t *testing.T) {
	f := Frame{IngressTimestamp: 1, EventType: "MemberAdd", GuildID: 1, Inner: []byte("{}")}
	encoded, err := Encode(f)
	require.NoError(t, err)

	_, err = Decode(encoded[:len(encoded)-3])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_EmptyInput(t *testing.T) {
	_, err := Decode(nil)
	require.ErrorIs(t, err, ErrTruncated)
}
