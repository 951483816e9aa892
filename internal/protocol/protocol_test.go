package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Join(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"join","name":"Alice","avatar":"🙂"}`))
	require.NoError(t, err)
	join, ok := msg.(Join)
	require.True(t, ok)
	assert.Equal(t, "Alice", join.Name)
	assert.Equal(t, "🙂", join.Avatar)
}

func TestDecode_JoinWithoutAvatar(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"join","name":"Bob"}`))
	require.NoError(t, err)
	assert.Equal(t, Join{Name: "Bob"}, msg)
}

func TestDecode_JoinMissingName(t *testing.T) {
	_, err := Decode([]byte(`{"type":"join","avatar":"x"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_Move(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"move","x":1.5,"z":-2}`))
	require.NoError(t, err)
	assert.Equal(t, Move{X: 1.5, Z: -2}, msg)
}

func TestDecode_MoveZeroIsValid(t *testing.T) {
	// An explicit 0 must not be confused with an absent field.
	msg, err := Decode([]byte(`{"type":"move","x":0,"z":0}`))
	require.NoError(t, err)
	assert.Equal(t, Move{X: 0, Z: 0}, msg)
}

func TestDecode_MoveMissingAxis(t *testing.T) {
	_, err := Decode([]byte(`{"type":"move","x":3}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_MoveWrongType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"move","x":"east","z":1}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_ChatPublic(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"chat","text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, Chat{Text: "hello"}, msg)
}

func TestDecode_ChatTargeted(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"chat","text":"psst","targetId":"npc_3"}`))
	require.NoError(t, err)
	assert.Equal(t, Chat{Text: "psst", TargetID: "npc_3"}, msg)
}

func TestDecode_ChatEmptyText(t *testing.T) {
	_, err := Decode([]byte(`{"type":"chat","text":""}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_Report(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"report","reportedId":"npc_1"}`))
	require.NoError(t, err)
	assert.Equal(t, Report{ReportedID: "npc_1"}, msg)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport","x":1}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode([]byte(`not json at all`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_ChatEvent(t *testing.T) {
	frame := Encode(ChatEvent{
		Type:     TypeChat,
		SenderID: "p1",
		Name:     "Alice",
		Text:     "hi",
		Private:  true,
		TargetID: "p2",
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, "chat", decoded["type"])
	assert.Equal(t, true, decoded["private"])
	assert.Equal(t, "p2", decoded["targetId"])
}

func TestEncode_OmitsEmptyTarget(t *testing.T) {
	frame := Encode(ChatEvent{Type: TypeChat, SenderID: "p1", Name: "A", Text: "x"})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frame, &decoded))
	_, present := decoded["targetId"]
	assert.False(t, present, "public chat must omit targetId")
}
