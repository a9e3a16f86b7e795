package coap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	obs := uint32(7)
	block := BlockOption{Num: 2, More: true, SizeExp: 4}
	m := Message{
		Type: TypeConfirmable, Code: CodePOST, MsgID: 1234,
		Token: []byte{0xAB, 0xCD}, Resource: "6top/stats",
		Block1: &block, Observe: &obs, Payload: []byte(`{"metric":"rssi"}`),
	}

	b, err := Encode(m)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)

	require.Equal(t, m.Type, got.Type)
	require.Equal(t, m.Code, got.Code)
	require.Equal(t, m.MsgID, got.MsgID)
	require.Equal(t, m.Token, got.Token)
	require.Equal(t, m.Resource, got.Resource)
	require.Equal(t, *m.Block1, *got.Block1)
	require.Nil(t, got.Block2)
	require.Equal(t, *m.Observe, *got.Observe)
	require.Equal(t, m.Payload, got.Payload)
}

func TestMessageRoundTripNoOptionals(t *testing.T) {
	m := Message{Type: TypeNonConfirmable, Code: CodeGET, MsgID: 1, Resource: "6top/slotFrame"}
	b, err := Encode(m)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	require.Nil(t, got.Block1)
	require.Nil(t, got.Block2)
	require.Nil(t, got.Observe)
	require.Empty(t, got.Payload)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, err := Decode([]byte{0, 0})
	require.Error(t, err)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Message{Payload: make([]byte, maxPDU+1)})
	require.Error(t, err)
}
