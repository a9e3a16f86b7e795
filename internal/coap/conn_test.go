package coap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServeRespondsToRequest(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer serverConn.Close()

	srv := NewServer(serverConn, func(req Message) Message {
		require.Equal(t, "6top/slotFrame", req.Resource)
		return Message{Code: 0, Status: statusContent, Payload: []byte(`[]`)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer clientConn.Close()

	req := Message{Type: TypeConfirmable, Code: CodeGET, MsgID: 1, Token: []byte{1}, Resource: "6top/slotFrame"}
	b, err := Encode(req)
	require.NoError(t, err)

	_, err = clientConn.WriteTo(b, serverConn.LocalAddr())
	require.NoError(t, err)

	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, maxPDU)
	n, _, err := clientConn.ReadFrom(buf)
	require.NoError(t, err)

	resp, err := Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, TypeAck, resp.Type)
	require.Equal(t, req.MsgID, resp.MsgID)
	require.Equal(t, []byte(`[]`), resp.Payload)
}

func TestNotifyDeliversToSubscriber(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer serverConn.Close()

	srv := NewServer(serverConn, func(req Message) Message {
		return Message{Status: statusContent, Payload: []byte(`{}`)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer clientConn.Close()

	obs := uint32(0)
	req := Message{Type: TypeConfirmable, Code: CodeGET, MsgID: 1, Token: []byte{9}, Resource: "rpl/dag", Observe: &obs}
	b, err := Encode(req)
	require.NoError(t, err)
	_, err = clientConn.WriteTo(b, serverConn.LocalAddr())
	require.NoError(t, err)

	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, maxPDU)
	n, _, err := clientConn.ReadFrom(buf)
	require.NoError(t, err)
	_, err = Decode(buf[:n])
	require.NoError(t, err)

	srv.Notify("rpl/dag", []byte(`{"parent":"0:0:0:0:0:0:0:1"}`))

	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, addr, err := clientConn.ReadFrom(buf)
	require.NoError(t, err)
	notif, err := Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, TypeConfirmable, notif.Type)
	require.Equal(t, []byte(`{"parent":"0:0:0:0:0:0:0:1"}`), notif.Payload)
	require.NotNil(t, notif.Observe)
	require.Equal(t, uint32(1), *notif.Observe)

	ack := Message{Type: TypeAck, MsgID: notif.MsgID, Token: notif.Token}
	ackBytes, err := Encode(ack)
	require.NoError(t, err)
	_, err = clientConn.WriteTo(ackBytes, addr)
	require.NoError(t, err)
}
