package arbiter

import (
	"testing"

	"github.com/rich-project/plexid/internal/cos"
	"github.com/stretchr/testify/require"
)

// TestLockContention is scenario 5: a multi-block POST holds the
// lock; a concurrent GET on a different resource/method during the
// hold is rejected.
func TestLockContention(t *testing.T) {
	a := New(1024)
	a.Register("6top/stats", func(method string, body []byte) (Response, error) {
		if method == "GET" {
			return Response{Status: StatusContent}, nil
		}
		return Response{Status: StatusChanged}, nil
	})

	resp := a.Dispatch(Request{Resource: "6top/stats", Method: "POST", MsgID: 1, Final: false, Body: []byte("block1")})
	require.Equal(t, StatusContinue, resp.Status)

	resp = a.Dispatch(Request{Resource: "6top/stats", Method: "GET", MsgID: 2, Final: true})
	require.Equal(t, StatusServiceUnavailable, resp.Status)

	resp = a.Dispatch(Request{Resource: "6top/stats", Method: "POST", MsgID: 1, Final: true, Body: []byte("block2")})
	require.Equal(t, StatusChanged, resp.Status)

	resp = a.Dispatch(Request{Resource: "6top/stats", Method: "GET", MsgID: 3, Final: true})
	require.Equal(t, StatusContent, resp.Status)
}

func TestIdempotentRetransmitOfFinalBlock(t *testing.T) {
	a := New(1024)
	calls := 0
	a.Register("6top/cellList", func(method string, body []byte) (Response, error) {
		calls++
		return Response{Status: StatusChanged, Body: []byte("ok")}, nil
	})

	req := Request{Resource: "6top/cellList", Method: "POST", MsgID: 7, Final: true, Body: []byte("payload")}
	first := a.Dispatch(req)
	second := a.Dispatch(req)

	require.Equal(t, 1, calls, "handler runs exactly once")
	require.Equal(t, first, second)
}

func TestOverflowReleasesLockAndReturnsNotImplemented(t *testing.T) {
	a := New(4)
	a.Register("6top/stats", func(method string, body []byte) (Response, error) {
		return Response{Status: StatusChanged}, nil
	})

	resp := a.Dispatch(Request{Resource: "6top/stats", Method: "POST", MsgID: 1, Final: false, Body: []byte("toolong")})
	require.Equal(t, StatusNotImplemented, resp.Status)

	// lock released: a different method may now proceed immediately
	resp = a.Dispatch(Request{Resource: "6top/stats", Method: "GET", MsgID: 2, Final: true})
	require.Equal(t, StatusChanged, resp.Status, "the resource's handler answers the GET; lock contention does not block it")
}

func TestHandlerErrorMapsToStatus(t *testing.T) {
	a := New(1024)
	a.Register("6top/slotFrame", func(method string, body []byte) (Response, error) {
		return Response{}, cos.NewErrBadRequest("malformed address")
	})

	resp := a.Dispatch(Request{Resource: "6top/slotFrame", Method: "POST", MsgID: 1, Final: true})
	require.Equal(t, StatusBadRequest, resp.Status)
}
