package service

import (
	"testing"

	"github.com/rich-project/plexid/internal/coap"
	"github.com/rich-project/plexid/internal/config"
	"github.com/stretchr/testify/require"
)

func TestSplitResourceMatchesLongestBase(t *testing.T) {
	paths := []string{PathSlotFrame, PathCellList, PathStats}

	base, field, query, err := splitResource("6top/cellList/so?fd=1", paths)
	require.NoError(t, err)
	require.Equal(t, PathCellList, base)
	require.Equal(t, "so", field)
	require.Equal(t, map[string]string{"fd": "1"}, query)

	base, field, query, err = splitResource("6top/slotFrame?fd=1", paths)
	require.NoError(t, err)
	require.Equal(t, PathSlotFrame, base)
	require.Equal(t, "", field)
	require.Equal(t, map[string]string{"fd": "1"}, query)
}

func TestSplitResourceUnknownPath(t *testing.T) {
	_, _, _, err := splitResource("bogus/path", []string{PathSlotFrame})
	require.Error(t, err)
}

// fakeTransport discards notifications; this test only exercises the
// synchronous request path through Handler.
type fakeTransport struct{}

func (fakeTransport) Notify(string, []byte) {}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := config.Default()
	d := New(cfg)
	d.Bind(fakeTransport{})
	return d
}

// nextMsgID gives every request its own transport message id, so the
// Arbiter does not treat a later request as a retransmit of an earlier one.
var nextMsgID uint16

func msg(code coap.Code, resource string, body []byte) coap.Message {
	nextMsgID++
	return coap.Message{Type: coap.TypeConfirmable, Code: code, MsgID: nextMsgID, Resource: resource, Payload: body}
}

func TestSlotFrameCreateListDeleteEndToEnd(t *testing.T) {
	d := newTestDaemon(t)
	h := d.Handler()

	resp := h(msg(coap.CodePOST, PathSlotFrame, []byte(`{"fd":1,"ns":101}`)))
	require.EqualValues(t, 1, resp.Status)
	require.JSONEq(t, `{"fd":1,"ns":101}`, string(resp.Payload))

	resp = h(msg(coap.CodeGET, PathSlotFrame, nil))
	require.JSONEq(t, `[{"fd":1,"ns":101}]`, string(resp.Payload))

	resp = h(msg(coap.CodeDELETE, PathSlotFrame+"?fd=1", nil))
	require.JSONEq(t, `{"fd":1,"ns":101}`, string(resp.Payload))

	resp = h(msg(coap.CodeGET, PathSlotFrame, nil))
	require.JSONEq(t, `[]`, string(resp.Payload))
}

func TestSlotFrameFieldSelector(t *testing.T) {
	d := newTestDaemon(t)
	h := d.Handler()

	h(msg(coap.CodePOST, PathSlotFrame, []byte(`{"fd":7,"ns":31}`)))

	resp := h(msg(coap.CodeGET, PathSlotFrame+"/ns?fd=7", nil))
	require.JSONEq(t, `31`, string(resp.Payload))
}

func TestUnknownResourceNotFound(t *testing.T) {
	d := newTestDaemon(t)
	h := d.Handler()
	resp := h(msg(coap.CodeGET, "bogus/path", nil))
	require.EqualValues(t, 5, resp.Status) // arbiter.StatusNotFound
}
