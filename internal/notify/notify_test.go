package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTransport) Notify(path string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDebounceCoalescesRapidSignals(t *testing.T) {
	ft := &fakeTransport{}
	n := New(ft, 30*time.Millisecond)

	for i := 0; i < 5; i++ {
		n.SignalTopologyChange(func() []byte { return []byte("{}") })
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return ft.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, ft.count(), "only one notify fires after the coalesced window")
}

func TestPeriodicTaskReArmsWithSamePeriod(t *testing.T) {
	ft := &fakeTransport{}
	n := New(ft, time.Second)

	task := n.PeriodicTask("6top/cellList", 25*time.Millisecond, func() []byte { return []byte("[]") })
	next := task()
	require.Equal(t, 25*time.Millisecond, next)
	require.Equal(t, 1, ft.count())
}
