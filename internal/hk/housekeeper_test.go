package hk_test

import (
	"sync/atomic"
	"time"

	"github.com/rich-project/plexid/internal/hk"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	var h *hk.Housekeeper

	BeforeEach(func() {
		h = hk.New()
		go h.Run()
		h.WaitStarted()
	})

	AfterEach(func() {
		h.Stop()
	})

	It("fires a registered task repeatedly on its returned cadence", func() {
		var count int32
		h.Register("tick", time.Millisecond, func() time.Duration {
			atomic.AddInt32(&count, 1)
			return 2 * time.Millisecond
		})
		Eventually(func() int32 { return atomic.LoadInt32(&count) }, time.Second, time.Millisecond).
			Should(BeNumerically(">=", 3))
	})

	It("unregisters a task when its callback returns a non-positive duration", func() {
		var count int32
		h.Register("once", time.Millisecond, func() time.Duration {
			atomic.AddInt32(&count, 1)
			return 0
		})
		Eventually(func() int32 { return atomic.LoadInt32(&count) }, time.Second, time.Millisecond).
			Should(Equal(int32(1)))
		Consistently(func() int32 { return atomic.LoadInt32(&count) }, 30*time.Millisecond, time.Millisecond).
			Should(Equal(int32(1)))
	})

	It("supports explicit Unregister before a task ever fires", func() {
		var count int32
		h.Register("never", time.Hour, func() time.Duration {
			atomic.AddInt32(&count, 1)
			return time.Hour
		})
		h.Unregister("never")
		Consistently(func() int32 { return atomic.LoadInt32(&count) }, 20*time.Millisecond, time.Millisecond).
			Should(Equal(int32(0)))
	})
})
