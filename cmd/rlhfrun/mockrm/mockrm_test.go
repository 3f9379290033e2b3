package mockrmcmder

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rlhfrun/pkg/reward"
)

var _ = Describe("MockRM Command", func() {
	It("serves scores until the context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ready := make(chan net.Addr, 1)
		cmd := NewMockRMCmd()
		cmder := &mockrmCommander{listen: "127.0.0.1:0", ready: ready}

		done := make(chan error, 1)
		go func() {
			done <- cmder.run(ctx, cmd)
		}()

		var addr net.Addr
		Eventually(ready, 5*time.Second).Should(Receive(&addr))

		model := reward.NewHTTPModel("http://"+addr.String(), 5*time.Second)
		scores, err := model.Score(ctx, reward.Batch{
			InputIDs:      [][]int{{1, 2, 0}, {1, 2, 0}},
			AttentionMask: [][]int{{1, 1, 0}, {1, 1, 0}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(scores).To(HaveLen(1))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})

	It("fails on an unusable address", func() {
		cmder := &mockrmCommander{listen: "not-an-address"}
		err := cmder.run(context.Background(), NewMockRMCmd())
		Expect(err).To(HaveOccurred())
	})
})
