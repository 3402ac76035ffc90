package cos_test

import (
	"github.com/weftsrv/weft/cmn/cos"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ID generation", func() {
	It("generates short, non-empty UUIDs", func() {
		id := cos.GenUUID()
		Expect(id).NotTo(BeEmpty())
		Expect(len(id)).To(BeNumerically(">=", cos.LenShortID-2))
	})

	It("generates distinct tie-breakers across calls", func() {
		seen := map[string]bool{}
		for i := 0; i < 1000; i++ {
			seen[cos.GenTie()] = true
		}
		Expect(len(seen)).To(BeNumerically(">", 1))
	})
})
