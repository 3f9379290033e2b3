package prompt_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rlhfrun/pkg/prompt"
	"github.com/papercomputeco/rlhfrun/pkg/tokenizer"
)

var _ = Describe("Canonicalizer", func() {
	const marker = "#小爱同学:"

	var c *prompt.Canonicalizer

	BeforeEach(func() {
		c = &prompt.Canonicalizer{
			Tokenizer:  tokenizer.NewRune("[unused1]", "[PAD]"),
			RoleMarker: marker,
		}
	})

	It("leaves short prompts unchanged", func() {
		Expect(c.Canonicalize("用户:hi#小爱同学:", 78)).To(Equal("用户:hi#小爱同学:"))
	})

	It("reserves headroom for the marker when truncating the query", func() {
		raw := "用户:" + strings.Repeat("长", 100) + marker
		got := c.Canonicalize(raw, 20)

		// 15 query runes plus a six-rune marker overflow by one
		Expect(got).To(Equal("用户:" + strings.Repeat("长", 12) + "#小爱同学"))
		Expect([]rune(got)).To(HaveLen(20))
	})

	It("keeps the whole marker when the query leaves room", func() {
		raw := "用户:" + strings.Repeat("长", 10) + marker
		got := c.Canonicalize(raw, 20)

		Expect(got).To(Equal(raw))
	})

	It("truncates the marker itself when the budget is too small", func() {
		got := c.Canonicalize("用户:hi#小爱同学:", 10)
		Expect(got).To(Equal("用户:hi#小爱同学"))
	})

	It("trims whitespace around the query", func() {
		Expect(c.Canonicalize("  用户: hello world #小爱同学:", 10)).To(Equal("用户:#小爱同学:"))
	})

	It("appends the marker when it is missing", func() {
		Expect(c.Canonicalize("用户:hi", 78)).To(Equal("用户:hi#小爱同学:"))
	})

	DescribeTable("is idempotent",
		func(raw string, maxLength int) {
			once := c.Canonicalize(raw, maxLength)
			Expect(c.Canonicalize(once, maxLength)).To(Equal(once))
		},
		Entry("short prompt", "用户:hi#小爱同学:", 78),
		Entry("long prompt", "用户:"+strings.Repeat("字", 200)+marker, 78),
		Entry("tight budget", "用户:hi#小爱同学:", 10),
		Entry("whitespace", "  用户: hello world #小爱同学:", 10),
		Entry("no marker", "用户:plain text", 12),
	)

	It("canonicalizes every prompt in order", func() {
		out := c.CanonicalizeAll([]string{"用户:a#小爱同学:", "用户:b"}, 78)
		Expect(out).To(Equal([]string{"用户:a#小爱同学:", "用户:b#小爱同学:"}))
	})

	It("derives the rollout delimiter from the marker", func() {
		Expect(c.Delimiter()).To(Equal(marker))
	})

	It("computes the prompt budget", func() {
		Expect(prompt.MaxLength(128, 50)).To(Equal(78))
	})

	Describe("Recoverable", func() {
		It("accepts prompts that end with the marker", func() {
			p := c.Canonicalize("用户:讲个笑话#小爱同学:", 78)
			Expect(c.Recoverable(p)).To(BeTrue())

			p = c.Canonicalize("用户:"+strings.Repeat("问", 69)+marker, 78)
			Expect(c.Recoverable(p)).To(BeTrue())
		})

		It("rejects prompts whose marker was clipped", func() {
			p := c.Canonicalize("用户:"+strings.Repeat("问", 75)+marker, 78)
			Expect(p).To(HaveSuffix("#小爱同学"))
			Expect(c.Recoverable(p)).To(BeFalse())
		})

		It("rejects prompts with text after the marker", func() {
			Expect(c.Recoverable("用户:hi#小爱同学:extra")).To(BeFalse())
		})
	})
})

var _ = Describe("Canonicalizer over BPE", func() {
	const marker = "#小爱同学:"

	var c *prompt.Canonicalizer

	BeforeEach(func() {
		tok, err := tokenizer.NewBPE("", "[unused1]", "[PAD]")
		if err != nil {
			Skip("tiktoken encoding unavailable: " + err.Error())
		}
		c = &prompt.Canonicalizer{Tokenizer: tok, RoleMarker: marker}
	})

	It("keeps a short prompt whole", func() {
		raw := "用户:讲个笑话" + marker
		Expect(c.Canonicalize(raw, 78)).To(Equal(raw))
		Expect(c.Recoverable(raw)).To(BeTrue())
	})

	// Multi-token runes can clip the marker. Such prompts are dropped before
	// training, so only recoverable ones need to be stable.
	DescribeTable("is idempotent on recoverable prompts",
		func(raw string, maxLength int) {
			once := c.Canonicalize(raw, maxLength)
			if !c.Recoverable(once) {
				Expect(once).NotTo(HaveSuffix(marker))
				return
			}
			Expect(c.Canonicalize(once, maxLength)).To(Equal(once))
		},
		Entry("short prompt", "用户:hi#小爱同学:", 78),
		Entry("long prompt", "用户:"+strings.Repeat("字", 200)+marker, 78),
		Entry("long ascii prompt", "用户:"+strings.Repeat("ab", 200)+marker, 78),
		Entry("mixed script", "用户:hello 世界, how are you?"+marker, 78),
		Entry("tight budget", "用户:hi#小爱同学:", 10),
	)
})
