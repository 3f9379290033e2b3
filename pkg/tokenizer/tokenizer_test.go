package tokenizer_test

import (
	"unicode"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rlhfrun/pkg/tokenizer"
)

var _ = Describe("Tokenizer", func() {
	var tok *tokenizer.Tokenizer

	BeforeEach(func() {
		tok = tokenizer.NewRune("[unused1]", "[PAD]")
	})

	Describe("Encode", func() {
		It("emits one id per rune", func() {
			Expect(tok.Encode("用户:hi")).To(Equal([]int{'用', '户', ':', 'h', 'i'}))
		})

		It("maps sentinels to reserved ids", func() {
			start, ok := tok.SpecialID("[unused1]")
			Expect(ok).To(BeTrue())
			pad, ok := tok.SpecialID("[PAD]")
			Expect(ok).To(BeTrue())
			Expect(start).To(BeNumerically(">", unicode.MaxRune))
			Expect(pad).To(Equal(start + 1))

			Expect(tok.Encode("[unused1]ab[PAD]")).To(Equal([]int{start, 'a', 'b', pad}))
		})

		It("returns no ids for empty text", func() {
			Expect(tok.Encode("")).To(BeEmpty())
		})
	})

	Describe("EncodeTruncated", func() {
		It("truncates on the right", func() {
			Expect(tok.EncodeTruncated("abcdef", 3)).To(Equal([]int{'a', 'b', 'c'}))
		})

		It("leaves short input alone", func() {
			Expect(tok.EncodeTruncated("ab", 3)).To(Equal([]int{'a', 'b'}))
		})

		It("treats a negative length as zero", func() {
			Expect(tok.EncodeTruncated("ab", -1)).To(BeEmpty())
		})
	})

	Describe("Decode", func() {
		It("round-trips plain text", func() {
			text := "用户:你好 world#小爱同学:"
			Expect(tok.Decode(tok.Encode(text), true)).To(Equal(text))
		})

		It("drops sentinels when skipping special tokens", func() {
			ids := tok.Encode("[unused1]ab[PAD]")
			Expect(tok.Decode(ids, true)).To(Equal("ab"))
			Expect(tok.Decode(ids, false)).To(Equal("[unused1]ab[PAD]"))
		})
	})

	Describe("SpecialID", func() {
		It("reports unknown sentinels", func() {
			_, ok := tok.SpecialID("[CLS]")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Load", func() {
		It("builds the character tokenizer by default", func() {
			t, err := tokenizer.Load("", "", "[PAD]")
			Expect(err).NotTo(HaveOccurred())
			_, ok := t.SpecialID("[PAD]")
			Expect(ok).To(BeTrue())
		})

		It("rejects unknown modes", func() {
			_, err := tokenizer.Load("wordpiece", "")
			Expect(err).To(HaveOccurred())
		})
	})
})
