package ledger_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rlhfrun/pkg/ledger"
)

func storerBehaviour(newStorer func() ledger.Storer) {
	var (
		storer ledger.Storer
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = newStorer()
	})

	AfterEach(func() {
		Expect(storer.Close()).To(Succeed())
	})

	It("stores and retrieves a node", func() {
		node := ledger.NewNode("test content", nil)

		isNew, err := storer.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeTrue())

		got, err := storer.Get(ctx, node.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Hash).To(Equal(node.Hash))
		Expect(got.Content).To(Equal("test content"))
		Expect(got.ParentHash).To(BeNil())
	})

	It("is idempotent for duplicate puts", func() {
		node := ledger.NewNode("test", nil)

		_, err := storer.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())
		isNew, err := storer.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeFalse())

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
	})

	It("rejects nil nodes", func() {
		_, err := storer.Put(ctx, nil)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("nil node"))
	})

	It("returns ErrNotFound for unknown hashes", func() {
		_, err := storer.Get(ctx, "nonexistent")
		Expect(err).To(BeAssignableToTypeOf(ledger.ErrNotFound{}))

		ok, err := storer.Has(ctx, "nonexistent")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("lists roots and children", func() {
		root := ledger.NewNode("root", nil)
		a := ledger.NewNode("a", root)
		b := ledger.NewNode("b", root)
		other := ledger.NewNode("other", nil)
		for _, n := range []*ledger.Node{root, a, b, other} {
			_, err := storer.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}

		roots, err := storer.Roots(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(hashes(roots)).To(Equal([]string{root.Hash, other.Hash}))

		children, err := storer.Children(ctx, root.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(hashes(children)).To(Equal([]string{a.Hash, b.Hash}))
		Expect(*children[0].ParentHash).To(Equal(root.Hash))

		ok, err := storer.Has(ctx, a.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})
}

func hashes(nodes []*ledger.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Hash
	}
	return out
}

var _ = Describe("MemoryStorer", func() {
	storerBehaviour(func() ledger.Storer { return ledger.NewMemoryStorer() })
})

var _ = Describe("SQLiteStorer", func() {
	storerBehaviour(func() ledger.Storer {
		s, err := ledger.NewSQLiteStorer(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return s
	})

	It("creates a database file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "ledger.db")

		s, err := ledger.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		_, err = os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
	})

	It("decodes struct content as a map", func() {
		s, err := ledger.NewSQLiteStorer(":memory:")
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		node := ledger.NewNode(ledger.PromptEntry{Type: "prompt", Prompt: "P:", Reference: "P:ref"}, nil)
		_, err = s.Put(context.Background(), node)
		Expect(err).NotTo(HaveOccurred())

		got, err := s.Get(context.Background(), node.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Content).To(HaveKeyWithValue("prompt", "P:"))
		Expect(got.Content).To(HaveKeyWithValue("reference", "P:ref"))
	})
})
