package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tree", func() {
	var tree *Tree

	BeforeEach(func() {
		tree = NewTree()
	})

	It("should start with a root", func() {
		Expect(tree.Root().Path()).To(Equal("/"))
		Expect(tree.Root().Class()).To(BeIdenticalTo(NeutralClass))
		Expect(tree.Root().ID()).To(Equal(ObjectID(0)))
		Expect(tree.Len()).To(Equal(1))
	})

	It("should create objects under existing parents", func() {
		model := tree.MustCreate(NeutralClass, "/model")
		axon, err := tree.Create(cellClass, "model/axon")

		Expect(err).ToNot(HaveOccurred())
		Expect(axon.Path()).To(Equal("/model/axon"))
		Expect(axon.Parent()).To(BeIdenticalTo(model))
		Expect(model.Children()).To(ConsistOf(axon))

		found, ok := tree.Lookup("/model/axon")
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(axon))
	})

	It("should give every object a distinct id", func() {
		a := tree.MustCreate(NeutralClass, "/a")
		b := tree.MustCreate(NeutralClass, "/b")

		Expect(a.ID()).ToNot(Equal(b.ID()))
	})

	It("should reject duplicated paths", func() {
		tree.MustCreate(NeutralClass, "/model")

		_, err := tree.Create(cellClass, "/model")

		var dup *DuplicatePathError
		Expect(err).To(BeAssignableToTypeOf(dup))
	})

	It("should reject missing parents", func() {
		_, err := tree.Create(cellClass, "/nowhere/axon")

		Expect(err).To(MatchError(ContainSubstring("parent /nowhere")))
	})

	It("should reject reserved characters", func() {
		_, err := tree.Create(cellClass, "/a#b")

		Expect(err).To(BeAssignableToTypeOf(&InvalidNameError{}))
	})

	It("should initialize fields with defaults", func() {
		c := tree.MustCreate(cellClass, "/c")

		v, err := c.GetField("v")
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(1.5))
	})

	It("should round trip field writes", func() {
		c := tree.MustCreate(cellClass, "/c")

		Expect(c.SetField("v", -3)).To(Succeed())

		v, _ := c.GetField("v")
		Expect(v).To(Equal(-3.0))
		Expect(c.Fields()).To(HaveKeyWithValue("v", -3.0))
	})

	It("should refuse unknown and read-only fields", func() {
		c := tree.MustCreate(cellClass, "/c")

		_, err := c.GetField("w")
		Expect(err).To(BeAssignableToTypeOf(&UnknownFieldError{}))

		err = c.SetField("out", 1)
		Expect(err).To(BeAssignableToTypeOf(&ReadOnlyFieldError{}))
	})

	It("should delete subtrees and the links touching them", func() {
		tree.MustCreate(NeutralClass, "/model")
		a := tree.MustCreate(cellClass, "/model/a")
		b := tree.MustCreate(cellClass, "/b")
		tree.MustConnect(b, "out", a, "in")
		tree.MustConnect(b, "ask", b, "get_v")

		Expect(tree.Delete("/model")).To(Succeed())

		_, ok := tree.Lookup("/model/a")
		Expect(ok).To(BeFalse())
		Expect(a.Deleted()).To(BeTrue())
		Expect(tree.Links()).To(HaveLen(1))
		Expect(b.Send("out", 2)).To(Succeed())
	})

	It("should not delete the root", func() {
		Expect(tree.Delete("/")).ToNot(Succeed())
	})

	It("should refuse edits while locked", func() {
		tree.Lock()

		_, err := tree.Create(cellClass, "/c")
		Expect(err).To(MatchError(ErrTopologyLocked))

		tree.Unlock()
		_, err = tree.Create(cellClass, "/c")
		Expect(err).ToNot(HaveOccurred())
	})

	It("should walk parents before children in creation order", func() {
		tree.MustCreate(NeutralClass, "/b")
		tree.MustCreate(NeutralClass, "/a")
		tree.MustCreate(NeutralClass, "/b/y")
		tree.MustCreate(NeutralClass, "/b/x")

		var paths []string
		for o := range tree.Walk() {
			paths = append(paths, o.Path())
		}

		Expect(paths).To(Equal([]string{"/", "/b", "/b/y", "/b/x", "/a"}))
	})

	It("should restore committed state on discard", func() {
		c := tree.MustCreate(cellClass, "/c")
		src := tree.MustCreate(cellClass, "/src")
		tree.MustConnect(src, "out", c, "in")
		Expect(src.Send("out", 1)).To(Succeed())
		tree.Commit()

		c.MustSetField("v", 42)
		Expect(src.Send("out", 2)).To(Succeed())
		tree.Discard()

		v, _ := c.GetField("v")
		Expect(v).To(Equal(1.5))
		Expect(c.Behavior().(*cellState).received).To(Equal([]float64{1}))
	})
})

var _ = Describe("CleanPath", func() {
	It("should make paths absolute", func() {
		Expect(CleanPath("a/b")).To(Equal("/a/b"))
		Expect(CleanPath("/a//b/")).To(Equal("/a/b"))
		Expect(CleanPath("/")).To(Equal("/"))
	})

	It("should reject empty paths", func() {
		_, err := CleanPath("")
		Expect(err).To(HaveOccurred())
	})
})
