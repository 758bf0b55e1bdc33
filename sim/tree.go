package sim

import (
	"iter"
	"strings"
)

// A Tree owns a hierarchy of objects and the links between them. The root
// always exists, is a Neutral, and has the path "/".
type Tree struct {
	root       *Object
	byPath     map[string]*Object
	links      []*Link
	nextLinkID int
	idGen      IDGenerator
	locked     bool
	dispatcher TriggerDispatcher
}

// NewTree creates a tree holding only the root.
func NewTree() *Tree {
	t := &Tree{
		byPath: make(map[string]*Object),
		idGen:  NewSequentialIDGenerator(),
	}

	t.root = newObject(t, NeutralClass, nil, "")
	t.byPath["/"] = t.root

	return t
}

// Root returns the root object.
func (t *Tree) Root() *Object {
	return t.root
}

// Lock forbids structural edits. The scheduler holds the lock while running.
func (t *Tree) Lock() {
	t.locked = true
}

// Unlock allows structural edits again.
func (t *Tree) Unlock() {
	t.locked = false
}

// Locked tells if structural edits are currently forbidden.
func (t *Tree) Locked() bool {
	return t.locked
}

// SetDispatcher sets who runs the phases fired by trigger links.
func (t *Tree) SetDispatcher(d TriggerDispatcher) {
	t.dispatcher = d
}

// Create makes a new object of the given class at an absolute path. A path
// without a leading slash is taken relative to the root. The parent must
// exist.
func (t *Tree) Create(c *Class, path string) (*Object, error) {
	canonical, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	if canonical == "/" {
		return nil, &DuplicatePathError{Path: canonical}
	}

	parentPath, name := splitLast(canonical)

	parent, ok := t.byPath[parentPath]
	if !ok {
		return nil, &InvalidParentError{Path: canonical, Parent: parentPath}
	}

	return t.CreateChild(c, parent, name)
}

// CreateChild makes a new object of the given class under parent.
func (t *Tree) CreateChild(c *Class, parent *Object, name string) (*Object, error) {
	if t.locked {
		return nil, ErrTopologyLocked
	}

	if err := checkName(name); err != nil {
		return nil, err
	}

	if parent == nil || parent.deleted || parent.tree != t {
		return nil, &InvalidParentError{Path: name, Parent: "<nil>"}
	}

	path := joinPath(parent.Path(), name)
	if _, found := t.byPath[path]; found {
		return nil, &DuplicatePathError{Path: path}
	}

	o := newObject(t, c, parent, name)
	parent.children = append(parent.children, o)
	t.byPath[path] = o

	return o, nil
}

// MustCreate is Create for model building code.
func (t *Tree) MustCreate(c *Class, path string) *Object {
	o, err := t.Create(c, path)
	if err != nil {
		panic(err)
	}

	return o
}

// Lookup finds an object by path.
func (t *Tree) Lookup(path string) (*Object, bool) {
	canonical, err := CleanPath(path)
	if err != nil {
		return nil, false
	}

	o, ok := t.byPath[canonical]

	return o, ok
}

// Delete removes an object, its whole subtree, and every link touching any
// removed object.
func (t *Tree) Delete(path string) error {
	if t.locked {
		return ErrTopologyLocked
	}

	o, ok := t.Lookup(path)
	if !ok {
		return &NotFoundError{Path: path}
	}

	if o == t.root {
		return &InvalidNameError{Name: "/", Reason: "the root cannot be deleted"}
	}

	removed := make(map[*Object]bool)
	for d := range walk(o) {
		removed[d] = true
	}

	t.dropLinks(func(l *Link) bool { return removed[l.Src] || removed[l.Dst] })

	for d := range removed {
		delete(t.byPath, d.Path())
	}

	for d := range removed {
		d.deleted = true
	}

	siblings := o.parent.children
	for i, s := range siblings {
		if s == o {
			o.parent.children = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}

	return nil
}

// Walk visits every object, parents before children, siblings in creation
// order.
func (t *Tree) Walk() iter.Seq[*Object] {
	return walk(t.root)
}

// Len returns the number of objects in the tree, including the root.
func (t *Tree) Len() int {
	return len(t.byPath)
}

func walk(from *Object) iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		var visit func(o *Object) bool
		visit = func(o *Object) bool {
			if !yield(o) {
				return false
			}

			for _, c := range o.children {
				if !visit(c) {
					return false
				}
			}

			return true
		}

		visit(from)
	}
}

// Commit marks the current state of every object as the state to return to
// on Discard.
func (t *Tree) Commit() {
	for o := range t.Walk() {
		o.commit()
	}
}

// Discard restores every object to the state of the last Commit.
func (t *Tree) Discard() {
	for o := range t.Walk() {
		o.discard()
	}
}

// CleanPath turns a path into its canonical absolute form. Empty segments
// are dropped and "." segments are ignored.
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", &InvalidNameError{Name: path, Reason: "empty path"}
	}

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s == "" || s == "." {
			continue
		}

		if err := checkName(s); err != nil {
			return "", err
		}

		segments = append(segments, s)
	}

	return "/" + strings.Join(segments, "/"), nil
}

func checkName(name string) error {
	if name == "" {
		return &InvalidNameError{Name: name, Reason: "empty name"}
	}

	if name == ".." {
		return &InvalidNameError{Name: name, Reason: "relative segments are not supported"}
	}

	if strings.ContainsAny(name, "/#[]*?\\") {
		return &InvalidNameError{Name: name, Reason: "contains a reserved character"}
	}

	return nil
}

func splitLast(canonical string) (string, string) {
	i := strings.LastIndexByte(canonical, '/')
	if i == 0 {
		return "/", canonical[1:]
	}

	return canonical[:i], canonical[i+1:]
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}

	return parent + "/" + name
}
