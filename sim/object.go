package sim

import (
	"strings"

	"github.com/pkg/errors"
)

// A Committer is a behavior that keeps state outside the field table and
// wants to take part in tick rollback.
type Committer interface {
	// Commit marks the current state as the one to return to.
	Commit()

	// Discard returns to the state of the last Commit.
	Discard()
}

// An Object is a node of the object tree. It is an instance of a Class, owns
// one value per declared field, and may carry a behavior created by the class.
type Object struct {
	id       ObjectID
	name     string
	class    *Class
	tree     *Tree
	parent   *Object
	children []*Object
	deleted  bool

	fields    []float64
	committed []float64
	behavior  any

	// outLinks and pulled are indexed by port position within the class.
	outLinks [][]*Link
	inLinks  [][]*Link
	pulled   [][]float64
}

func newObject(t *Tree, c *Class, parent *Object, name string) *Object {
	o := &Object{
		id:       t.idGen.Generate(),
		name:     name,
		class:    c,
		tree:     t,
		parent:   parent,
		fields:   make([]float64, len(c.Fields)),
		outLinks: make([][]*Link, len(c.Ports)),
		inLinks:  make([][]*Link, len(c.Ports)),
		pulled:   make([][]float64, len(c.Ports)),
	}

	for i, f := range c.Fields {
		o.fields[i] = f.Default
	}

	o.committed = append([]float64(nil), o.fields...)

	if c.New != nil {
		o.behavior = c.New(o)
	}

	return o
}

// ID returns the identifier of the object.
func (o *Object) ID() ObjectID {
	return o.id
}

// Name returns the last path segment of the object.
func (o *Object) Name() string {
	return o.name
}

// Class returns the class of the object.
func (o *Object) Class() *Class {
	return o.class
}

// Tree returns the tree that owns the object.
func (o *Object) Tree() *Tree {
	return o.tree
}

// Parent returns the parent object, or nil for the root.
func (o *Object) Parent() *Object {
	return o.parent
}

// Children returns the children of the object in creation order.
func (o *Object) Children() []*Object {
	return append([]*Object(nil), o.children...)
}

// Deleted tells if the object has been removed from its tree.
func (o *Object) Deleted() bool {
	return o.deleted
}

// Behavior returns the class specific state created along with the object.
func (o *Object) Behavior() any {
	return o.behavior
}

// Path returns the absolute path of the object.
func (o *Object) Path() string {
	if o.parent == nil {
		return "/"
	}

	var segments []string
	for curr := o; curr.parent != nil; curr = curr.parent {
		segments = append(segments, curr.name)
	}

	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segments[i])
	}

	return b.String()
}

// Get returns a field value by index. It is meant for the class's own
// handlers, which know their field layout.
func (o *Object) Get(i FieldIndex) float64 {
	return o.fields[i]
}

// Set writes a field value by index. Read-only fields are writable through
// Set, as it is how classes publish what they compute.
func (o *Object) Set(i FieldIndex, v float64) {
	o.fields[i] = v
}

// GetField reads a field by name.
func (o *Object) GetField(name string) (float64, error) {
	i, ok := o.class.FieldIndex(name)
	if !ok {
		return 0, &UnknownFieldError{Class: o.class.Name, Field: name}
	}

	return o.fields[i], nil
}

// SetField writes a field by name. Read-only fields cannot be written this
// way.
func (o *Object) SetField(name string, v float64) error {
	i, ok := o.class.FieldIndex(name)
	if !ok {
		return &UnknownFieldError{Class: o.class.Name, Field: name}
	}

	if o.class.Fields[i].ReadOnly {
		return &ReadOnlyFieldError{Class: o.class.Name, Field: name}
	}

	o.fields[i] = v

	return nil
}

// MustSetField is SetField for model building code, where a bad field name is
// a programming error.
func (o *Object) MustSetField(name string, v float64) {
	if err := o.SetField(name, v); err != nil {
		panic(err)
	}
}

// Fields returns a name to value snapshot of all the fields.
func (o *Object) Fields() map[string]float64 {
	m := make(map[string]float64, len(o.fields))
	for i, f := range o.class.Fields {
		m[f.Name] = o.fields[i]
	}

	return m
}

// Send pushes values out of a source push port. Every link attached to the
// port delivers the values immediately, in the order the links were created.
// A trigger port (arity 0) asks the tree's dispatcher to run the phase named
// by each destination port instead.
func (o *Object) Send(port string, values ...float64) error {
	idx, ok := o.class.portIdx(port)
	if !ok {
		return &UnknownPortError{Class: o.class.Name, Port: port}
	}

	info := &o.class.Ports[idx]
	if info.Dir != Src || info.Mode != Push {
		return errors.Errorf("%s: port %s is not a push source", o.Path(), port)
	}

	if len(values) != info.Arity {
		return errors.Errorf("%s: port %s carries %d values, got %d",
			o.Path(), port, info.Arity, len(values))
	}

	for _, l := range o.outLinks[idx] {
		if err := l.deliver(values); err != nil {
			return err
		}
	}

	return nil
}

// Pulled returns the values the pull port collected at the start of the
// current phase, one per link, in link creation order.
func (o *Object) Pulled(port string) []float64 {
	idx, ok := o.class.portIdx(port)
	if !ok {
		return nil
	}

	return o.pulled[idx]
}

// ResolvePulls asks every provider linked to the object's pull ports for a
// fresh value.
func (o *Object) ResolvePulls() {
	for idx := range o.class.Ports {
		info := &o.class.Ports[idx]
		if info.Dir != Src || info.Mode != Pull {
			continue
		}

		values := o.pulled[idx][:0]
		for _, l := range o.outLinks[idx] {
			values = append(values, l.dstInfo.Value(l.Dst))
		}

		o.pulled[idx] = values
	}
}

// TriggerTargets lists the objects reachable through the object's trigger
// links, in link creation order.
func (o *Object) TriggerTargets() []*Object {
	var targets []*Object

	for idx := range o.class.Ports {
		info := &o.class.Ports[idx]
		if info.Dir != Src || !info.IsTrigger() {
			continue
		}

		for _, l := range o.outLinks[idx] {
			targets = append(targets, l.Dst)
		}
	}

	return targets
}

func (o *Object) commit() {
	copy(o.committed, o.fields)

	if c, ok := o.behavior.(Committer); ok {
		c.Commit()
	}
}

func (o *Object) discard() {
	copy(o.fields, o.committed)

	if c, ok := o.behavior.(Committer); ok {
		c.Discard()
	}
}
