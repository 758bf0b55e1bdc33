package sim

// A Link connects a source port of one object to a destination port of
// another. For push links the source delivers values into the destination.
// For pull links the source is the requester and the destination answers.
type Link struct {
	ID      int
	Src     *Object
	SrcPort string
	Dst     *Object
	DstPort string

	srcIdx  int
	dstIdx  int
	srcInfo *PortInfo
	dstInfo *PortInfo
}

// Mode returns whether the link pushes or pulls.
func (l *Link) Mode() PortMode {
	return l.srcInfo.Mode
}

// Arity returns the number of values carried per message.
func (l *Link) Arity() int {
	return l.srcInfo.Arity
}

// IsTrigger tells if the link only fires a phase on the destination.
func (l *Link) IsTrigger() bool {
	return l.srcInfo.IsTrigger()
}

func (l *Link) deliver(values []float64) error {
	if l.srcInfo.IsTrigger() {
		d := l.Src.tree.dispatcher
		if d == nil {
			return ErrNoDispatcher
		}

		return d.Trigger(l.Dst, l.dstInfo.Phase)
	}

	return l.dstInfo.Input(l.Dst, values)
}

// A TriggerDispatcher runs the phase named by the destination port of a
// trigger link.
type TriggerDispatcher interface {
	Trigger(dst *Object, phase string) error
}

// Connect creates a link from a source port to a destination port. The two
// ports must agree on mode and arity.
func (t *Tree) Connect(
	src *Object, srcPort string,
	dst *Object, dstPort string,
) (*Link, error) {
	if t.locked {
		return nil, ErrTopologyLocked
	}

	if src.deleted {
		return nil, &NotFoundError{Path: src.Path()}
	}

	if dst.deleted {
		return nil, &NotFoundError{Path: dst.Path()}
	}

	srcIdx, ok := src.class.portIdx(srcPort)
	if !ok {
		return nil, &UnknownPortError{Class: src.class.Name, Port: srcPort}
	}

	dstIdx, ok := dst.class.portIdx(dstPort)
	if !ok {
		return nil, &UnknownPortError{Class: dst.class.Name, Port: dstPort}
	}

	srcInfo := &src.class.Ports[srcIdx]
	dstInfo := &dst.class.Ports[dstIdx]

	if reason := mismatch(srcInfo, dstInfo); reason != "" {
		return nil, &PortTypeMismatchError{
			Src:     src.Path(),
			SrcPort: srcPort,
			Dst:     dst.Path(),
			DstPort: dstPort,
			Reason:  reason,
		}
	}

	l := &Link{
		ID:      t.nextLinkID,
		Src:     src,
		SrcPort: srcPort,
		Dst:     dst,
		DstPort: dstPort,
		srcIdx:  srcIdx,
		dstIdx:  dstIdx,
		srcInfo: srcInfo,
		dstInfo: dstInfo,
	}
	t.nextLinkID++

	t.links = append(t.links, l)
	src.outLinks[srcIdx] = append(src.outLinks[srcIdx], l)
	dst.inLinks[dstIdx] = append(dst.inLinks[dstIdx], l)

	return l, nil
}

// MustConnect is Connect for model building code.
func (t *Tree) MustConnect(
	src *Object, srcPort string,
	dst *Object, dstPort string,
) *Link {
	l, err := t.Connect(src, srcPort, dst, dstPort)
	if err != nil {
		panic(err)
	}

	return l
}

func mismatch(src, dst *PortInfo) string {
	switch {
	case src.Dir != Src:
		return "first port is not a source"
	case dst.Dir != Dest:
		return "second port is not a destination"
	case src.Mode != dst.Mode:
		return "mixing " + src.Mode.String() + " and " + dst.Mode.String()
	case src.Arity != dst.Arity:
		return "arity differs"
	}

	return ""
}

// Links returns all the live links in creation order.
func (t *Tree) Links() []*Link {
	return append([]*Link(nil), t.links...)
}

// LinksFrom returns the links whose source is o, in creation order.
func (t *Tree) LinksFrom(o *Object) []*Link {
	var list []*Link

	for _, l := range t.links {
		if l.Src == o {
			list = append(list, l)
		}
	}

	return list
}

// LinksTo returns the links whose destination is o, in creation order.
func (t *Tree) LinksTo(o *Object) []*Link {
	var list []*Link

	for _, l := range t.links {
		if l.Dst == o {
			list = append(list, l)
		}
	}

	return list
}

// Disconnect removes a link.
func (t *Tree) Disconnect(l *Link) error {
	if t.locked {
		return ErrTopologyLocked
	}

	t.dropLinks(func(x *Link) bool { return x == l })

	return nil
}

func (t *Tree) dropLinks(drop func(*Link) bool) {
	kept := t.links[:0]

	for _, l := range t.links {
		if !drop(l) {
			kept = append(kept, l)
			continue
		}

		l.Src.outLinks[l.srcIdx] = removeLink(l.Src.outLinks[l.srcIdx], l)
		l.Dst.inLinks[l.dstIdx] = removeLink(l.Dst.inLinks[l.dstIdx], l)
	}

	for i := len(kept); i < len(t.links); i++ {
		t.links[i] = nil
	}

	t.links = kept
}

func removeLink(list []*Link, l *Link) []*Link {
	for i, x := range list {
		if x == l {
			return append(list[:i], list[i+1:]...)
		}
	}

	return list
}
