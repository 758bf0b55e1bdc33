package sim

import (
	"iter"
	"path"
	"strings"
)

// A Selector picks objects out of a tree by path pattern and, optionally, by
// class.
//
// Patterns are paths whose segments may use wildcards. A segment "#" matches
// any single name and "#" inside a name matches any run of characters. The
// segment "##" matches one or more levels, so "/a/##" selects every
// descendant of /a. A pattern may carry a class filter written as
// "/a/#[TYPE=Compartment]".
type Selector struct {
	Pattern string
	Type    string

	segments []string
}

// ParseSelector reads a pattern with an optional trailing [TYPE=...] filter.
func ParseSelector(s string) (Selector, error) {
	pattern := strings.TrimSpace(s)
	typeFilter := ""

	if open := strings.IndexByte(pattern, '['); open >= 0 {
		if !strings.HasSuffix(pattern, "]") {
			return Selector{}, &InvalidNameError{Name: s, Reason: "unterminated filter"}
		}

		cond := pattern[open+1 : len(pattern)-1]
		pattern = pattern[:open]

		key, value, found := strings.Cut(cond, "=")
		if !found || strings.TrimSpace(key) != "TYPE" {
			return Selector{}, &InvalidNameError{Name: s, Reason: "only TYPE= filters are supported"}
		}

		typeFilter = strings.TrimSpace(value)
	}

	return NewSelector(pattern, typeFilter)
}

// NewSelector builds a selector from a pattern and a class name. An empty
// class name matches every class.
func NewSelector(pattern, typeFilter string) (Selector, error) {
	sel := Selector{Pattern: pattern, Type: typeFilter}

	if pattern == "" {
		return sel, &InvalidNameError{Name: pattern, Reason: "empty pattern"}
	}

	for _, seg := range strings.Split(pattern, "/") {
		if seg == "" || seg == "." {
			continue
		}

		if seg != "##" && strings.ContainsAny(seg, "[]*?\\") {
			return sel, &InvalidNameError{Name: pattern, Reason: "contains a reserved character"}
		}

		sel.segments = append(sel.segments, seg)
	}

	return sel, nil
}

// String returns the selector in the form ParseSelector reads.
func (s Selector) String() string {
	if s.Type == "" {
		return s.Pattern
	}

	return s.Pattern + "[TYPE=" + s.Type + "]"
}

// Select yields the objects a selector matches, in tree traversal order.
func (t *Tree) Select(sel Selector) iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		start, rest := t.literalPrefix(sel.segments)
		if start == nil {
			return
		}

		for o := range walk(start) {
			if sel.Type != "" && o.class.Name != sel.Type {
				continue
			}

			if !matchSegments(rest, relativeSegments(start, o)) {
				continue
			}

			if !yield(o) {
				return
			}
		}
	}
}

// Find yields the objects whose path matches pattern and whose class is
// typeFilter, or any class if typeFilter is empty.
func (t *Tree) Find(pattern, typeFilter string) (iter.Seq[*Object], error) {
	sel, err := NewSelector(pattern, typeFilter)
	if err != nil {
		return nil, err
	}

	return t.Select(sel), nil
}

// FindAll collects the result of Find.
func (t *Tree) FindAll(pattern, typeFilter string) ([]*Object, error) {
	seq, err := t.Find(pattern, typeFilter)
	if err != nil {
		return nil, err
	}

	var list []*Object
	for o := range seq {
		list = append(list, o)
	}

	return list, nil
}

// literalPrefix descends the wildcard-free leading segments so that only the
// relevant subtree needs to be walked.
func (t *Tree) literalPrefix(segments []string) (*Object, []string) {
	curr := t.root

	for i, seg := range segments {
		if strings.Contains(seg, "#") {
			return curr, segments[i:]
		}

		next, ok := t.byPath[joinPath(curr.Path(), seg)]
		if !ok {
			return nil, nil
		}

		curr = next
	}

	return curr, nil
}

func relativeSegments(from, o *Object) []string {
	var rev []string
	for curr := o; curr != from; curr = curr.parent {
		rev = append(rev, curr.name)
	}

	segs := make([]string, len(rev))
	for i, s := range rev {
		segs[len(rev)-1-i] = s
	}

	return segs
}

func matchSegments(pattern, names []string) bool {
	if len(pattern) == 0 {
		return len(names) == 0
	}

	if pattern[0] == "##" {
		for n := 1; n <= len(names); n++ {
			if matchSegments(pattern[1:], names[n:]) {
				return true
			}
		}

		return false
	}

	if len(names) == 0 {
		return false
	}

	return matchName(pattern[0], names[0]) && matchSegments(pattern[1:], names[1:])
}

func matchName(pattern, name string) bool {
	if pattern == "#" {
		return true
	}

	if !strings.Contains(pattern, "#") {
		return pattern == name
	}

	ok, err := path.Match(strings.ReplaceAll(pattern, "#", "*"), name)

	return err == nil && ok
}
