package sim

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrTopologyLocked is returned by structural edits attempted while a run is
// in progress.
var ErrTopologyLocked = errors.New("object tree is locked by a running scheduler")

// ErrNoDispatcher is returned when a trigger link fires and nothing is set up
// to run the phase it names.
var ErrNoDispatcher = errors.New("trigger fired without a dispatcher")

// DuplicatePathError reports an attempt to create an object where one
// already exists.
type DuplicatePathError struct {
	Path string
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("object %s already exists", e.Path)
}

// InvalidParentError reports a creation under a parent that does not exist.
type InvalidParentError struct {
	Path   string
	Parent string
}

func (e *InvalidParentError) Error() string {
	return fmt.Sprintf("cannot create %s: parent %s does not exist", e.Path, e.Parent)
}

// InvalidNameError reports a malformed object name or path.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Name, e.Reason)
}

// NotFoundError reports a path that does not resolve to an object.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found", e.Path)
}

// UnknownFieldError reports a field name the class does not declare.
type UnknownFieldError struct {
	Class string
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("class %s has no field %s", e.Class, e.Field)
}

// ReadOnlyFieldError reports a write to a field the class computes itself.
type ReadOnlyFieldError struct {
	Class string
	Field string
}

func (e *ReadOnlyFieldError) Error() string {
	return fmt.Sprintf("field %s of class %s is read-only", e.Field, e.Class)
}

// UnknownPortError reports a port name the class does not declare.
type UnknownPortError struct {
	Class string
	Port  string
}

func (e *UnknownPortError) Error() string {
	return fmt.Sprintf("class %s has no port %s", e.Class, e.Port)
}

// PortTypeMismatchError reports two ports that cannot be linked.
type PortTypeMismatchError struct {
	Src     string
	SrcPort string
	Dst     string
	DstPort string
	Reason  string
}

func (e *PortTypeMismatchError) Error() string {
	return fmt.Sprintf("cannot link %s.%s to %s.%s: %s",
		e.Src, e.SrcPort, e.Dst, e.DstPort, e.Reason)
}
