// Package element holds the scene elements an engine keeps in insertion order.
package element

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind tags an element variant.
type Kind int

const (
	KindPlane Kind = iota
	KindSphere
)

func (k Kind) String() string {
	switch k {
	case KindPlane:
		return "plane"
	case KindSphere:
		return "sphere"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds lists every variant; Draw must handle each of them.
func Kinds() []Kind {
	return []Kind{KindPlane, KindSphere}
}

// PlaneData is the payload of both variants. It is empty for now.
type PlaneData struct{}

// Element is a closed set of variants: only types in this package satisfy it.
type Element interface {
	Kind() Kind
	isElement()
}

type Plane struct {
	PlaneData
}

func (Plane) Kind() Kind { return KindPlane }
func (Plane) isElement() {}

// Sphere currently carries the same data as Plane.
type Sphere struct {
	PlaneData
}

func (Sphere) Kind() Kind { return KindSphere }
func (Sphere) isElement() {}

// New returns the zero element of kind k.
func New(k Kind) (Element, error) {
	switch k {
	case KindPlane:
		return Plane{}, nil
	case KindSphere:
		return Sphere{}, nil
	}
	return nil, errors.Newf("unknown element kind %s", k)
}

// Draw renders e. Rendering is not implemented, so every variant is a no-op.
func Draw(e Element) {
	switch e.(type) {
	case Plane:
	case Sphere:
	default:
		panic(fmt.Sprintf("element: unhandled element %T", e))
	}
}

// List is an append-only, ordered collection of elements.
type List struct {
	elements []Element
}

func (l *List) Add(e Element) {
	l.elements = append(l.elements, e)
}

func (l *List) Len() int { return len(l.elements) }

func (l *List) At(i int) Element { return l.elements[i] }

// All returns a copy of the elements in insertion order.
func (l *List) All() []Element {
	return append([]Element(nil), l.elements...)
}

func (l *List) Each(fn func(i int, e Element)) {
	for i, e := range l.elements {
		fn(i, e)
	}
}
