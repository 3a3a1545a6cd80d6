// Package extract turns candidate declarations supplied by a source model
// into handler and publisher entries.
//
// Extractors are pure: they read only the candidate and the Rules they were
// built with, never a source model. A candidate that does not describe a
// handler or publisher yields ok == false, never an error.
package extract

import (
	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/typesys"
)

// AttrValue is one annotation attribute value.
type AttrValue struct {
	// Type is the static type of the value expression, e.g. Class<Foo> for
	// "Foo.class". Unknown when the value is not a type reference.
	Type typesys.Descriptor
	// HasChildren is false when the value is syntactically empty.
	HasChildren bool
}

// Annotation is an annotation use on a method.
type Annotation struct {
	Name  string // canonical name
	Attrs map[string]AttrValue
}

// Method is a candidate handler declaration.
type Method struct {
	Ref         entry.Ref
	Name        string
	Annotations []Annotation
	// Params holds the declared parameter types in order.
	Params []typesys.Descriptor
	// Ancestors lists the enclosing class and its transitive supertypes.
	Ancestors []string
	// OwnerAnnotations lists annotations on the enclosing classes.
	OwnerAnnotations []string
	Constructor      bool
}

// Site is a candidate publish site: a CallSite or a Construction.
type Site interface {
	SiteRef() entry.Ref
	EnclosingMethod() string
}

// CallSite is a method invocation.
type CallSite struct {
	Ref    entry.Ref
	Method string
	// Receivers holds the canonical names the invoked method may belong to:
	// the static receiver type and its supertypes, or for unqualified calls
	// the enclosing class ancestry plus static import owners.
	Receivers []string
	Args      []typesys.Descriptor
	Enclosing string
}

func (c CallSite) SiteRef() entry.Ref { return c.Ref }
func (c CallSite) EnclosingMethod() string { return c.Enclosing }

// Construction is a constructor invocation.
type Construction struct {
	Ref       entry.Ref
	Type      typesys.Descriptor
	Enclosing string
}

func (c Construction) SiteRef() entry.Ref { return c.Ref }
func (c Construction) EnclosingMethod() string { return c.Enclosing }

var (
	_ Site = CallSite{}
	_ Site = Construction{}
)
