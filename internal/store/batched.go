package store

import "sync"

// Batch buffers the facts of one file in memory using fake (negative) IDs,
// so parsing can run in parallel while a single writer commits to SQLite.
// Foreign keys inside the batch refer to fake IDs and are rewritten by
// CommitFile.
type Batch struct {
	mu sync.Mutex

	Imports         []Import
	Types           []Type
	Supertypes      []Supertype
	TypeAnnotations []TypeAnnotation
	Methods         []Method
	Params          []MethodParam
	Annotations     []Annotation
	AnnotationArgs  []AnnotationArg
	Calls           []Call
	Creations       []Creation

	nextFakeID int64 // starts at -1, decrements
}

// NewBatch creates an empty Batch.
func NewBatch() *Batch {
	return &Batch{nextFakeID: -1}
}

func (b *Batch) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *Batch) AddImport(imp Import) {
	b.mu.Lock()
	defer b.mu.Unlock()
	imp.ID = b.allocFakeID()
	b.Imports = append(b.Imports, imp)
}

func (b *Batch) AddType(t Type) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.ID = b.allocFakeID()
	b.Types = append(b.Types, t)
	return t.ID
}

func (b *Batch) AddSupertype(st Supertype) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st.ID = b.allocFakeID()
	b.Supertypes = append(b.Supertypes, st)
}

func (b *Batch) AddTypeAnnotation(ta TypeAnnotation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ta.ID = b.allocFakeID()
	b.TypeAnnotations = append(b.TypeAnnotations, ta)
}

func (b *Batch) AddMethod(m Method) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	m.ID = b.allocFakeID()
	b.Methods = append(b.Methods, m)
	return m.ID
}

func (b *Batch) AddParam(p MethodParam) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p.ID = b.allocFakeID()
	b.Params = append(b.Params, p)
}

func (b *Batch) AddAnnotation(a Annotation) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	a.ID = b.allocFakeID()
	b.Annotations = append(b.Annotations, a)
	return a.ID
}

func (b *Batch) AddAnnotationArg(arg AnnotationArg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	arg.ID = b.allocFakeID()
	b.AnnotationArgs = append(b.AnnotationArgs, arg)
}

func (b *Batch) AddCall(c Call) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.ID = b.allocFakeID()
	b.Calls = append(b.Calls, c)
}

func (b *Batch) AddCreation(c Creation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.ID = b.allocFakeID()
	b.Creations = append(b.Creations, c)
}
