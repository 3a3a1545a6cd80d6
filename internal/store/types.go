package store

import "time"

// Extraction domain types. Lines and columns are 1-based.

type File struct {
	ID          int64
	Path        string
	Package     string
	Hash        string
	Generation  int64
	LastIndexed time.Time
}

type Import struct {
	ID       int64
	FileID   int64
	Name     string // dotted name without the trailing ".*"
	Static   bool
	Wildcard bool
}

// Type kinds.
const (
	KindClass      = "class"
	KindInterface  = "interface"
	KindEnum       = "enum"
	KindRecord     = "record"
	KindAnnotation = "annotation"
)

type Type struct {
	ID           int64
	FileID       int64
	Name         string
	Qualified    string
	Kind         string
	ParentTypeID *int64
	Line         int
	Col          int
}

type Supertype struct {
	ID       int64
	TypeID   int64
	TypeExpr string
	Ordinal  int
}

type TypeAnnotation struct {
	ID     int64
	TypeID int64
	Name   string // as written
}

type Method struct {
	ID          int64
	FileID      int64
	TypeID      int64
	Name        string
	Constructor bool
	Line        int
	Col         int
	EndLine     int
	EndCol      int
}

type MethodParam struct {
	ID       int64
	MethodID int64
	Ordinal  int
	Name     string
	TypeExpr string
}

type Annotation struct {
	ID       int64
	MethodID int64
	Name     string // as written
	Line     int
	Col      int
}

// Annotation argument value kinds.
const (
	ValueClass = "class" // a class literal; ValueExpr holds the type expression
	ValueEmpty = "empty" // present but syntactically empty
	ValueOther = "other" // any other expression
)

type AnnotationArg struct {
	ID           int64
	AnnotationID int64
	Key          string
	ValueKind    string
	ValueExpr    string
}

// Call receiver kinds.
const (
	ReceiverImplicit = "implicit" // unqualified, this or super
	ReceiverType     = "type"     // a type name; ReceiverExpr holds it
	ReceiverTyped    = "typed"    // an expression whose static type is ReceiverExpr
	ReceiverUnknown  = "unknown"
)

type Call struct {
	ID           int64
	FileID       int64
	TypeID       int64
	MethodID     *int64
	Name         string
	ReceiverKind string
	ReceiverExpr string
	ArgCount     int
	// FirstArgExpr is the static type expression of the first argument, or
	// "" when it cannot be determined from declared types.
	FirstArgExpr string
	Line         int
	Col          int
}

type Creation struct {
	ID       int64
	FileID   int64
	TypeID   int64
	MethodID *int64
	TypeExpr string
	Line     int
	Col      int
}

// FileFacts is everything stored for one file.
type FileFacts struct {
	File            File
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
}
