package main

import (
	"strings"

	"github.com/jward/msgxref"
	"github.com/jward/msgxref/internal/extract"
	"github.com/jward/msgxref/internal/javasrc"
)

// CLIResult is the top-level envelope for every command.
type CLIResult struct {
	Command string `json:"command" yaml:"command"`
	Results any    `json:"results" yaml:"results"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLILocation is a 1-based source position.
type CLILocation struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
}

// CLIHandler is a handler in output form.
type CLIHandler struct {
	Type     string      `json:"type" yaml:"type"`
	Kind     string      `json:"kind" yaml:"kind"`
	Method   string      `json:"method" yaml:"method"`
	Internal bool        `json:"internal" yaml:"internal"`
	Location CLILocation `json:"location" yaml:"location"`
}

// CLIPublisher is a publisher in output form.
type CLIPublisher struct {
	Type      string      `json:"type" yaml:"type"`
	Kind      string      `json:"kind" yaml:"kind"`
	Enclosing string      `json:"enclosing,omitempty" yaml:"enclosing,omitempty"`
	Location  CLILocation `json:"location" yaml:"location"`
}

// CLIType is one indexed message type with its entry counts.
type CLIType struct {
	Name       string `json:"name" yaml:"name"`
	Handlers   int    `json:"handlers" yaml:"handlers"`
	Publishers int    `json:"publishers" yaml:"publishers"`
	Declared   bool   `json:"declared" yaml:"declared"`
}

// CLIDeclaration is a source-declared type.
type CLIDeclaration struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       string      `json:"kind" yaml:"kind"`
	Supertypes []string    `json:"supertypes,omitempty" yaml:"supertypes,omitempty"`
	Location   CLILocation `json:"location" yaml:"location"`
}

// CLIAnnotation is a method annotation with its use count and whether any
// handler rule recognizes it.
type CLIAnnotation struct {
	Name       string `json:"name" yaml:"name"`
	Count      int    `json:"count" yaml:"count"`
	Recognized bool   `json:"recognized" yaml:"recognized"`
}

// CLIScan summarises an index run.
type CLIScan struct {
	Root       string `json:"root" yaml:"root"`
	Files      int    `json:"files" yaml:"files"`
	Handlers   int    `json:"handlers" yaml:"handlers"`
	Publishers int    `json:"publishers" yaml:"publishers"`
	Commands   int    `json:"commands" yaml:"commands"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
}

// CLIResolution is the element at a position and its counterparts.
type CLIResolution struct {
	Handler    *CLIHandler    `json:"handler,omitempty" yaml:"handler,omitempty"`
	Publisher  *CLIPublisher  `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Handlers   []CLIHandler   `json:"handlers,omitempty" yaml:"handlers,omitempty"`
	Publishers []CLIPublisher `json:"publishers,omitempty" yaml:"publishers,omitempty"`
}

func locationToCLI(loc msgxref.Location) CLILocation {
	return CLILocation{File: loc.File, Line: loc.Line, Column: loc.Column}
}

func handlerToCLI(h msgxref.Handler) CLIHandler {
	return CLIHandler{
		Type:     h.HandledType.String(),
		Kind:     h.Kind.String(),
		Method:   h.Method,
		Internal: h.Internal,
		Location: locationToCLI(h.Location()),
	}
}

func handlersToCLI(hs []msgxref.Handler) []CLIHandler {
	out := make([]CLIHandler, 0, len(hs))
	for _, h := range hs {
		out = append(out, handlerToCLI(h))
	}
	return out
}

func publisherToCLI(p msgxref.Publisher) CLIPublisher {
	return CLIPublisher{
		Type:      p.PublishedType.String(),
		Kind:      p.Kind.String(),
		Enclosing: p.Enclosing,
		Location:  locationToCLI(p.Location()),
	}
}

func publishersToCLI(ps []msgxref.Publisher) []CLIPublisher {
	out := make([]CLIPublisher, 0, len(ps))
	for _, p := range ps {
		out = append(out, publisherToCLI(p))
	}
	return out
}

func typesToCLI(ts []msgxref.TypeSummary) []CLIType {
	out := make([]CLIType, 0, len(ts))
	for _, t := range ts {
		out = append(out, CLIType{Name: t.Name, Handlers: t.Handlers, Publishers: t.Publishers, Declared: t.Declared})
	}
	return out
}

func declarationsToCLI(ds []javasrc.Declaration) []CLIDeclaration {
	out := make([]CLIDeclaration, 0, len(ds))
	for _, d := range ds {
		out = append(out, CLIDeclaration{Name: d.Name, Kind: d.Kind, Supertypes: d.Supertypes, Location: locationToCLI(d.Location)})
	}
	return out
}

func annotationsToCLI(as []javasrc.AnnotationCount, rules *extract.Rules) []CLIAnnotation {
	out := make([]CLIAnnotation, 0, len(as))
	for _, a := range as {
		out = append(out, CLIAnnotation{Name: a.Name, Count: a.Count, Recognized: recognized(rules, a.Name)})
	}
	return out
}

// recognized reports whether a handler rule matches name, written either
// qualified or by its simple name.
func recognized(rules *extract.Rules, name string) bool {
	if rules.KnownAnnotation(name) {
		return true
	}
	for _, h := range rules.Handlers {
		if strings.HasSuffix(h.Name, "."+name) {
			return true
		}
	}
	return false
}

func resolutionToCLI(r msgxref.Resolution) CLIResolution {
	var out CLIResolution
	if r.Handler != nil {
		h := handlerToCLI(*r.Handler)
		out.Handler = &h
		out.Publishers = publishersToCLI(r.Publishers)
	}
	if r.Publisher != nil {
		p := publisherToCLI(*r.Publisher)
		out.Publisher = &p
		out.Handlers = handlersToCLI(r.Handlers)
	}
	return out
}

func scanToCLI(root string, res msgxref.ScanResult) CLIScan {
	return CLIScan{
		Root:       root,
		Files:      res.Files,
		Handlers:   res.Handlers,
		Publishers: res.Publishers,
		Commands:   res.Commands,
		DurationMS: res.Duration.Milliseconds(),
	}
}
