// Package msgxref cross-references message publishers and handlers in
// Axon-style Java code. It extracts the handled type of every annotated
// handler method and the published type of every apply/registerEvent call or
// command construction, indexes both by type, and answers "who handles
// this?" and "who publishes this?" under assignable-from semantics.
//
// # Pipeline
//
//  1. Index: the source model ([javasrc.Model]) parses .java files with
//     tree-sitter and keeps their raw facts in a SQLite session store.
//     Unchanged files are skipped by content hash.
//
//  2. Scan: [Coordinator.Scan] extracts handlers from every method, builds
//     the registry of dispatched command types, then extracts publishers
//     from every call and constructor invocation.
//
//  3. Query: [Coordinator.FindHandlersFor] and
//     [Coordinator.FindPublishersFor] match types polymorphically, unwrapping
//     one level of single-argument generic wrapper.
//
// # Usage
//
//	p, err := msgxref.OpenProject(msgxref.ProjectConfig{DB: "xref.db"})
//	if err != nil { ... }
//	defer p.Close()
//
//	ctx := context.Background()
//	_, err = p.Index(ctx, "path/to/project")
//	handlers, err := p.Coordinator().Query().HandlersFor(ctx, "com.acme.OrderCreated")
//
// # Staleness
//
// Entries hold references into one generation of a source file. Editing or
// deleting the file invalidates them; the indexes drop stale entries on the
// next registration and never return them from a query.
//
// [javasrc.Model]: github.com/jward/msgxref/internal/javasrc
package msgxref
