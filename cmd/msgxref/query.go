package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jward/msgxref"
	"github.com/jward/msgxref/internal/entry"
)

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Index the source tree and report what was found",
		Long:  "Parses every .java file below --root, skipping files unchanged since the last run when --db is set, and registers all handlers and publishers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, res, err := a.openProject(cmd.Context(), nil)
			if err != nil {
				return a.outputError("scan", err)
			}
			defer p.Close()
			return a.output("scan", scanToCLI(a.root, res))
		},
	}
}

func (a *app) handlersCmd() *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "handlers <type>",
		Short: "List the handlers accepting a message type",
		Long:  "Lists every handler whose handled type accepts the named type or one of its subtypes. <type> is a canonical or simple name.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, err := handlerKindFilter(kinds)
			if err != nil {
				return a.outputError("handlers", err)
			}
			p, _, err := a.openProject(cmd.Context(), nil)
			if err != nil {
				return a.outputError("handlers", err)
			}
			defer p.Close()

			hs, err := p.Coordinator().Query().HandlersFor(cmd.Context(), args[0])
			if err != nil {
				return a.outputError("handlers", err)
			}
			hs = slices.DeleteFunc(hs, func(h msgxref.Handler) bool { return !keep(h.Kind) })
			return a.output("handlers", handlersToCLI(hs))
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only these handler kinds: event|event-sourcing|saga-event|command|query")
	return cmd
}

func (a *app) publishersCmd() *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "publishers <type>",
		Short: "List the publishers of a message type",
		Long:  "Lists every publish site whose published type a handler of the named type would accept. <type> is a canonical or simple name.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, err := publisherKindFilter(kinds)
			if err != nil {
				return a.outputError("publishers", err)
			}
			p, _, err := a.openProject(cmd.Context(), nil)
			if err != nil {
				return a.outputError("publishers", err)
			}
			defer p.Close()

			ps, err := p.Coordinator().Query().PublishersFor(cmd.Context(), args[0])
			if err != nil {
				return a.outputError("publishers", err)
			}
			ps = slices.DeleteFunc(ps, func(p msgxref.Publisher) bool { return !keep(p.Kind) })
			return a.output("publishers", publishersToCLI(ps))
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only these publisher kinds: event-publish|command-dispatch")
	return cmd
}

func (a *app) typesCmd() *cobra.Command {
	var declared bool
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the indexed message types",
		Long:  "Lists every type that has a handler or a publisher with the number of each. With --declared, lists every type declared in the source tree instead.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, _, err := a.openProject(cmd.Context(), nil)
			if err != nil {
				return a.outputError("types", err)
			}
			defer p.Close()

			if declared {
				return a.output("types", declarationsToCLI(p.Model().Declarations()))
			}
			ts, err := p.Coordinator().Query().Types(cmd.Context())
			if err != nil {
				return a.outputError("types", err)
			}
			return a.output("types", typesToCLI(ts))
		},
	}
	cmd.Flags().BoolVar(&declared, "declared", false, "list source declarations instead of message types")
	return cmd
}

func (a *app) commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the types dispatched as commands",
		Long:  "Lists the first parameter types of every command handler. Constructing one of these types is a command dispatch.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, _, err := a.openProject(cmd.Context(), nil)
			if err != nil {
				return a.outputError("commands", err)
			}
			defer p.Close()
			return a.output("commands", p.Coordinator().CommandTypes())
		},
	}
}

func (a *app) annotationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "annotations",
		Short: "Count the method annotations in the source tree",
		Long: "Lists every method annotation by name as written, most used first, and whether a handler rule recognizes it. " +
			"Unrecognized names are candidates for a --rules script.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, _, err := a.openProject(cmd.Context(), nil)
			if err != nil {
				return a.outputError("annotations", err)
			}
			defer p.Close()

			usage, err := p.Model().AnnotationUsage()
			if err != nil {
				return a.outputError("annotations", err)
			}
			return a.output("annotations", annotationsToCLI(usage, p.Rules()))
		},
	}
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <file> <line> [col]",
		Short: "Resolve the handler or publisher at a position",
		Long: "Finds the handler method or publish site at a 1-based line (and optional column) and lists its counterparts: " +
			"the publishers a handler receives from, or the handlers a publisher reaches.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := resolveFilePath(args[0])
			if err != nil {
				return a.outputError("resolve", err)
			}
			line, err := parseIntArg(args[1], "line")
			if err != nil {
				return a.outputError("resolve", err)
			}
			col := 0
			if len(args) == 3 {
				if col, err = parseIntArg(args[2], "col"); err != nil {
					return a.outputError("resolve", err)
				}
			}

			p, _, err := a.openProject(cmd.Context(), nil)
			if err != nil {
				return a.outputError("resolve", err)
			}
			defer p.Close()

			res, found, err := p.ResolveAt(cmd.Context(), file, line, col)
			if err != nil {
				return a.outputError("resolve", err)
			}
			if !found {
				return a.output("resolve", nil)
			}
			return a.output("resolve", resolutionToCLI(res))
		},
	}
}

func handlerKindFilter(names []string) (func(msgxref.HandlerKind) bool, error) {
	if len(names) == 0 {
		return func(msgxref.HandlerKind) bool { return true }, nil
	}
	var kinds []msgxref.HandlerKind
	for _, n := range names {
		k, err := entry.ParseHandlerKind(n)
		if err != nil {
			return nil, fmt.Errorf("invalid --kind: %w", err)
		}
		kinds = append(kinds, k)
	}
	return func(k msgxref.HandlerKind) bool { return slices.Contains(kinds, k) }, nil
}

func publisherKindFilter(names []string) (func(msgxref.PublisherKind) bool, error) {
	if len(names) == 0 {
		return func(msgxref.PublisherKind) bool { return true }, nil
	}
	var kinds []msgxref.PublisherKind
	for _, n := range names {
		k, err := entry.ParsePublisherKind(n)
		if err != nil {
			return nil, fmt.Errorf("invalid --kind: %w", err)
		}
		kinds = append(kinds, k)
	}
	return func(k msgxref.PublisherKind) bool { return slices.Contains(kinds, k) }, nil
}
