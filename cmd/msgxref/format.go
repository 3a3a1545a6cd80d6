package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text", "yaml"}

// validateFormat checks that the --format value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}

// writeResult writes result to w in format.
func writeResult(w io.Writer, format string, result CLIResult) error {
	switch format {
	case "text":
		return writeResultText(w, result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

// writeResultText dispatches to the text formatter for the result type.
func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIHandler:
		formatHandlersText(w, v)
	case []CLIPublisher:
		formatPublishersText(w, v)
	case []CLIType:
		formatTypesText(w, v)
	case []CLIDeclaration:
		formatDeclarationsText(w, v)
	case []CLIAnnotation:
		formatAnnotationsText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case CLIScan:
		formatScanText(w, v)
	case CLIResolution:
		formatResolutionText(w, v)
	case nil:
		// Nothing at the position.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func formatLocation(l CLILocation) string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

func formatHandlersText(w io.Writer, hs []CLIHandler) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tTYPE\tMETHOD\tINTERNAL\tLOCATION")
	for _, h := range hs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", h.Kind, h.Type, h.Method, h.Internal, formatLocation(h.Location))
	}
	tw.Flush()
}

func formatPublishersText(w io.Writer, ps []CLIPublisher) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tTYPE\tENCLOSING\tLOCATION")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Kind, p.Type, p.Enclosing, formatLocation(p.Location))
	}
	tw.Flush()
}

func formatTypesText(w io.Writer, ts []CLIType) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tHANDLERS\tPUBLISHERS\tDECLARED")
	for _, t := range ts {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", t.Name, t.Handlers, t.Publishers, t.Declared)
	}
	tw.Flush()
}

func formatDeclarationsText(w io.Writer, ds []CLIDeclaration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSUPERTYPES\tLOCATION")
	for _, d := range ds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Kind, strings.Join(d.Supertypes, ","), formatLocation(d.Location))
	}
	tw.Flush()
}

func formatAnnotationsText(w io.Writer, as []CLIAnnotation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ANNOTATION\tCOUNT\tRECOGNIZED")
	for _, a := range as {
		fmt.Fprintf(tw, "%s\t%d\t%t\n", a.Name, a.Count, a.Recognized)
	}
	tw.Flush()
}

func formatScanText(w io.Writer, s CLIScan) {
	fmt.Fprintf(w, "Indexed %s: %d files, %d handlers, %d publishers, %d command types (%dms)\n",
		s.Root, s.Files, s.Handlers, s.Publishers, s.Commands, s.DurationMS)
}

func formatResolutionText(w io.Writer, r CLIResolution) {
	switch {
	case r.Handler != nil:
		fmt.Fprintf(w, "Handler %s %s(%s) at %s\n", r.Handler.Kind, r.Handler.Method, r.Handler.Type, formatLocation(r.Handler.Location))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Publishers:")
		formatPublishersText(w, r.Publishers)
	case r.Publisher != nil:
		fmt.Fprintf(w, "Publisher %s %s at %s\n", r.Publisher.Kind, r.Publisher.Type, formatLocation(r.Publisher.Location))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Handlers:")
		formatHandlersText(w, r.Handlers)
	}
}
