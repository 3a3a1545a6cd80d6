// Package scripts bundles the Risor rules presets shipped with msgxref.
//
// Each preset extends the default recognition table the same way a user
// rules script does: handler_annotation, publish_method and friends.
package scripts

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed presets/*.risor
var files embed.FS

// lib is imported by the presets and is not a preset itself.
const lib = "lib"

// Presets returns the preset scripts rooted at their directory, so that
// "spring.risor" and "import lib" both resolve.
func Presets() fs.FS {
	sub, err := fs.Sub(files, "presets")
	if err != nil {
		panic(err)
	}
	return sub
}

// Names lists the selectable presets in order.
func Names() []string {
	entries, err := fs.ReadDir(files, "presets")
	if err != nil {
		panic(err)
	}
	var names []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		if name == lib {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a selectable preset.
func Has(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// File returns the script path of preset name inside Presets.
func File(name string) string { return name + ".risor" }
