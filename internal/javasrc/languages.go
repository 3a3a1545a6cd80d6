package javasrc

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// Lazily initialized on first call via sync.Once.
var (
	javaGrammar *sitter.Language
	grammarOnce sync.Once
)

func grammar() *sitter.Language {
	grammarOnce.Do(func() {
		javaGrammar = java.GetLanguage()
	})
	return javaGrammar
}

// IsJavaFile reports whether path has a .java extension.
func IsJavaFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".java")
}

// javaLang lists the java.lang types that resolve without an import.
var javaLang = map[string]bool{
	"Object": true, "String": true, "Void": true, "Class": true, "Enum": true, "Record": true,
	"Integer": true, "Long": true, "Short": true, "Byte": true, "Character": true,
	"Boolean": true, "Double": true, "Float": true, "Number": true, "Iterable": true,
	"Comparable": true, "CharSequence": true, "Runnable": true, "Throwable": true,
	"Exception": true, "RuntimeException": true, "Error": true, "Thread": true,
	"Override": true, "Deprecated": true, "SuppressWarnings": true, "FunctionalInterface": true,
}

var primitives = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true, "int": true,
	"long": true, "float": true, "double": true, "void": true,
}
