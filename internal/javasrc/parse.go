package javasrc

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/msgxref/internal/store"
)

// parsed is the result of extracting one compilation unit.
type parsed struct {
	pkg      string
	batch    *store.Batch
	hasError bool
}

// parseSource extracts raw declaration facts from Java source. Type names
// are recorded as written; resolution happens later against the whole
// model.
func parseSource(ctx context.Context, src []byte) (*parsed, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &walker{src: src, batch: store.NewBatch()}
	w.program(root)
	return &parsed{pkg: w.pkg, batch: w.batch, hasError: root.HasError()}, nil
}

type walker struct {
	src   []byte
	pkg   string
	batch *store.Batch
}

// typeScope is an enclosing type declaration during the walk.
type typeScope struct {
	id        int64
	qualified string
	simple    string
	fields    map[string]string
	parent    *typeScope
}

// bodyScope is the innermost code context: a type plus, inside a method,
// the method and its visible variables.
type bodyScope struct {
	typ    *typeScope
	method *int64
	vars   map[string]string
	inAnon bool
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func position(n *sitter.Node) (line, col int) {
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1
}

func (w *walker) program(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_declaration":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				sub := child.NamedChild(j)
				if sub.Type() == "scoped_identifier" || sub.Type() == "identifier" {
					w.pkg = w.text(sub)
					break
				}
			}
		case "import_declaration":
			w.importDecl(child)
		default:
			if isTypeDecl(child.Type()) {
				w.typeDecl(child, nil)
			}
		}
	}
}

func (w *walker) importDecl(n *sitter.Node) {
	imp := store.Import{}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "static":
			imp.Static = true
		case "asterisk":
			imp.Wildcard = true
		case "identifier", "scoped_identifier":
			imp.Name = w.text(child)
		}
	}
	if imp.Name != "" {
		w.batch.AddImport(imp)
	}
}

func isTypeDecl(kind string) bool {
	switch kind {
	case "class_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "annotation_type_declaration":
		return true
	}
	return false
}

var declKinds = map[string]string{
	"class_declaration":           store.KindClass,
	"interface_declaration":       store.KindInterface,
	"enum_declaration":            store.KindEnum,
	"record_declaration":          store.KindRecord,
	"annotation_type_declaration": store.KindAnnotation,
}

// typeDecl records a type and walks its body.
func (w *walker) typeDecl(n *sitter.Node, parent *typeScope) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	simple := w.text(nameNode)
	qualified := simple
	switch {
	case parent != nil:
		qualified = parent.qualified + "." + simple
	case w.pkg != "":
		qualified = w.pkg + "." + simple
	}

	line, col := position(nameNode)
	t := store.Type{Name: simple, Qualified: qualified, Kind: declKinds[n.Type()], Line: line, Col: col}
	if parent != nil {
		t.ParentTypeID = &parent.id
	}
	id := w.batch.AddType(t)

	for _, ann := range w.annotationsOf(n) {
		w.batch.AddTypeAnnotation(store.TypeAnnotation{TypeID: id, Name: w.text(ann.ChildByFieldName("name"))})
	}
	for i, super := range w.supertypesOf(n) {
		w.batch.AddSupertype(store.Supertype{TypeID: id, TypeExpr: super, Ordinal: i})
	}

	ts := &typeScope{id: id, qualified: qualified, simple: simple, parent: parent, fields: make(map[string]string)}
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	w.collectFields(body, ts)
	if n.Type() == "record_declaration" {
		if params := n.ChildByFieldName("parameters"); params != nil {
			for _, p := range w.params(params) {
				ts.fields[p.Name] = p.TypeExpr
			}
		}
	}
	w.typeBody(body, ts)
}

// annotationsOf returns the annotation nodes in a declaration's modifiers.
func (w *walker) annotationsOf(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		mods := n.NamedChild(i)
		if mods.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(mods.NamedChildCount()); j++ {
			a := mods.NamedChild(j)
			if a.Type() == "marker_annotation" || a.Type() == "annotation" {
				out = append(out, a)
			}
		}
	}
	return out
}

func (w *walker) supertypesOf(n *sitter.Node) []string {
	var out []string
	if sc := n.ChildByFieldName("superclass"); sc != nil {
		for i := 0; i < int(sc.NamedChildCount()); i++ {
			out = append(out, w.typeText(sc.NamedChild(i)))
		}
	}
	lists := []*sitter.Node{n.ChildByFieldName("interfaces")}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "extends_interfaces" {
			lists = append(lists, c)
		}
	}
	for _, l := range lists {
		if l == nil {
			continue
		}
		for i := 0; i < int(l.NamedChildCount()); i++ {
			tl := l.NamedChild(i)
			if tl.Type() != "type_list" {
				continue
			}
			for j := 0; j < int(tl.NamedChildCount()); j++ {
				out = append(out, w.typeText(tl.NamedChild(j)))
			}
		}
	}
	switch n.Type() {
	case "enum_declaration":
		out = append(out, "java.lang.Enum")
	case "record_declaration":
		out = append(out, "java.lang.Record")
	}
	return out
}

// typeText renders a type node, dropping an empty diamond.
func (w *walker) typeText(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if n.Type() == "generic_type" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "type_arguments" && c.NamedChildCount() == 0 {
				return w.text(n.NamedChild(0))
			}
		}
	}
	return strings.Join(strings.Fields(w.text(n)), " ")
}

func (w *walker) collectFields(body *sitter.Node, ts *typeScope) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		f := body.NamedChild(i)
		if f.Type() == "enum_body_declarations" {
			w.collectFields(f, ts)
			continue
		}
		if f.Type() != "field_declaration" && f.Type() != "constant_declaration" {
			continue
		}
		typ := w.typeText(f.ChildByFieldName("type"))
		for j := 0; j < int(f.NamedChildCount()); j++ {
			d := f.NamedChild(j)
			if d.Type() == "variable_declarator" {
				ts.fields[w.text(d.ChildByFieldName("name"))] = typ
			}
		}
	}
}

func (w *walker) typeBody(body *sitter.Node, ts *typeScope) {
	static := &bodyScope{typ: ts}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch kind := member.Type(); {
		case isTypeDecl(kind):
			w.typeDecl(member, ts)
		case kind == "method_declaration" || kind == "constructor_declaration" || kind == "compact_constructor_declaration":
			w.methodDecl(member, ts)
		case kind == "enum_body_declarations":
			w.typeBody(member, ts)
		case kind == "field_declaration" || kind == "constant_declaration" ||
			kind == "static_initializer" || kind == "block" || kind == "enum_constant":
			w.code(member, static)
		}
	}
}

func (w *walker) params(n *sitter.Node) []store.MethodParam {
	var out []store.MethodParam
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "formal_parameter":
			out = append(out, store.MethodParam{
				Ordinal:  len(out),
				Name:     w.text(p.ChildByFieldName("name")),
				TypeExpr: w.typeText(p.ChildByFieldName("type")),
			})
		case "spread_parameter":
			mp := store.MethodParam{Ordinal: len(out)}
			for j := 0; j < int(p.NamedChildCount()); j++ {
				c := p.NamedChild(j)
				switch {
				case c.Type() == "modifiers":
				case c.Type() == "variable_declarator":
					mp.Name = w.text(c.ChildByFieldName("name"))
				case mp.TypeExpr == "":
					mp.TypeExpr = w.typeText(c) + "..."
				}
			}
			out = append(out, mp)
		}
	}
	return out
}

func (w *walker) methodDecl(n *sitter.Node, ts *typeScope) {
	nameNode := n.ChildByFieldName("name")
	name := ts.simple
	if nameNode != nil {
		name = w.text(nameNode)
	} else {
		nameNode = n
	}
	line, col := position(nameNode)
	end := n.EndPoint()
	constructor := n.Type() != "method_declaration"
	mid := w.batch.AddMethod(store.Method{
		TypeID:      ts.id,
		Name:        name,
		Constructor: constructor,
		Line:        line,
		Col:         col,
		EndLine:     int(end.Row) + 1,
		EndCol:      int(end.Column) + 1,
	})

	for _, a := range w.annotationsOf(n) {
		w.annotation(a, mid)
	}

	vars := make(map[string]string)
	if params := n.ChildByFieldName("parameters"); params != nil {
		for _, p := range w.params(params) {
			p.MethodID = mid
			w.batch.AddParam(p)
			vars[p.Name] = p.TypeExpr
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.code(body, &bodyScope{typ: ts, method: &mid, vars: vars})
	}
}

func (w *walker) annotation(a *sitter.Node, methodID int64) {
	line, col := position(a)
	aid := w.batch.AddAnnotation(store.Annotation{
		MethodID: methodID,
		Name:     w.text(a.ChildByFieldName("name")),
		Line:     line,
		Col:      col,
	})
	args := a.ChildByFieldName("arguments")
	if args == nil {
		return
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		v := args.NamedChild(i)
		if isComment(v) {
			continue
		}
		key := "value"
		if v.Type() == "element_value_pair" {
			key = w.text(v.ChildByFieldName("key"))
			v = v.ChildByFieldName("value")
		}
		w.batch.AddAnnotationArg(w.annotationValue(aid, key, v))
	}
}

func (w *walker) annotationValue(aid int64, key string, v *sitter.Node) store.AnnotationArg {
	arg := store.AnnotationArg{AnnotationID: aid, Key: key, ValueKind: store.ValueOther}
	switch {
	case v == nil || v.IsMissing() || strings.TrimSpace(w.text(v)) == "":
		arg.ValueKind = store.ValueEmpty
	case v.Type() == "class_literal" && v.NamedChildCount() > 0:
		arg.ValueKind = store.ValueClass
		arg.ValueExpr = w.typeText(v.NamedChild(0))
	default:
		arg.ValueExpr = w.text(v)
	}
	return arg
}

func isComment(n *sitter.Node) bool {
	return n.Type() == "line_comment" || n.Type() == "block_comment"
}

// code walks statements and expressions, recording calls and constructor
// invocations with the static types visible in scope.
func (w *walker) code(n *sitter.Node, sc *bodyScope) {
	switch kind := n.Type(); {
	case isTypeDecl(kind):
		w.typeDecl(n, sc.typ)
		return
	case kind == "local_variable_declaration" || kind == "field_declaration" && sc.method != nil:
		w.declareLocals(n, sc)
	case kind == "enhanced_for_statement":
		if name := n.ChildByFieldName("name"); name != nil {
			sc.declare(w.text(name), w.typeText(n.ChildByFieldName("type")))
		}
	case kind == "catch_formal_parameter":
		if name := n.ChildByFieldName("name"); name != nil {
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); c.Type() == "catch_type" && c.NamedChildCount() > 0 {
					sc.declare(w.text(name), w.typeText(c.NamedChild(0)))
				}
			}
		}
	case kind == "lambda_expression":
		if params := n.ChildByFieldName("parameters"); params != nil && params.Type() == "formal_parameters" {
			for _, p := range w.params(params) {
				sc.declare(p.Name, p.TypeExpr)
			}
		}
	case kind == "method_declaration" && sc.inAnon:
		// Member of an anonymous class: calls stay attributed to the
		// enclosing method.
		if params := n.ChildByFieldName("parameters"); params != nil {
			for _, p := range w.params(params) {
				sc.declare(p.Name, p.TypeExpr)
			}
		}
		if body := n.ChildByFieldName("body"); body != nil {
			w.code(body, sc)
		}
		return
	case kind == "method_invocation":
		w.call(n, sc)
	case kind == "object_creation_expression":
		w.creation(n, sc)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "class_body" {
				anon := *sc
				anon.inAnon = true
				for j := 0; j < int(c.NamedChildCount()); j++ {
					w.code(c.NamedChild(j), &anon)
				}
				continue
			}
			w.code(c, sc)
		}
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.code(n.NamedChild(i), sc)
	}
}

func (sc *bodyScope) declare(name, typ string) {
	if name == "" {
		return
	}
	if sc.vars == nil {
		sc.vars = make(map[string]string)
	}
	sc.vars[name] = typ
}

func (sc *bodyScope) lookup(name string) string {
	if t, ok := sc.vars[name]; ok {
		return t
	}
	for ts := sc.typ; ts != nil; ts = ts.parent {
		if t, ok := ts.fields[name]; ok {
			return t
		}
	}
	return ""
}

func (w *walker) declareLocals(n *sitter.Node, sc *bodyScope) {
	typ := w.typeText(n.ChildByFieldName("type"))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		d := n.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		t := typ
		if t == "var" {
			t = w.staticType(d.ChildByFieldName("value"), sc)
		}
		sc.declare(w.text(d.ChildByFieldName("name")), t)
	}
}

func (w *walker) call(n *sitter.Node, sc *bodyScope) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	line, col := position(nameNode)
	c := store.Call{
		TypeID:   sc.typ.id,
		MethodID: sc.method,
		Name:     w.text(nameNode),
		Line:     line,
		Col:      col,
	}
	c.ReceiverKind, c.ReceiverExpr = w.receiver(n.ChildByFieldName("object"), sc)
	if args := n.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			a := args.NamedChild(i)
			if isComment(a) {
				continue
			}
			if c.ArgCount == 0 {
				c.FirstArgExpr = w.staticType(a, sc)
			}
			c.ArgCount++
		}
	}
	w.batch.AddCall(c)
}

func (w *walker) creation(n *sitter.Node, sc *bodyScope) {
	typ := creationType(n)
	if typ == nil {
		return
	}
	line, col := position(n)
	w.batch.AddCreation(store.Creation{
		TypeID:   sc.typ.id,
		MethodID: sc.method,
		TypeExpr: w.typeText(typ),
		Line:     line,
		Col:      col,
	})
}

// creationType finds the instantiated type, which some grammar versions
// nest one level down.
func creationType(n *sitter.Node) *sitter.Node {
	if t := n.ChildByFieldName("type"); t != nil {
		return t
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if t := n.NamedChild(i).ChildByFieldName("type"); t != nil {
			return t
		}
	}
	return nil
}

// receiver classifies the object of a method invocation.
func (w *walker) receiver(obj *sitter.Node, sc *bodyScope) (kind, expr string) {
	if obj == nil {
		return store.ReceiverImplicit, ""
	}
	switch obj.Type() {
	case "this", "super":
		return store.ReceiverImplicit, ""
	case "identifier":
		name := w.text(obj)
		if t := sc.lookup(name); t != "" {
			return store.ReceiverTyped, t
		}
		if isTypeName(name) {
			return store.ReceiverType, name
		}
		return store.ReceiverUnknown, ""
	case "field_access":
		if o := obj.ChildByFieldName("object"); o != nil && o.Type() == "this" {
			if t := sc.lookup(w.text(obj.ChildByFieldName("field"))); t != "" {
				return store.ReceiverTyped, t
			}
			return store.ReceiverUnknown, ""
		}
		text := strings.Join(strings.Fields(w.text(obj)), "")
		segs := strings.Split(text, ".")
		if isDotted(segs) && isTypeName(segs[len(segs)-1]) {
			return store.ReceiverType, text
		}
		return store.ReceiverUnknown, ""
	}
	if t := w.staticType(obj, sc); t != "" {
		return store.ReceiverTyped, t
	}
	return store.ReceiverUnknown, ""
}

// staticType returns the declared type of an expression when it follows
// directly from the source, or "".
func (w *walker) staticType(e *sitter.Node, sc *bodyScope) string {
	if e == nil {
		return ""
	}
	switch e.Type() {
	case "object_creation_expression":
		return w.typeText(creationType(e))
	case "cast_expression":
		return w.typeText(e.ChildByFieldName("type"))
	case "parenthesized_expression":
		if e.NamedChildCount() > 0 {
			return w.staticType(e.NamedChild(0), sc)
		}
	case "identifier":
		return sc.lookup(w.text(e))
	case "field_access":
		if o := e.ChildByFieldName("object"); o != nil && o.Type() == "this" {
			return sc.lookup(w.text(e.ChildByFieldName("field")))
		}
	case "this":
		return sc.typ.qualified
	case "string_literal", "text_block":
		return "String"
	case "class_literal":
		if e.NamedChildCount() > 0 {
			return "Class<" + w.typeText(e.NamedChild(0)) + ">"
		}
	}
	return ""
}

func isTypeName(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}

func isDotted(segs []string) bool {
	for _, s := range segs {
		if s == "" {
			return false
		}
		for _, c := range s {
			if !(c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
				return false
			}
		}
	}
	return true
}
