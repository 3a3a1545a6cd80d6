package store

import (
	"database/sql"
	"fmt"
)

// CommitFile replaces everything stored for f.Path with the contents of
// batch within a single transaction. Fake (negative) IDs are remapped to
// real IDs and every reference inside the batch is rewritten.
//
// Insert order respects FK dependencies:
//  1. File (old row deleted first; dependants cascade)
//  2. Imports
//  3. Types (parents precede nested types)
//  4. Supertypes and type annotations
//  5. Methods, then their params and annotations
//  6. Annotation args
//  7. Calls and creations
func (s *Store) CommitFile(f *File, batch *Batch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit file: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM files WHERE path = ?", f.Path); err != nil {
		return fmt.Errorf("commit file: delete %s: %w", f.Path, err)
	}
	fileID, err := insertTx(tx,
		"INSERT INTO files (path, package, hash, generation, last_indexed) VALUES (?, ?, ?, ?, ?)",
		f.Path, f.Package, f.Hash, f.Generation, f.LastIndexed,
	)
	if err != nil {
		return fmt.Errorf("commit file: insert %s: %w", f.Path, err)
	}
	f.ID = fileID

	fakeToReal := make(map[int64]int64)
	remap := func(id int64) (int64, error) {
		if id >= 0 {
			return id, nil
		}
		realID, ok := fakeToReal[id]
		if !ok {
			return 0, fmt.Errorf("fake id %d not committed", id)
		}
		return realID, nil
	}
	remapPtr := func(id *int64) (*int64, error) {
		if id == nil {
			return nil, nil
		}
		realID, err := remap(*id)
		if err != nil {
			return nil, err
		}
		return &realID, nil
	}

	for _, imp := range batch.Imports {
		if _, err := insertTx(tx,
			"INSERT INTO imports (file_id, name, is_static, is_wildcard) VALUES (?, ?, ?, ?)",
			fileID, imp.Name, imp.Static, imp.Wildcard,
		); err != nil {
			return fmt.Errorf("commit file: import %q: %w", imp.Name, err)
		}
	}

	for _, t := range batch.Types {
		parent, err := remapPtr(t.ParentTypeID)
		if err != nil {
			return fmt.Errorf("commit file: type %q: %w", t.Qualified, err)
		}
		realID, err := insertTx(tx,
			"INSERT INTO types (file_id, name, qualified, kind, parent_type_id, line, col) VALUES (?, ?, ?, ?, ?, ?, ?)",
			fileID, t.Name, t.Qualified, t.Kind, parent, t.Line, t.Col,
		)
		if err != nil {
			return fmt.Errorf("commit file: type %q: %w", t.Qualified, err)
		}
		fakeToReal[t.ID] = realID
	}

	for _, st := range batch.Supertypes {
		typeID, err := remap(st.TypeID)
		if err != nil {
			return fmt.Errorf("commit file: supertype %q: %w", st.TypeExpr, err)
		}
		if _, err := insertTx(tx,
			"INSERT INTO supertypes (type_id, type_expr, ordinal) VALUES (?, ?, ?)",
			typeID, st.TypeExpr, st.Ordinal,
		); err != nil {
			return fmt.Errorf("commit file: supertype %q: %w", st.TypeExpr, err)
		}
	}

	for _, ta := range batch.TypeAnnotations {
		typeID, err := remap(ta.TypeID)
		if err != nil {
			return fmt.Errorf("commit file: type annotation %q: %w", ta.Name, err)
		}
		if _, err := insertTx(tx,
			"INSERT INTO type_annotations (type_id, name) VALUES (?, ?)", typeID, ta.Name,
		); err != nil {
			return fmt.Errorf("commit file: type annotation %q: %w", ta.Name, err)
		}
	}

	for _, m := range batch.Methods {
		typeID, err := remap(m.TypeID)
		if err != nil {
			return fmt.Errorf("commit file: method %q: %w", m.Name, err)
		}
		realID, err := insertTx(tx,
			`INSERT INTO methods (file_id, type_id, name, is_constructor, line, col, end_line, end_col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, typeID, m.Name, m.Constructor, m.Line, m.Col, m.EndLine, m.EndCol,
		)
		if err != nil {
			return fmt.Errorf("commit file: method %q: %w", m.Name, err)
		}
		fakeToReal[m.ID] = realID
	}

	for _, p := range batch.Params {
		methodID, err := remap(p.MethodID)
		if err != nil {
			return fmt.Errorf("commit file: param %q: %w", p.Name, err)
		}
		if _, err := insertTx(tx,
			"INSERT INTO method_params (method_id, ordinal, name, type_expr) VALUES (?, ?, ?, ?)",
			methodID, p.Ordinal, p.Name, p.TypeExpr,
		); err != nil {
			return fmt.Errorf("commit file: param %q: %w", p.Name, err)
		}
	}

	for _, a := range batch.Annotations {
		methodID, err := remap(a.MethodID)
		if err != nil {
			return fmt.Errorf("commit file: annotation %q: %w", a.Name, err)
		}
		realID, err := insertTx(tx,
			"INSERT INTO annotations (method_id, name, line, col) VALUES (?, ?, ?, ?)",
			methodID, a.Name, a.Line, a.Col,
		)
		if err != nil {
			return fmt.Errorf("commit file: annotation %q: %w", a.Name, err)
		}
		fakeToReal[a.ID] = realID
	}

	for _, arg := range batch.AnnotationArgs {
		annID, err := remap(arg.AnnotationID)
		if err != nil {
			return fmt.Errorf("commit file: annotation arg %q: %w", arg.Key, err)
		}
		if _, err := insertTx(tx,
			"INSERT INTO annotation_args (annotation_id, key, value_kind, value_expr) VALUES (?, ?, ?, ?)",
			annID, arg.Key, arg.ValueKind, arg.ValueExpr,
		); err != nil {
			return fmt.Errorf("commit file: annotation arg %q: %w", arg.Key, err)
		}
	}

	for _, c := range batch.Calls {
		typeID, err := remap(c.TypeID)
		if err != nil {
			return fmt.Errorf("commit file: call %q: %w", c.Name, err)
		}
		methodID, err := remapPtr(c.MethodID)
		if err != nil {
			return fmt.Errorf("commit file: call %q: %w", c.Name, err)
		}
		if _, err := insertTx(tx,
			`INSERT INTO calls (file_id, type_id, method_id, name, receiver_kind, receiver_expr,
				arg_count, first_arg_expr, line, col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, typeID, methodID, c.Name, c.ReceiverKind, c.ReceiverExpr,
			c.ArgCount, c.FirstArgExpr, c.Line, c.Col,
		); err != nil {
			return fmt.Errorf("commit file: call %q: %w", c.Name, err)
		}
	}

	for _, c := range batch.Creations {
		typeID, err := remap(c.TypeID)
		if err != nil {
			return fmt.Errorf("commit file: creation %q: %w", c.TypeExpr, err)
		}
		methodID, err := remapPtr(c.MethodID)
		if err != nil {
			return fmt.Errorf("commit file: creation %q: %w", c.TypeExpr, err)
		}
		if _, err := insertTx(tx,
			"INSERT INTO creations (file_id, type_id, method_id, type_expr, line, col) VALUES (?, ?, ?, ?, ?, ?)",
			fileID, typeID, methodID, c.TypeExpr, c.Line, c.Col,
		); err != nil {
			return fmt.Errorf("commit file: creation %q: %w", c.TypeExpr, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

func insertTx(tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
