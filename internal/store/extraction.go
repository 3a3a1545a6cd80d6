package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

const fileCols = "id, path, package, hash, generation, last_indexed"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	if err := scanner.Scan(&f.ID, &f.Path, &f.Package, &f.Hash, &f.Generation, &f.LastIndexed); err != nil {
		return nil, err
	}
	return f, nil
}

// FileByPath returns the stored file, or nil when the path is unknown.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every stored file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile removes a file and, through cascading keys, all of its facts.
func (s *Store) DeleteFile(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}

// --- Fact loading ---

// LoadFacts reads every fact stored for a file. Each query is drained before
// the next one starts so a single-connection database never deadlocks.
func (s *Store) LoadFacts(fileID int64) (*FileFacts, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE id = ?", fileID))
	if err != nil {
		return nil, fmt.Errorf("load facts: file %d: %w", fileID, err)
	}
	facts := &FileFacts{File: *f}

	loaders := []struct {
		name  string
		query string
		scan  func(*sql.Rows) error
	}{
		{"imports", "SELECT id, file_id, name, is_static, is_wildcard FROM imports WHERE file_id = ? ORDER BY id",
			func(r *sql.Rows) error {
				var v Import
				if err := r.Scan(&v.ID, &v.FileID, &v.Name, &v.Static, &v.Wildcard); err != nil {
					return err
				}
				facts.Imports = append(facts.Imports, v)
				return nil
			}},
		{"types", "SELECT id, file_id, name, qualified, kind, parent_type_id, line, col FROM types WHERE file_id = ? ORDER BY id",
			func(r *sql.Rows) error {
				var v Type
				if err := r.Scan(&v.ID, &v.FileID, &v.Name, &v.Qualified, &v.Kind, &v.ParentTypeID, &v.Line, &v.Col); err != nil {
					return err
				}
				facts.Types = append(facts.Types, v)
				return nil
			}},
		{"supertypes", `SELECT s.id, s.type_id, s.type_expr, s.ordinal FROM supertypes s
			JOIN types t ON t.id = s.type_id WHERE t.file_id = ? ORDER BY s.type_id, s.ordinal`,
			func(r *sql.Rows) error {
				var v Supertype
				if err := r.Scan(&v.ID, &v.TypeID, &v.TypeExpr, &v.Ordinal); err != nil {
					return err
				}
				facts.Supertypes = append(facts.Supertypes, v)
				return nil
			}},
		{"type annotations", `SELECT a.id, a.type_id, a.name FROM type_annotations a
			JOIN types t ON t.id = a.type_id WHERE t.file_id = ? ORDER BY a.id`,
			func(r *sql.Rows) error {
				var v TypeAnnotation
				if err := r.Scan(&v.ID, &v.TypeID, &v.Name); err != nil {
					return err
				}
				facts.TypeAnnotations = append(facts.TypeAnnotations, v)
				return nil
			}},
		{"methods", `SELECT id, file_id, type_id, name, is_constructor, line, col, end_line, end_col
			FROM methods WHERE file_id = ? ORDER BY id`,
			func(r *sql.Rows) error {
				var v Method
				if err := r.Scan(&v.ID, &v.FileID, &v.TypeID, &v.Name, &v.Constructor, &v.Line, &v.Col, &v.EndLine, &v.EndCol); err != nil {
					return err
				}
				facts.Methods = append(facts.Methods, v)
				return nil
			}},
		{"params", `SELECT p.id, p.method_id, p.ordinal, p.name, p.type_expr FROM method_params p
			JOIN methods m ON m.id = p.method_id WHERE m.file_id = ? ORDER BY p.method_id, p.ordinal`,
			func(r *sql.Rows) error {
				var v MethodParam
				if err := r.Scan(&v.ID, &v.MethodID, &v.Ordinal, &v.Name, &v.TypeExpr); err != nil {
					return err
				}
				facts.Params = append(facts.Params, v)
				return nil
			}},
		{"annotations", `SELECT a.id, a.method_id, a.name, a.line, a.col FROM annotations a
			JOIN methods m ON m.id = a.method_id WHERE m.file_id = ? ORDER BY a.id`,
			func(r *sql.Rows) error {
				var v Annotation
				if err := r.Scan(&v.ID, &v.MethodID, &v.Name, &v.Line, &v.Col); err != nil {
					return err
				}
				facts.Annotations = append(facts.Annotations, v)
				return nil
			}},
		{"annotation args", `SELECT g.id, g.annotation_id, g.key, g.value_kind, g.value_expr FROM annotation_args g
			JOIN annotations a ON a.id = g.annotation_id
			JOIN methods m ON m.id = a.method_id WHERE m.file_id = ? ORDER BY g.id`,
			func(r *sql.Rows) error {
				var v AnnotationArg
				if err := r.Scan(&v.ID, &v.AnnotationID, &v.Key, &v.ValueKind, &v.ValueExpr); err != nil {
					return err
				}
				facts.AnnotationArgs = append(facts.AnnotationArgs, v)
				return nil
			}},
		{"calls", `SELECT id, file_id, type_id, method_id, name, receiver_kind, receiver_expr,
			arg_count, first_arg_expr, line, col FROM calls WHERE file_id = ? ORDER BY id`,
			func(r *sql.Rows) error {
				var v Call
				if err := r.Scan(&v.ID, &v.FileID, &v.TypeID, &v.MethodID, &v.Name, &v.ReceiverKind, &v.ReceiverExpr,
					&v.ArgCount, &v.FirstArgExpr, &v.Line, &v.Col); err != nil {
					return err
				}
				facts.Calls = append(facts.Calls, v)
				return nil
			}},
		{"creations", `SELECT id, file_id, type_id, method_id, type_expr, line, col
			FROM creations WHERE file_id = ? ORDER BY id`,
			func(r *sql.Rows) error {
				var v Creation
				if err := r.Scan(&v.ID, &v.FileID, &v.TypeID, &v.MethodID, &v.TypeExpr, &v.Line, &v.Col); err != nil {
					return err
				}
				facts.Creations = append(facts.Creations, v)
				return nil
			}},
	}

	for _, l := range loaders {
		if err := s.queryEach(l.query, []any{fileID}, l.scan); err != nil {
			return nil, fmt.Errorf("load facts: %s: %w", l.name, err)
		}
	}
	return facts, nil
}

func (s *Store) queryEach(query string, args []any, fn func(*sql.Rows) error) error {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// --- Summary queries ---

// AnnotationUsage counts method annotations by name as written.
func (s *Store) AnnotationUsage() (map[string]int, error) {
	out := make(map[string]int)
	err := s.queryEach("SELECT name, COUNT(*) FROM annotations GROUP BY name", nil, func(r *sql.Rows) error {
		var name string
		var n int
		if err := r.Scan(&name, &n); err != nil {
			return err
		}
		out[name] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("annotation usage: %w", err)
	}
	return out, nil
}
