package runtime

import (
	"context"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/extract"
)

// stringArgs converts every argument to a Go string or returns a Risor
// error naming the offending position.
func stringArgs(fn string, args []object.Object, want int) ([]string, *object.Error) {
	if len(args) != want {
		return nil, object.NewArgsError(fn, want, len(args))
	}
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := a.(*object.String)
		if !ok {
			return nil, object.Errorf("%s: argument %d must be a string, got %s", fn, i+1, a.Type())
		}
		if s.Value() == "" {
			return nil, object.Errorf("%s: argument %d must not be empty", fn, i+1)
		}
		out[i] = s.Value()
	}
	return out, nil
}

// makeHandlerAnnotationFn creates "handler_annotation".
//
// handler_annotation(name, kind)
//
// kind is one of the handler kind names, e.g. "event" or "command".
func makeHandlerAnnotationFn(rules *extract.Rules) *object.Builtin {
	return object.NewBuiltin("handler_annotation", func(ctx context.Context, args ...object.Object) object.Object {
		vals, errObj := stringArgs("handler_annotation", args, 2)
		if errObj != nil {
			return errObj
		}
		kind, err := entry.ParseHandlerKind(vals[1])
		if err != nil {
			return object.Errorf("handler_annotation: %v", err)
		}
		rules.AddHandlerAnnotation(vals[0], kind)
		return object.Nil
	})
}

// makePublishMethodFn creates "publish_method".
//
// publish_method(owner, method, kind)
//
// kind is "event-publish" or "command-dispatch".
func makePublishMethodFn(rules *extract.Rules) *object.Builtin {
	return object.NewBuiltin("publish_method", func(ctx context.Context, args ...object.Object) object.Object {
		vals, errObj := stringArgs("publish_method", args, 3)
		if errObj != nil {
			return errObj
		}
		kind, err := entry.ParsePublisherKind(vals[2])
		if err != nil {
			return object.Errorf("publish_method: %v", err)
		}
		rules.AddPublishMethod(vals[0], vals[1], kind)
		return object.Nil
	})
}

// makeNameFn creates a one-argument builtin that registers a name.
func makeNameFn(name string, add func(string)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		vals, errObj := stringArgs(name, args, 1)
		if errObj != nil {
			return errObj
		}
		add(vals[0])
		return object.Nil
	})
}

// makeLibrarySupertypeFn creates "library_supertype".
//
// library_supertype(sub, super)
func makeLibrarySupertypeFn(rules *extract.Rules) *object.Builtin {
	return object.NewBuiltin("library_supertype", func(ctx context.Context, args ...object.Object) object.Object {
		vals, errObj := stringArgs("library_supertype", args, 2)
		if errObj != nil {
			return errObj
		}
		rules.AddLibrarySupertype(vals[0], vals[1])
		return object.Nil
	})
}

// logObject provides log.Info/Warn/Error methods for scripts.
type logObject struct {
	logger *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, zap.String("source", "rules"))
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, zap.String("source", "rules"))
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, zap.String("source", "rules"))
}
