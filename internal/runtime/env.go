package runtime

import (
	"strings"

	"github.com/binschema/bbp/internal/compiler"
)

// env implements expr.Environment against one parse's live state: the
// named-field values seen so far, keyed by their dotted path. A plain Go map
// gives O(1) lookups; no auxiliary ordering structure is needed.
type env struct {
	pathIndex map[string]int // dotted path -> its index in the compiled named-field vector
	values    map[string]int32
	provider  ValueProvider
	reader    streamPositioner
}

type streamPositioner interface {
	Counter() uint64
}

func newEnv(names []compiler.NamedField, provider ValueProvider, reader streamPositioner) *env {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n.Path] = i
	}
	return &env{
		pathIndex: idx,
		values:    make(map[string]int32),
		provider:  provider,
		reader:    reader,
	}
}

// Lookup resolves name against scope, then each enclosing scope in turn,
// falling back outward until a match is found or the root scope is reached.
func (e *env) Lookup(scope, name string, visibleUpTo int) (int32, bool) {
	s := scope
	for {
		path := name
		if s != "" {
			path = s + "." + name
		}
		if idx, ok := e.pathIndex[path]; ok && idx < visibleUpTo {
			if v, ok := e.values[path]; ok {
				return v, true
			}
		}
		if s == "" {
			return 0, false
		}
		if i := strings.LastIndexByte(s, '.'); i >= 0 {
			s = s[:i]
		} else {
			s = ""
		}
	}
}

func (e *env) External(name string) (int32, bool) {
	if e.provider == nil {
		return 0, false
	}
	return e.provider.Value(name)
}

func (e *env) StreamPos() int32 {
	return int32(e.reader.Counter())
}

// record stores the just-parsed value of a named integer scalar so later
// expressions (including, within one struct-array iteration, a sibling
// field's length expression) can see it.
func (e *env) record(path string, v int32) {
	e.values[path] = v
}
