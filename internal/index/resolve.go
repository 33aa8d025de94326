package index

import (
	"fmt"
	"strings"
)

// Resolve resolves a constant reference the way the language looks it up
// lexically: a leading "::" means top level; otherwise every enclosing
// scope of nesting is tried from the innermost outwards, then the top level.
// ok is false when no candidate is an indexed namespace; name is then
// returned unchanged.
func (idx *Index) Resolve(name string, nesting []string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.resolveLocked(name, nesting)
}

func (idx *Index) resolveLocked(name string, nesting []string) (string, bool) {
	if strings.HasPrefix(name, separator) {
		top := strings.TrimPrefix(name, separator)
		return top, idx.existsLocked(top)
	}

	for i := len(nesting); i > 0; i-- {
		candidate := JoinName(JoinName(nesting[:i]...), name)
		if idx.existsLocked(candidate) {
			return candidate, true
		}
	}

	return name, idx.existsLocked(name)
}

// Definitions resolves name from the given lexical scope and returns every
// entry declared under the resolved name.
func (idx *Index) Definitions(name string, nesting []string) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	resolved, ok := idx.resolveLocked(name, nesting)
	if !ok {
		// methods and unindexed singleton names are looked up verbatim
		resolved = strings.TrimPrefix(name, separator)
	}
	out := make([]Entry, len(idx.entries[resolved]))
	copy(out, idx.entries[resolved])
	return out
}

// ResolveMethod returns the definitions of method that a call on receiver
// dispatches to: the ones owned by the first ancestor of receiver that
// defines the method. The result is empty when no ancestor defines it.
func (idx *Index) ResolveMethod(method, receiver string) ([]*Method, error) {
	ancestors, err := idx.LinearizedAncestors(receiver)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := idx.methodsLocked(method)
	for _, ancestor := range ancestors {
		var found []*Method
		for _, m := range candidates {
			if m.ownerName == ancestor {
				found = append(found, m)
			}
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}

// MethodsOf lists the methods of a namespace across all of its reopenings.
// With inherited set, methods of every ancestor follow in lookup order and
// only the first definition of each method name is kept.
func (idx *Index) MethodsOf(namespace string, inherited bool) ([]*Method, error) {
	owners := []string{namespace}
	if inherited {
		ancestors, err := idx.LinearizedAncestors(namespace)
		if err != nil {
			return nil, err
		}
		owners = ancestors
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !inherited && !idx.existsLocked(namespace) && len(idx.members[namespace]) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, namespace)
	}

	seen := make(map[string]bool)
	var out []*Method
	for _, owner := range owners {
		for _, id := range idx.members[owner] {
			m, ok := idx.byID[id].(*Method)
			if !ok {
				continue
			}
			if inherited {
				if seen[m.name] {
					continue
				}
				seen[m.name] = true
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func (idx *Index) methodsLocked(name string) []*Method {
	var out []*Method
	for _, e := range idx.entries[name] {
		if m, ok := e.(*Method); ok {
			out = append(out, m)
		}
	}
	return out
}
