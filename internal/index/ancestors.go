package index

import (
	"fmt"
	"slices"
)

// LinearizedAncestors returns the method lookup order of a class, module or
// singleton class, starting with the namespace itself (or its prepended
// modules).
//
// All entries stored under name contribute: their mixin operations are
// merged in declaration order. Prepended modules come before the
// namespace, included modules after it and before the superclass chain.
// Extended modules only affect the singleton class chain. Mixin targets and
// superclasses that are not indexed are skipped, and a namespace that
// reaches itself through its mixins or superclasses is visited once, so the
// result may be incomplete but is always finite.
func (idx *Index) LinearizedAncestors(name string) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if cached, ok := idx.ancestors.Get(name); ok {
		return slices.Clone(cached), nil
	}

	if !idx.existsLocked(name) {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, name)
	}

	l := &linearizer{
		idx:        idx,
		inProgress: make(map[string]bool),
		done:       make(map[string][]string),
	}
	result := l.linearize(name)

	// Written under the read lock so a concurrent writer cannot purge the
	// cache between computing and storing.
	idx.ancestors.Add(name, result)
	return slices.Clone(result), nil
}

type linearizer struct {
	idx        *Index
	inProgress map[string]bool
	done       map[string][]string
}

func (l *linearizer) linearize(name string) []string {
	if l.inProgress[name] {
		return nil
	}
	if result, ok := l.done[name]; ok {
		return result
	}
	l.inProgress[name] = true
	defer delete(l.inProgress, name)

	namespaces := l.idx.namespacesLocked(name)
	ancestors := []string{name}
	main := 0

	insert := func(at int, names []string) {
		ancestors = slices.Insert(ancestors, at, names...)
	}

	for _, ns := range namespaces {
		for _, op := range ns.MixinOperations() {
			switch op.(type) {
			case Prepend:
				target, ok := l.idx.resolveLocked(op.ModuleName(), ns.Nesting())
				if !ok {
					continue
				}
				linearized := l.linearize(target)
				insert(0, linearized)
				main += len(linearized)
			case Include:
				target, ok := l.idx.resolveLocked(op.ModuleName(), ns.Nesting())
				if !ok {
					continue
				}
				insert(main+1, l.linearize(target))
			case Extend:
				// applied to the singleton chain below
			default:
				panic(fmt.Sprintf("index: unhandled mixin operation %T", op))
			}
		}
	}

	// extend on a namespace is include on its singleton class
	if attached, ok := AttachedName(name); ok {
		for _, ns := range l.idx.namespacesLocked(attached) {
			for _, op := range ns.MixinOperations() {
				if _, ok := op.(Extend); !ok {
					continue
				}
				target, ok := l.idx.resolveLocked(op.ModuleName(), ns.Nesting())
				if !ok {
					continue
				}
				insert(main+1, l.linearize(target))
			}
		}
	}

	if parent := l.idx.parentOfLocked(name, namespaces); parent != "" {
		ancestors = append(ancestors, l.linearize(parent)...)
	}

	result := dedupeAncestors(ancestors, main)
	l.done[name] = result
	return result
}

// parentOfLocked returns the resolved superclass of name, or "" when the
// namespace has none or it is not indexed.
func (idx *Index) parentOfLocked(name string, namespaces []NamespaceEntry) string {
	if attached, ok := AttachedName(name); ok {
		for _, ns := range namespaces {
			if s, ok := ns.(*SingletonClass); ok && s.parentClass != "" {
				if idx.existsLocked(s.parentClass) {
					return s.parentClass
				}
			}
		}
		return idx.singletonParentLocked(attached)
	}

	parent, declared := idx.declaredParentLocked(name, namespaces)
	if !declared {
		return ""
	}
	if resolved, ok := idx.resolveLocked(parent.name, parent.scope); ok {
		return resolved
	}
	return ""
}

type parentRef struct {
	name  string
	scope []string
}

// declaredParentLocked merges the superclass across reopenings: the first
// class entry that names a superclass wins. Classes that never name one
// inherit from Object, except the root class.
func (idx *Index) declaredParentLocked(name string, namespaces []NamespaceEntry) (parentRef, bool) {
	isClass := false
	for _, ns := range namespaces {
		c, ok := ns.(*Class)
		if !ok {
			continue
		}
		isClass = true
		if c.parentClass != "" {
			nesting := c.Nesting()
			return parentRef{name: c.parentClass, scope: nesting[:len(nesting)-1]}, true
		}
	}
	if !isClass || name == RootClass {
		return parentRef{}, false
	}
	return parentRef{name: RootObject}, true
}

// singletonParentLocked derives the superclass of the singleton class of
// attached: Module for modules, Class for the root class, otherwise the
// singleton class of the attached namespace's superclass.
func (idx *Index) singletonParentLocked(attached string) string {
	namespaces := idx.namespacesLocked(attached)
	if len(namespaces) == 0 {
		return ""
	}

	hasClass := false
	for _, ns := range namespaces {
		switch ns.(type) {
		case *Class, *SingletonClass:
			hasClass = true
		}
	}
	if !hasClass {
		return idx.existingOrEmptyLocked(ModuleType)
	}

	parent := idx.parentOfLocked(attached, namespaces)
	if parent == "" {
		return idx.existingOrEmptyLocked(ClassType)
	}
	return SingletonName(parent)
}

func (idx *Index) existingOrEmptyLocked(name string) string {
	if idx.existsLocked(name) {
		return name
	}
	return ""
}

// namespacesLocked returns the namespace entries stored under name
func (idx *Index) namespacesLocked(name string) []NamespaceEntry {
	bucket := idx.entries[name]
	out := make([]NamespaceEntry, 0, len(bucket))
	for _, e := range bucket {
		if ns, ok := e.(NamespaceEntry); ok {
			out = append(out, ns)
		}
	}
	return out
}

// existsLocked reports whether name is an indexed namespace or the
// singleton class of one
func (idx *Index) existsLocked(name string) bool {
	for _, e := range idx.entries[name] {
		if _, ok := e.(NamespaceEntry); ok {
			return true
		}
	}
	if attached, ok := AttachedName(name); ok {
		return idx.existsLocked(attached)
	}
	return false
}

// dedupeAncestors removes repeated names around the namespace at index
// main. Prepended modules keep their first occurrence and are dropped from
// the rest of the chain, so they always stay in front of the namespace.
// After the namespace the last occurrence wins.
func dedupeAncestors(ancestors []string, main int) []string {
	prepended := make(map[string]bool, main)
	out := make([]string, 0, len(ancestors))
	for _, name := range ancestors[:main] {
		if prepended[name] {
			continue
		}
		prepended[name] = true
		out = append(out, name)
	}

	for _, name := range dedupeKeepLast(ancestors[main:]) {
		if !prepended[name] {
			out = append(out, name)
		}
	}
	return out
}

// dedupeKeepLast drops repeated names, keeping the last occurrence, which
// matches how a module already present further up the chain is not
// inserted again.
func dedupeKeepLast(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		if seen[names[i]] {
			continue
		}
		seen[names[i]] = true
		out = append(out, names[i])
	}
	slices.Reverse(out)
	return out
}
