package index

import (
	"slices"
	"strings"
)

// Names of the bootstrap hierarchy
const (
	RootClass   = "BasicObject"
	RootObject  = "Object"
	ClassType   = "Class"
	ModuleType  = "Module"
	separator   = "::"
	singletonOp = "<Class:"
)

// SplitName splits a constant path into segments, dropping a leading "::"
func SplitName(name string) []string {
	name = strings.TrimPrefix(name, separator)
	if name == "" {
		return nil
	}
	return strings.Split(name, separator)
}

// JoinName joins segments into a constant path
func JoinName(segments ...string) string {
	return strings.Join(segments, separator)
}

// SimpleName returns the last segment of a constant path
func SimpleName(name string) string {
	if i := strings.LastIndex(name, separator); i >= 0 {
		return name[i+len(separator):]
	}
	return name
}

// SingletonNesting returns the nesting of the singleton class of the
// namespace with the given nesting: nesting + <Class:simple-name>.
func SingletonNesting(nesting []string) []string {
	out := slices.Clone(nesting)
	if len(nesting) == 0 {
		return out
	}
	return append(out, singletonOp+SimpleName(nesting[len(nesting)-1])+">")
}

// SingletonName returns the singleton class name of a fully qualified name
func SingletonName(name string) string {
	return name + separator + singletonOp + SimpleName(name) + ">"
}

// AttachedName returns the namespace a singleton class name belongs to.
// ok is false when name is not a singleton class name.
func AttachedName(name string) (string, bool) {
	i := strings.LastIndex(name, separator)
	if i < 0 {
		return "", false
	}
	last := name[i+len(separator):]
	if !strings.HasPrefix(last, singletonOp) || !strings.HasSuffix(last, ">") {
		return "", false
	}
	return name[:i], true
}

// IsSingletonName reports whether name denotes a singleton class
func IsSingletonName(name string) bool {
	_, ok := AttachedName(name)
	return ok
}
