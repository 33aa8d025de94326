package index

import (
	"fmt"

	"github.com/swanson/ruby-lsp/pkg/types"
)

// SplitMixins converts a declaration's mixin directives into the operations
// recorded on the namespace itself (include, prepend) and the names of the
// modules to include into its singleton class (extend).
func SplitMixins(decl *types.Declaration) (own []MixinOperation, extends []string) {
	for _, m := range decl.Mixins {
		switch m.Kind {
		case types.MixinInclude:
			own = append(own, Include{Module: m.Name})
		case types.MixinPrepend:
			own = append(own, Prepend{Module: m.Name})
		case types.MixinExtend:
			extends = append(extends, m.Name)
		}
	}
	return own, extends
}

// BuildNamespace creates the class or module entry for decl with the given
// nesting. parentClass is only used for classes.
func BuildNamespace(decl *types.Declaration, nesting []string, filePath, parentClass string, mixins []MixinOperation) (NamespaceEntry, error) {
	switch decl.Kind {
	case types.DeclClass:
		return NewClass(nesting, filePath, decl.Location, decl.Comments, parentClass, mixins...), nil
	case types.DeclModule:
		return NewModule(nesting, filePath, decl.Location, decl.Comments, mixins...), nil
	default:
		return nil, fmt.Errorf("%s is not a namespace declaration", decl.Kind)
	}
}

// BuildMethod creates the method entry for decl owned by owner
func BuildMethod(decl *types.Declaration, filePath string, owner NamespaceEntry) *Method {
	return NewMethod(decl.Name, filePath, decl.Location, decl.Comments, decl.Parameters, decl.EffectiveVisibility(), owner)
}

// AddNamespace adds ns and its synthesized singleton class, then records
// every extended module as an include on the singleton. Extends whose
// singleton cannot be found are reported through warn and dropped.
func (idx *Index) AddNamespace(ns NamespaceEntry, singletonParent string, extends []string, warn func(format string, args ...any)) *SingletonClass {
	idx.Add(ns)

	singleton := NewSingletonClass(ns.Nesting(), ns.FilePath(), ns.Location(), nil, singletonParent)
	idx.Add(singleton)

	for _, module := range extends {
		if err := idx.AttachMixin(singleton.Name(), ns.FilePath(), Include{Module: module}); err != nil {
			if warn != nil {
				warn("dropping extend %s on %s: %v", module, ns.Name(), err)
			}
		}
	}
	return singleton
}
