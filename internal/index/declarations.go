package index

import (
	"log"
	"slices"
	"strings"

	"github.com/swanson/ruby-lsp/pkg/types"
)

// DeclarationIndexer turns the declaration tree of one source file into
// index entries. Names are nested contextually: a class declared inside a
// module body is stored under Module::Class.
type DeclarationIndexer struct {
	index  *Index
	logger *log.Logger
}

// NewDeclarationIndexer creates a DeclarationIndexer writing into idx.
// A nil logger uses log.Default().
func NewDeclarationIndexer(idx *Index, logger *log.Logger) *DeclarationIndexer {
	if logger == nil {
		logger = log.Default()
	}
	return &DeclarationIndexer{index: idx, logger: logger}
}

// scope is the lexical context of a declaration
type scope struct {
	nesting   []string
	owner     NamespaceEntry  // nil at top level
	singleton *SingletonClass // singleton of owner
	inSelf    bool            // inside class << self
}

// IndexDeclarations indexes the declarations of filePath and returns the
// number of entries added. Callers re-indexing a file must first call
// DeleteByFile on the index.
func (d *DeclarationIndexer) IndexDeclarations(filePath string, decls []types.Declaration) int {
	before := d.index.Len()
	d.walk(filePath, decls, scope{})
	return d.index.Len() - before
}

func (d *DeclarationIndexer) walk(filePath string, decls []types.Declaration, sc scope) {
	for i := range decls {
		decl := &decls[i]
		if err := decl.Validate(); err != nil {
			d.logger.Printf("Warning: skipping declaration %q in %s: %v", decl.Name, filePath, err)
			continue
		}

		switch decl.Kind {
		case types.DeclClass, types.DeclModule:
			d.indexNamespace(filePath, decl, sc)
		case types.DeclSingleton:
			d.indexSingletonBlock(filePath, decl, sc)
		case types.DeclMethod:
			d.indexMethod(filePath, decl, sc)
		case types.DeclConstant, types.DeclTypeAlias, types.DeclInterface, types.DeclGlobal:
			// not modeled
		}
	}
}

func (d *DeclarationIndexer) indexNamespace(filePath string, decl *types.Declaration, sc scope) {
	var nesting []string
	if strings.HasPrefix(decl.Name, separator) {
		nesting = SplitName(decl.Name)
	} else {
		base := sc.nesting
		if sc.inSelf && sc.singleton != nil {
			base = sc.singleton.Nesting()
		}
		nesting = append(slices.Clone(base), SplitName(decl.Name)...)
	}

	own, extends := SplitMixins(decl)
	ns, err := BuildNamespace(decl, nesting, filePath, decl.Superclass, own)
	if err != nil {
		d.logger.Printf("Warning: skipping %s in %s: %v", decl.Name, filePath, err)
		return
	}

	singleton := d.index.AddNamespace(ns, "", extends, d.logger.Printf)

	d.walk(filePath, decl.Members, scope{
		nesting:   nesting,
		owner:     ns,
		singleton: singleton,
	})
}

func (d *DeclarationIndexer) indexSingletonBlock(filePath string, decl *types.Declaration, sc scope) {
	if sc.singleton == nil {
		d.logger.Printf("Warning: skipping class << self outside of a namespace in %s:%d", filePath, decl.Location.StartLine)
		return
	}

	// extend inside class << self includes into the singleton
	for _, m := range decl.Mixins {
		op, err := NewMixinOperation(m.Kind, m.Name)
		if err != nil {
			continue
		}
		if _, ok := op.(Extend); ok {
			d.logger.Printf("Warning: ignoring extend %s inside class << self in %s", m.Name, filePath)
			continue
		}
		if err := d.index.AttachMixin(sc.singleton.Name(), filePath, op); err != nil {
			d.logger.Printf("Warning: dropping %s %s on %s: %v", m.Kind, m.Name, sc.singleton.Name(), err)
		}
	}

	d.walk(filePath, decl.Members, scope{
		nesting:   sc.nesting,
		owner:     sc.owner,
		singleton: sc.singleton,
		inSelf:    true,
	})
}

func (d *DeclarationIndexer) indexMethod(filePath string, decl *types.Declaration, sc scope) {
	var owner NamespaceEntry
	switch {
	case sc.owner == nil:
		// top-level methods are private methods of Object
		if decl.Visibility == "" {
			topLevel := *decl
			topLevel.Visibility = types.VisibilityPrivate
			decl = &topLevel
		}
	case sc.inSelf || decl.Singleton:
		owner = sc.singleton
	default:
		owner = sc.owner
	}
	d.index.Add(BuildMethod(decl, filePath, owner))
}
