package signature

import (
	"log"
	"strings"

	"github.com/swanson/ruby-lsp/internal/index"
	"github.com/swanson/ruby-lsp/pkg/types"
)

// CorpusIndexer seeds an Index with the builtin namespaces and methods of a
// signature corpus. Corpus declarations are always fully qualified, so a
// class named File::Stat is indexed with the single-segment nesting
// ["File::Stat"] regardless of where it appears in the tree.
type CorpusIndexer struct {
	index  *index.Index
	logger *log.Logger
}

// NewCorpusIndexer creates a CorpusIndexer writing into idx.
// A nil logger uses log.Default().
func NewCorpusIndexer(idx *index.Index, logger *log.Logger) *CorpusIndexer {
	if logger == nil {
		logger = log.Default()
	}
	return &CorpusIndexer{index: idx, logger: logger}
}

// IndexAll indexes every corpus file in order and returns the number of
// entries added.
func (c *CorpusIndexer) IndexAll(files []CorpusFile) int {
	total := 0
	for _, f := range files {
		total += c.IndexFile(f)
	}
	return total
}

// IndexFile indexes the declarations of one corpus file. Declarations the
// index does not model are skipped and logged; the walk always continues.
func (c *CorpusIndexer) IndexFile(f CorpusFile) int {
	before := c.index.Len()
	c.walk(f.FilePath, f.Declarations, nil, nil)
	return c.index.Len() - before
}

func (c *CorpusIndexer) walk(filePath string, decls []types.Declaration, owner index.NamespaceEntry, singleton *index.SingletonClass) {
	for i := range decls {
		decl := &decls[i]
		if err := decl.Validate(); err != nil {
			c.logger.Printf("Warning: skipping corpus declaration %q in %s: %v", decl.Name, filePath, err)
			continue
		}

		switch decl.Kind {
		case types.DeclClass, types.DeclModule:
			c.indexNamespace(filePath, decl)
		case types.DeclMethod:
			c.indexMethod(filePath, decl, owner, singleton)
		default:
			c.logger.Printf("Skipping unsupported %s declaration %q in %s", decl.Kind, decl.Name, filePath)
		}
	}
}

func (c *CorpusIndexer) indexNamespace(filePath string, decl *types.Declaration) {
	name := strings.TrimPrefix(decl.Name, "::")
	nesting := []string{name}

	var parentClass, singletonParent string
	switch decl.Kind {
	case types.DeclClass:
		parentClass, singletonParent = classParents(name, decl.Superclass)
	case types.DeclModule:
		singletonParent = index.ModuleType
	}

	own, extends := index.SplitMixins(decl)
	ns, err := index.BuildNamespace(decl, nesting, filePath, parentClass, own)
	if err != nil {
		c.logger.Printf("Warning: skipping %s in %s: %v", decl.Name, filePath, err)
		return
	}

	singleton := c.index.AddNamespace(ns, singletonParent, extends, func(format string, args ...any) {
		c.logger.Printf("Warning: "+format, args...)
	})

	c.walk(filePath, decl.Members, ns, singleton)
}

// classParents returns the superclass of a corpus class and the superclass
// of its singleton class. The root class has no superclass and its
// singleton inherits from Class.
func classParents(name, superclass string) (parent, singletonParent string) {
	if name == index.RootClass {
		return "", index.ClassType
	}
	parent = strings.TrimPrefix(superclass, "::")
	if parent == "" {
		parent = index.RootObject
	}
	return parent, index.SingletonName(parent)
}

func (c *CorpusIndexer) indexMethod(filePath string, decl *types.Declaration, owner index.NamespaceEntry, singleton *index.SingletonClass) {
	if owner == nil {
		c.logger.Printf("Warning: skipping method %s outside of a namespace in %s", decl.Name, filePath)
		return
	}
	if decl.Singleton {
		owner = singleton
	}
	c.index.Add(index.BuildMethod(decl, filePath, owner))
}
