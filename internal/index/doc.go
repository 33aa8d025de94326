// Package index stores every class, module, singleton class and method
// declaration known to the server and answers definition, ancestor and
// method resolution queries.
//
// # Entries
//
// Entry is a closed set of variants: *Class, *Module, *SingletonClass and
// *Method. Namespaces are stored under their fully qualified name
// (Foo::Bar), methods under their simple name. Because classes and modules
// can be reopened, a name maps to every entry declared for it, in insertion
// order:
//
//	idx := index.New()
//	idx.Add(index.NewClass([]string{"Foo"}, "a.rb", loc, nil, ""))
//	idx.Add(index.NewClass([]string{"Foo"}, "b.rb", loc, nil, "Bar"))
//	entries := idx.Lookup("Foo") // both, a.rb first
//
// Methods point at their owner with an EntryID handle resolved through
// Index.Owner, so the index stays the only owner of entries.
//
// # Invalidation
//
// Re-indexing a file is DeleteByFile followed by adding the file's new
// entries:
//
//	idx.DeleteByFile("a.rb")
//	index.NewDeclarationIndexer(idx, nil).IndexDeclarations("a.rb", decls)
//
// # Ancestors
//
// LinearizedAncestors merges the mixins of every reopening, places
// prepended modules before and included modules after the namespace, then
// follows the superclass chain. Extended modules appear in the singleton
// class chain (Foo::<Class:Foo>). Mixin targets are stored by name and
// resolved on every query, so a module may be mixed in before it is
// indexed. Results are cached until the next mutation.
package index
