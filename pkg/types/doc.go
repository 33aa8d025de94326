// Package types provides shared type definitions for the rbindex server.
//
// This package defines the value types exchanged between the parsers, the
// signature corpus loader and the index: source locations and the
// declaration tree.
//
// # Declaration Tree
//
// Parsers and the corpus loader describe a file as a tree of Declaration
// nodes. Namespace nodes (classes and modules) carry their superclass, mixin
// directives and members; method nodes carry visibility and parameters:
//
//	decl := types.Declaration{
//	    Kind:       types.DeclClass,
//	    Name:       "Foo",
//	    Superclass: "Bar",
//	    Mixins:     []types.MixinDirective{{Kind: types.MixinExtend, Name: "Helpers"}},
//	    Members: []types.Declaration{
//	        {Kind: types.DeclMethod, Name: "call", Visibility: types.VisibilityPrivate},
//	    },
//	}
//
// Kinds the index does not model (constants, type aliases, interfaces,
// globals) are part of the vocabulary so that corpus files round-trip, but
// indexers skip them.
//
// # Locations
//
// Location is a half-open range with 1-based lines and 0-based columns, the
// convention used by the bundled outline parser.
//
// # Validation
//
//	if err := decl.Validate(); err != nil {
//	    // skip the node
//	}
package types
