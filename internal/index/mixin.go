package index

import (
	"fmt"

	"github.com/swanson/ruby-lsp/pkg/types"
)

// MixinOperation is a closed set of include, prepend and extend operations.
// The target is kept as the name written at the declaration site and is
// resolved against the index on every query.
type MixinOperation interface {
	ModuleName() string
	isMixinOperation()
}

// Include inserts a module after the namespace in its ancestor chain
type Include struct{ Module string }

// Prepend inserts a module before the namespace in its ancestor chain
type Prepend struct{ Module string }

// Extend includes a module into the namespace's singleton class
type Extend struct{ Module string }

func (o Include) ModuleName() string { return o.Module }
func (o Prepend) ModuleName() string { return o.Module }
func (o Extend) ModuleName() string  { return o.Module }

func (Include) isMixinOperation() {}
func (Prepend) isMixinOperation() {}
func (Extend) isMixinOperation()  {}

// NewMixinOperation builds the operation matching a parsed directive
func NewMixinOperation(kind types.MixinKind, module string) (MixinOperation, error) {
	switch kind {
	case types.MixinInclude:
		return Include{Module: module}, nil
	case types.MixinPrepend:
		return Prepend{Module: module}, nil
	case types.MixinExtend:
		return Extend{Module: module}, nil
	default:
		return nil, fmt.Errorf("unknown mixin kind %q", kind)
	}
}

// MixinKindOf returns the directive kind of an operation
func MixinKindOf(op MixinOperation) types.MixinKind {
	switch op.(type) {
	case Include:
		return types.MixinInclude
	case Prepend:
		return types.MixinPrepend
	case Extend:
		return types.MixinExtend
	default:
		panic(fmt.Sprintf("index: unhandled mixin operation %T", op))
	}
}
