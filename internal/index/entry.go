package index

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/swanson/ruby-lsp/pkg/types"
)

// EntryID is a handle to an entry owned by an Index. Zero means "none".
type EntryID uint64

// Entry is a closed set of declaration records: *Class, *Module,
// *SingletonClass and *Method.
type Entry interface {
	ID() EntryID
	// Name is the key the entry is stored under: the ::-joined nesting for
	// namespaces, the simple name for methods.
	Name() string
	FilePath() string
	Location() types.Location
	Comments() []string

	base() *entryBase
}

// NamespaceEntry is implemented by *Class, *Module and *SingletonClass
type NamespaceEntry interface {
	Entry
	Nesting() []string
	MixinOperations() []MixinOperation
	namespace() *Namespace
}

type entryBase struct {
	id       EntryID
	filePath string
	location types.Location
	comments []string
}

func (b *entryBase) ID() EntryID              { return b.id }
func (b *entryBase) FilePath() string         { return b.filePath }
func (b *entryBase) Location() types.Location { return b.location }
func (b *entryBase) Comments() []string       { return slices.Clone(b.comments) }
func (b *entryBase) base() *entryBase         { return b }

// Namespace holds the state shared by classes, modules and singleton classes
type Namespace struct {
	entryBase
	nesting []string

	mu     sync.RWMutex
	mixins []MixinOperation
}

// Name returns the fully qualified name
func (n *Namespace) Name() string { return strings.Join(n.nesting, "::") }

// Nesting returns the lexical nesting, outermost first
func (n *Namespace) Nesting() []string { return slices.Clone(n.nesting) }

// MixinOperations returns the mixin operations in declaration order
func (n *Namespace) MixinOperations() []MixinOperation {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.mixins)
}

func (n *Namespace) appendMixin(op MixinOperation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mixins = append(n.mixins, op)
}

func (n *Namespace) namespace() *Namespace { return n }

func newNamespace(nesting []string, filePath string, loc types.Location, comments []string, mixins []MixinOperation) Namespace {
	return Namespace{
		entryBase: entryBase{filePath: filePath, location: loc, comments: slices.Clone(comments)},
		nesting:   slices.Clone(nesting),
		mixins:    slices.Clone(mixins),
	}
}

// Class is one declaration site of a class
type Class struct {
	Namespace
	parentClass string
}

// NewClass creates a class entry. An empty parentClass means the
// declaration did not name a superclass.
func NewClass(nesting []string, filePath string, loc types.Location, comments []string, parentClass string, mixins ...MixinOperation) *Class {
	return &Class{
		Namespace:   newNamespace(nesting, filePath, loc, comments, mixins),
		parentClass: parentClass,
	}
}

// ParentClass returns the superclass as written, or "" when none was declared
func (c *Class) ParentClass() string { return c.parentClass }

// Module is one declaration site of a module
type Module struct {
	Namespace
}

// NewModule creates a module entry
func NewModule(nesting []string, filePath string, loc types.Location, comments []string, mixins ...MixinOperation) *Module {
	return &Module{Namespace: newNamespace(nesting, filePath, loc, comments, mixins)}
}

// SingletonClass is the metaclass of a class or module. Its last nesting
// segment is always <Class:simple-name>.
type SingletonClass struct {
	Namespace
	parentClass string
}

// NewSingletonClass creates a singleton entry for the namespace with the
// given nesting. parentClass may be empty, in which case ancestor queries
// derive it from the attached namespace.
func NewSingletonClass(attachedNesting []string, filePath string, loc types.Location, comments []string, parentClass string, mixins ...MixinOperation) *SingletonClass {
	return &SingletonClass{
		Namespace:   newNamespace(SingletonNesting(attachedNesting), filePath, loc, comments, mixins),
		parentClass: parentClass,
	}
}

// ParentClass returns the explicit singleton superclass, or ""
func (s *SingletonClass) ParentClass() string { return s.parentClass }

// AttachedName returns the name of the namespace this singleton belongs to
func (s *SingletonClass) AttachedName() string {
	return strings.Join(s.nesting[:len(s.nesting)-1], "::")
}

// Method is one method definition
type Method struct {
	entryBase
	name       string
	parameters []types.Parameter
	visibility types.Visibility
	owner      EntryID
	ownerName  string
}

// NewMethod creates a method entry owned by the given namespace entry.
// A nil owner is used for top-level methods, which are recorded as members
// of Object without an owner handle.
func NewMethod(name, filePath string, loc types.Location, comments []string, params []types.Parameter, visibility types.Visibility, owner NamespaceEntry) *Method {
	if visibility == "" {
		visibility = types.VisibilityPublic
	}
	m := &Method{
		entryBase:  entryBase{filePath: filePath, location: loc, comments: slices.Clone(comments)},
		name:       name,
		parameters: slices.Clone(params),
		visibility: visibility,
		ownerName:  RootObject,
	}
	if owner != nil {
		m.owner = owner.ID()
		m.ownerName = owner.Name()
	}
	return m
}

// Name returns the method's simple name
func (m *Method) Name() string { return m.name }

// Parameters returns the parser-supplied parameter list
func (m *Method) Parameters() []types.Parameter { return slices.Clone(m.parameters) }

// Visibility returns the method visibility
func (m *Method) Visibility() types.Visibility { return m.visibility }

// OwnerID returns the handle of the owning namespace entry, or 0
func (m *Method) OwnerID() EntryID { return m.owner }

// OwnerName returns the fully qualified name of the owning namespace
func (m *Method) OwnerName() string { return m.ownerName }

// Signature renders the method name with its parameter list
func (m *Method) Signature() string {
	parts := make([]string, 0, len(m.parameters))
	for _, p := range m.parameters {
		switch p.Kind {
		case types.ParamOptional:
			parts = append(parts, p.Name+" = ...")
		case types.ParamRest:
			parts = append(parts, "*"+p.Name)
		case types.ParamKeyword:
			parts = append(parts, p.Name+":")
		case types.ParamOptionalKey:
			parts = append(parts, p.Name+": ...")
		case types.ParamKeywordRest:
			parts = append(parts, "**"+p.Name)
		case types.ParamBlock:
			parts = append(parts, "&"+p.Name)
		default:
			parts = append(parts, p.Name)
		}
	}
	return fmt.Sprintf("%s(%s)", m.name, strings.Join(parts, ", "))
}

// Kind returns a short label for an entry variant
func Kind(e Entry) string {
	switch e.(type) {
	case *Class:
		return "class"
	case *Module:
		return "module"
	case *SingletonClass:
		return "singleton_class"
	case *Method:
		return "method"
	default:
		panic(fmt.Sprintf("index: unhandled entry %T", e))
	}
}
