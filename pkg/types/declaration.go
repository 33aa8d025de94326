package types

import (
	"errors"
	"strings"
)

// DeclKind represents the kind of a parsed declaration node
type DeclKind string

const (
	DeclClass     DeclKind = "class"
	DeclModule    DeclKind = "module"
	DeclMethod    DeclKind = "method"
	DeclSingleton DeclKind = "singleton_class" // class << self
	DeclConstant  DeclKind = "constant"
	DeclTypeAlias DeclKind = "type_alias"
	DeclInterface DeclKind = "interface"
	DeclGlobal    DeclKind = "global"
)

// Visibility represents method visibility
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
)

// MixinKind represents a mixin directive kind
type MixinKind string

const (
	MixinInclude MixinKind = "include"
	MixinPrepend MixinKind = "prepend"
	MixinExtend  MixinKind = "extend"
)

// ParameterKind classifies a method parameter
type ParameterKind string

const (
	ParamRequired    ParameterKind = "required"
	ParamOptional    ParameterKind = "optional"
	ParamRest        ParameterKind = "rest"
	ParamKeyword     ParameterKind = "keyword"
	ParamOptionalKey ParameterKind = "optional_keyword"
	ParamKeywordRest ParameterKind = "keyword_rest"
	ParamBlock       ParameterKind = "block"
)

// Parameter describes one method parameter as reported by the parser.
// The index stores parameters without interpreting them.
type Parameter struct {
	Name string        `json:"name"`
	Kind ParameterKind `json:"kind"`
}

// MixinDirective is an include, prepend or extend inside a namespace body
type MixinDirective struct {
	Kind MixinKind `json:"kind"`
	Name string    `json:"name"`
}

// Declaration is one node of the declaration tree produced by a parser or
// by the signature corpus loader.
type Declaration struct {
	Kind     DeclKind `json:"kind"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
	Comments []string `json:"comments,omitempty"`

	// Namespaces
	Superclass string           `json:"superclass,omitempty"`
	Mixins     []MixinDirective `json:"mixins,omitempty"`
	Members    []Declaration    `json:"members,omitempty"`

	// Methods
	Visibility Visibility  `json:"visibility,omitempty"`
	Singleton  bool        `json:"singleton,omitempty"` // def self.name
	Parameters []Parameter `json:"parameters,omitempty"`
}

// ValidateKind checks if the declaration kind is known
func (d *Declaration) ValidateKind() error {
	switch d.Kind {
	case DeclClass, DeclModule, DeclMethod, DeclSingleton,
		DeclConstant, DeclTypeAlias, DeclInterface, DeclGlobal:
		return nil
	default:
		return ErrUnknownKind
	}
}

// Validate performs structural validation of a single node (members are not visited)
func (d *Declaration) Validate() error {
	if err := d.ValidateKind(); err != nil {
		return err
	}

	if d.Kind != DeclSingleton && strings.TrimSpace(d.Name) == "" {
		return ErrMissingName
	}

	if d.Kind != DeclMethod && d.Visibility != "" {
		return errors.New("only methods can have a visibility")
	}

	if d.Kind != DeclClass && d.Superclass != "" {
		return errors.New("only classes can have a superclass")
	}

	for _, m := range d.Mixins {
		switch m.Kind {
		case MixinInclude, MixinPrepend, MixinExtend:
		default:
			return ErrInvalidMixin
		}
		if m.Name == "" {
			return ErrInvalidMixin
		}
	}

	switch d.Visibility {
	case "", VisibilityPublic, VisibilityPrivate, VisibilityProtected:
	default:
		return ErrInvalidVisibility
	}

	return d.Location.Validate()
}

// IsNamespace reports whether the node declares a class or module
func (d *Declaration) IsNamespace() bool {
	return d.Kind == DeclClass || d.Kind == DeclModule
}

// EffectiveVisibility returns the declared visibility, defaulting to public
func (d *Declaration) EffectiveVisibility() Visibility {
	if d.Visibility == "" {
		return VisibilityPublic
	}
	return d.Visibility
}
