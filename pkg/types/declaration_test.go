package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeclarationValidate(t *testing.T) {
	loc := NewLocation(1, 3, 0, 3)

	tests := []struct {
		name    string
		decl    Declaration
		wantErr error
	}{
		{
			name: "valid class",
			decl: Declaration{Kind: DeclClass, Name: "Foo", Superclass: "Bar", Location: loc},
		},
		{
			name: "valid private method",
			decl: Declaration{Kind: DeclMethod, Name: "call", Visibility: VisibilityPrivate, Location: loc},
		},
		{
			name: "singleton block needs no name",
			decl: Declaration{Kind: DeclSingleton, Location: loc},
		},
		{
			name:    "unknown kind",
			decl:    Declaration{Kind: "struct", Name: "Foo", Location: loc},
			wantErr: ErrUnknownKind,
		},
		{
			name:    "missing name",
			decl:    Declaration{Kind: DeclModule, Name: "  ", Location: loc},
			wantErr: ErrMissingName,
		},
		{
			name: "mixin without target",
			decl: Declaration{Kind: DeclModule, Name: "M", Location: loc,
				Mixins: []MixinDirective{{Kind: MixinInclude}}},
			wantErr: ErrInvalidMixin,
		},
		{
			name: "unknown mixin kind",
			decl: Declaration{Kind: DeclModule, Name: "M", Location: loc,
				Mixins: []MixinDirective{{Kind: "using", Name: "Refinements"}}},
			wantErr: ErrInvalidMixin,
		},
		{
			name:    "unknown visibility",
			decl:    Declaration{Kind: DeclMethod, Name: "m", Visibility: "internal", Location: loc},
			wantErr: ErrInvalidVisibility,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decl.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeclarationValidate_StructuralRules(t *testing.T) {
	loc := NewLocation(1, 1, 0, 10)

	module := Declaration{Kind: DeclModule, Name: "M", Superclass: "Object", Location: loc}
	assert.Error(t, module.Validate(), "modules cannot have a superclass")

	class := Declaration{Kind: DeclClass, Name: "C", Visibility: VisibilityPrivate, Location: loc}
	assert.Error(t, class.Validate(), "only methods carry visibility")

	noLocation := Declaration{Kind: DeclClass, Name: "C"}
	assert.Error(t, noLocation.Validate())
}

func TestEffectiveVisibility(t *testing.T) {
	d := Declaration{Kind: DeclMethod, Name: "m"}
	assert.Equal(t, VisibilityPublic, d.EffectiveVisibility())

	d.Visibility = VisibilityProtected
	assert.Equal(t, VisibilityProtected, d.EffectiveVisibility())
}

func TestLocation(t *testing.T) {
	loc := NewLocation(2, 4, 2, 5)
	assert.NoError(t, loc.Validate())

	assert.True(t, loc.Contains(2, 2))
	assert.True(t, loc.Contains(3, 0))
	assert.True(t, loc.Contains(4, 4))
	assert.False(t, loc.Contains(4, 5), "end is exclusive")
	assert.False(t, loc.Contains(2, 1))
	assert.False(t, loc.Contains(5, 0))

	assert.Error(t, NewLocation(3, 2, 0, 0).Validate())
	assert.Error(t, NewLocation(1, 1, 4, 2).Validate())
	assert.Error(t, NewLocation(0, 1, 0, 0).Validate())
}

func TestParseResultCountDeclarations(t *testing.T) {
	pr := &ParseResult{
		Declarations: []Declaration{
			{Kind: DeclModule, Name: "A", Members: []Declaration{
				{Kind: DeclClass, Name: "B", Members: []Declaration{{Kind: DeclMethod, Name: "m"}}},
			}},
			{Kind: DeclMethod, Name: "top"},
		},
	}
	assert.Equal(t, 4, pr.CountDeclarations())
	assert.False(t, pr.HasErrors())

	pr.AddError("a.rb", 3, 0, "unexpected end")
	assert.True(t, pr.HasErrors())
	assert.Equal(t, "unexpected end", pr.Errors[0].Error())
}
