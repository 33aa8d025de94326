package signature

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swanson/ruby-lsp/internal/index"
	"github.com/swanson/ruby-lsp/pkg/types"
)

var loc = types.NewLocation(1, 1, 0, 10)

func loadCore(t *testing.T) (*index.Index, *bytes.Buffer) {
	t.Helper()
	files, err := LoadBundled()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var buf bytes.Buffer
	idx := index.New()
	added := NewCorpusIndexer(idx, log.New(&buf, "", 0)).IndexAll(files)
	require.Positive(t, added)
	return idx, &buf
}

func TestLoadBundled(t *testing.T) {
	files, err := LoadBundled()
	require.NoError(t, err)
	require.Len(t, files, 1)

	assert.Equal(t, "core", files[0].Source)
	assert.Equal(t, BundledPrefix+"corpus/core.json", files[0].FilePath)
	assert.NotEmpty(t, files[0].Declarations)
}

func TestCorpusIndexer_RootClass(t *testing.T) {
	idx, _ := loadCore(t)

	root := idx.Lookup("BasicObject")
	require.Len(t, root, 1)
	class, ok := root[0].(*index.Class)
	require.True(t, ok)
	assert.Empty(t, class.ParentClass())

	singleton := idx.Lookup("BasicObject::<Class:BasicObject>")
	require.Len(t, singleton, 1)
	assert.Equal(t, "Class", singleton[0].(*index.SingletonClass).ParentClass())

	ancestors, err := idx.LinearizedAncestors("BasicObject")
	require.NoError(t, err)
	assert.Equal(t, []string{"BasicObject"}, ancestors)
}

func TestCorpusIndexer_ParentClasses(t *testing.T) {
	idx, _ := loadCore(t)

	tests := []struct {
		name            string
		parent          string
		singletonParent string
	}{
		{"Object", "BasicObject", "BasicObject::<Class:BasicObject>"},
		{"Integer", "Numeric", "Numeric::<Class:Numeric>"},
		{"Numeric", "Object", "Object::<Class:Object>"},
		{"Class", "Module", "Module::<Class:Module>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := idx.Lookup(tt.name)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.parent, entries[0].(*index.Class).ParentClass())

			singleton := idx.Lookup(index.SingletonName(tt.name))
			require.Len(t, singleton, 1)
			assert.Equal(t, tt.singletonParent, singleton[0].(*index.SingletonClass).ParentClass())
		})
	}

	kernel := idx.Lookup("Kernel::<Class:Kernel>")
	require.Len(t, kernel, 1)
	assert.Equal(t, "Module", kernel[0].(*index.SingletonClass).ParentClass())
}

func TestCorpusIndexer_Ancestors(t *testing.T) {
	idx, _ := loadCore(t)

	tests := []struct {
		name string
		want []string
	}{
		{"Integer", []string{"Integer", "Numeric", "Comparable", "Object", "Kernel", "BasicObject"}},
		{"Array", []string{"Array", "Enumerable", "Object", "Kernel", "BasicObject"}},
		{"Class", []string{"Class", "Module", "Object", "Kernel", "BasicObject"}},
		{"Integer::<Class:Integer>", []string{
			"Integer::<Class:Integer>", "Numeric::<Class:Numeric>", "Object::<Class:Object>",
			"BasicObject::<Class:BasicObject>", "Class", "Module", "Object", "Kernel", "BasicObject",
		}},
		{"Kernel::<Class:Kernel>", []string{"Kernel::<Class:Kernel>", "Module", "Object", "Kernel", "BasicObject"}},
		{"File::Stat", []string{"File::Stat", "Comparable", "Object", "Kernel", "BasicObject"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ancestors, err := idx.LinearizedAncestors(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ancestors)
		})
	}
}

func TestCorpusIndexer_Methods(t *testing.T) {
	idx, _ := loadCore(t)

	found, err := idx.ResolveMethod("map", "Array")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Array", found[0].OwnerName())

	found, err = idx.ResolveMethod("between?", "Integer")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Comparable", found[0].OwnerName())

	found, err = idx.ResolveMethod("puts", "String")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Kernel", found[0].OwnerName())
	assert.Equal(t, types.VisibilityPrivate, found[0].Visibility())

	found, err = idx.ResolveMethod("new", "String::<Class:String>")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "String::<Class:String>", found[0].OwnerName())

	found, err = idx.ResolveMethod("new", "Hash::<Class:Hash>")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Class", found[0].OwnerName())

	found, err = idx.ResolveMethod("sqrt", "Math::<Class:Math>")
	require.NoError(t, err)
	require.Len(t, found, 1)
	owner, ok := idx.Owner(found[0])
	require.True(t, ok)
	assert.IsType(t, &index.SingletonClass{}, owner)
}

func TestCorpusIndexer_SkipsUnmodeledDeclarations(t *testing.T) {
	idx, buf := loadCore(t)

	assert.Empty(t, idx.Lookup("RUBY_VERSION"))
	assert.Empty(t, idx.Lookup("_ToS"))
	assert.Contains(t, buf.String(), "Skipping unsupported constant declaration \"RUBY_VERSION\"")
	assert.Contains(t, buf.String(), "Skipping unsupported type_alias declaration \"int\"")
}

func TestCorpusIndexer_ExtendAndMalformed(t *testing.T) {
	var buf bytes.Buffer
	idx := index.New()
	c := NewCorpusIndexer(idx, log.New(&buf, "", 0))

	added := c.IndexFile(CorpusFile{
		Source:   "test",
		FilePath: "test.json",
		Declarations: []types.Declaration{
			{Kind: types.DeclModule, Name: "Helpers", Location: loc},
			{
				Kind:     types.DeclClass,
				Name:     "::Widget",
				Location: loc,
				Mixins: []types.MixinDirective{
					{Kind: types.MixinExtend, Name: "Helpers"},
					{Kind: types.MixinInclude, Name: "Helpers"},
				},
				Members: []types.Declaration{
					{Kind: types.DeclMethod, Name: "", Location: loc},
					{Kind: types.DeclMethod, Name: "render", Location: loc},
				},
			},
			{Kind: "unknown", Name: "Strange", Location: loc},
			{Kind: types.DeclMethod, Name: "stray", Location: loc},
		},
	})

	assert.Equal(t, 5, added, "two namespaces, two singletons and one method")
	assert.Contains(t, buf.String(), "skipping corpus declaration")
	assert.Contains(t, buf.String(), "outside of a namespace")

	widget := idx.Lookup("Widget")
	require.Len(t, widget, 1)
	assert.Equal(t, []index.MixinOperation{index.Include{Module: "Helpers"}}, widget[0].(*index.Class).MixinOperations())
	assert.Equal(t, "Object", widget[0].(*index.Class).ParentClass())

	singleton := idx.Lookup("Widget::<Class:Widget>")
	require.Len(t, singleton, 1)
	assert.Equal(t, []index.MixinOperation{index.Include{Module: "Helpers"}}, singleton[0].(*index.SingletonClass).MixinOperations())
	assert.Equal(t, "Object::<Class:Object>", singleton[0].(*index.SingletonClass).ParentClass())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gems", "rack"), 0o755))
	doc := `{"declarations":[{"kind":"module","name":"Rack","location":{"start_line":1,"end_line":3,"start_column":0,"end_column":3}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gems", "rack", "rack.json"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	files, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "rack", files[0].Source)
	assert.Equal(t, filepath.Join(dir, "gems", "rack", "rack.json"), files[0].FilePath)
	require.Len(t, files[0].Declarations, 1)
	assert.Equal(t, types.DeclModule, files[0].Declarations[0].Kind)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	_, err = LoadDir(dir)
	assert.Error(t, err)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
