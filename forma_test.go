package forma

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formaproject/forma/cursor"
	"github.com/formaproject/forma/model"
	"github.com/formaproject/forma/schema"
	"github.com/formaproject/forma/spell"
)

const testdoc = `
<schema>
  <version id="20.2.0.7"/>

  <basic name="uint32" size="4"/>
  <basic name="ref" size="4" signed="true" link="true"/>

  <struct name="Node">
    <field name="Tag" type="uint32"/>
    <field name="Num Children" type="uint32"/>
    <field name="Children" type="ref" arr1="Num Children"/>
  </struct>

  <struct name="Material">
    <field name="Color" type="uint32"/>
  </struct>
</schema>
`

const testVersion = 0x14020007

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load(strings.NewReader(testdoc))
	require.NoError(t, err)
	return s
}

func buildFormat(t *testing.T, opts ...Option) *Format {
	t.Helper()
	f, err := New(testSchema(t), testVersion, 0, opts...)
	require.NoError(t, err)

	g := f.Graph()
	root, err := g.NewBlock("Node")
	require.NoError(t, err)
	root.Value.Field("Tag").SetInt(1)
	mat, err := g.NewBlock("Material")
	require.NoError(t, err)
	mat.Value.Field("Color").SetInt(0xff00ff)

	l := model.NewLink("ref", model.NilLink)
	l.SetTarget(mat)
	root.Value.Field("Children").Append(l)
	root.Value.Field("Num Children").SetInt(1)
	g.SetRoots(root)
	return f
}

func TestContainer_RoundTrip(t *testing.T) {
	for _, comp := range []cursor.Compression{
		cursor.CompressionNone, cursor.CompressionLZ4, cursor.CompressionZSTD,
	} {
		t.Run(comp.String(), func(t *testing.T) {
			f := buildFormat(t, WithCompression(comp))
			data, err := f.Save()
			require.NoError(t, err)

			g, err := Load(testSchema(t), data)
			require.NoError(t, err)
			assert.Equal(t, uint32(testVersion), g.Version())
			assert.Equal(t, comp, g.Compression())
			require.Equal(t, 2, g.Graph().Len())
			require.Len(t, g.Graph().Roots(), 1)

			root := g.Graph().Roots()[0]
			assert.Equal(t, "Node", root.TypeName)
			assert.Equal(t, int64(1), root.Value.IntField("Tag"))
			child := root.Value.Field("Children").At(0).Target()
			require.NotNil(t, child)
			assert.Equal(t, "Material", child.TypeName)
			assert.Equal(t, int64(0xff00ff), child.Value.IntField("Color"))

			// Re-saving an unmutated container is byte-identical.
			again, err := g.Save()
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestContainer_UnreachableBlocksDropped(t *testing.T) {
	f := buildFormat(t)
	_, err := f.Graph().NewBlock("Material") // never linked, never rooted
	require.NoError(t, err)

	data, err := f.Save()
	require.NoError(t, err)

	g, err := Load(testSchema(t), data)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Graph().Len())
}

func TestLoad_BadMagic(t *testing.T) {
	_, err := Load(testSchema(t), []byte("NOPE\x01\x00\x00\x00\x00\x00"))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestLoad_TruncatedHeader(t *testing.T) {
	f := buildFormat(t)
	data, err := f.Save()
	require.NoError(t, err)

	_, err = Load(testSchema(t), data[:7])
	require.Error(t, err)
	var ce *ContainerError
	assert.ErrorAs(t, err, &ce)
}

func TestLoad_UnsupportedVersion(t *testing.T) {
	f := buildFormat(t)
	data, err := f.Save()
	require.NoError(t, err)

	// The format version lives right after magic, container version and
	// compression byte.
	patched := append([]byte(nil), data...)
	patched[6] = 0x01
	patched[7] = 0x00
	patched[8] = 0x00
	patched[9] = 0x00

	_, err = Load(testSchema(t), patched)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestLoad_UnknownContainerVersion(t *testing.T) {
	f := buildFormat(t)
	data, err := f.Save()
	require.NoError(t, err)

	// Flip the container version byte to something unknown.
	patched := append([]byte(nil), data...)
	patched[4] = 0x7f
	_, err = Load(testSchema(t), patched)
	assert.ErrorIs(t, err, ErrCorruptContainer)
}

type deleteMaterials struct {
	spell.Base
}

func (deleteMaterials) Applicable(typeName string) bool { return typeName == "Material" }

func (deleteMaterials) Entry(*model.Block) (spell.Result, error) {
	return spell.Result{Action: spell.ActionDelete}, nil
}

func TestFormat_ApplySpells(t *testing.T) {
	f := buildFormat(t)
	rep, err := f.Apply(deleteMaterials{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deleted)

	data, err := f.Save()
	require.NoError(t, err)

	g, err := Load(testSchema(t), data)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Graph().Len())
	root := g.Graph().Roots()[0]
	assert.Equal(t, 0, root.Value.Field("Children").Len())
	assert.Equal(t, int64(0), root.Value.IntField("Num Children"))
}

func TestNew_UnsupportedVersion(t *testing.T) {
	_, err := New(testSchema(t), 0x04000002, 0)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
