package forma_test

import (
	"fmt"
	"log"
	"strings"

	"github.com/formaproject/forma"
	"github.com/formaproject/forma/model"
	"github.com/formaproject/forma/schema"
	"github.com/formaproject/forma/spell"
)

const sceneSchema = `
<schema>
  <basic name="uint32" size="4"/>
  <basic name="ref" size="4" signed="true" link="true"/>

  <struct name="Scene">
    <field name="Num Nodes" type="uint32"/>
    <field name="Nodes" type="ref" arr1="Num Nodes"/>
  </struct>

  <struct name="Mesh">
    <field name="Num Triangles" type="uint32"/>
  </struct>
</schema>
`

// emptyMeshes deletes meshes with no geometry.
type emptyMeshes struct {
	spell.Base
}

func (emptyMeshes) Applicable(typeName string) bool { return typeName == "Mesh" }

func (emptyMeshes) Entry(b *model.Block) (spell.Result, error) {
	if b.Value.IntField("Num Triangles") == 0 {
		return spell.Result{Action: spell.ActionDelete}, nil
	}
	return spell.Result{}, nil
}

func Example() {
	s, err := schema.Load(strings.NewReader(sceneSchema))
	if err != nil {
		log.Fatal(err)
	}

	f, err := forma.New(s, 0, 0)
	if err != nil {
		log.Fatal(err)
	}

	g := f.Graph()
	scene, _ := g.NewBlock("Scene")
	solid, _ := g.NewBlock("Mesh")
	solid.Value.Field("Num Triangles").SetInt(12)
	empty, _ := g.NewBlock("Mesh")

	for _, mesh := range []*model.Block{solid, empty} {
		l := model.NewLink("ref", model.NilLink)
		l.SetTarget(mesh)
		scene.Value.Field("Nodes").Append(l)
	}
	scene.Value.Field("Num Nodes").SetInt(2)
	g.SetRoots(scene)

	report, err := f.Apply(emptyMeshes{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("deleted:", report.Deleted)

	data, err := f.Save()
	if err != nil {
		log.Fatal(err)
	}

	back, err := forma.Load(s, data)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("blocks after load:", back.Graph().Len())
	fmt.Println("nodes in scene:", back.Graph().Roots()[0].Value.IntField("Num Nodes"))

	// Output:
	// deleted: 1
	// blocks after load: 2
	// nodes in scene: 1
}
