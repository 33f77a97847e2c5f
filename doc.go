// Package forma reads, transforms and writes schema-driven binary file
// formats.
//
// A format is described by an XML schema document declaring basic types,
// aliases, enums, bit structs and structs with conditional, versioned and
// array-valued fields. Files of such a format are parsed into an object
// graph of typed blocks whose link fields are resolved into direct block
// references; the graph can be inspected, mutated with composable spells
// and serialized back.
//
// # Quick start
//
// Load a schema, parse a container and apply a transformation:
//
//	s, err := schema.Load(schemaFile)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	f, err := forma.Load(s, data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := f.Apply(&PruneEmptyNodes{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := f.Save()
//
// The subpackages can also be used on their own: schema for the type
// system, exprs for the condition language, cursor and codec for raw
// block serialization, graph for link topology and spell for traversal.
// Package batch runs per-file work concurrently.
package forma
