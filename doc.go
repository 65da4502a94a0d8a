// Package bbp compiles a declarative binary-format schema into a reusable
// Schema and parses bit streams against it into a field.Field tree.
//
//	schema, err := bbp.Compile(source, nil)
//	if err != nil {
//		return err
//	}
//	root, err := schema.Parse(r, bbp.WithValueProvider(provider))
//
// Compile runs once per schema text; the resulting *Schema is immutable and
// safe to reuse across many concurrent Parse calls, mirroring
// HewlettPackard-structex's one-time struct-tag scan feeding repeated
// Unmarshal/Marshal calls.
package bbp
