// Package core provides the business logic for catalog bulk imports.
//
// This package holds the import pipeline independent of any transport. It is
// used by the HTTP server, the catalogimport CLI and tests without
// modification.
//
// # Architecture
//
// An import moves through these stages:
//
//   - Decode: [Decoder] turns an uploaded CSV (or a ZIP holding one) into a
//     header and raw rows.
//   - Map: [ResolveColumns] and [Mapper] bind headers to schema fields and
//     coerce each cell into a typed [Value].
//   - Validate: [Validator] checks required fields, formats, uniqueness and
//     references, producing [Issues].
//   - Store: a [Session] persists the draft in a [SessionStore] between
//     requests.
//   - Commit: [CommitEngine] writes a validated draft to the catalog, inside
//     one transaction when the catalog supports it.
//
// [Service] ties these together and enforces the session lifecycle:
//
//	draft -> validated -> confirmed
//	  |          |
//	  +----------+-> discarded
//	             +-> failed
//
// # Schema Registry
//
// Entity schemas are registered at init time using [Register]. Each
// [EntitySchema] lists its fields, aliases, natural key and references:
//
//	core.Register(EntitySchema{
//	    Type: catalog.Item,
//	    Fields: []FieldSpec{
//	        {Name: "name", Required: true, Type: FieldString},
//	        {Name: "price", Required: true, Type: FieldNumber},
//	    },
//	    KeyFields: []string{"name"},
//	})
//
// Column aliases can be extended at start-up from a YAML file with
// [LoadAliasFile] and [ApplyAliasOverrides].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE007: File errors (size, encoding, format, archive contents)
//   - IMP001-IMP013: Import session errors (not found, state, concurrency)
//   - AUTH001-AUTH002: Authorization errors
//   - RATE001-RATE002: Rate and concurrency limits
//   - REQ001: Malformed requests
//   - DB001-DB007, VAL001-VAL006: Catalog write and value errors surfaced by
//     commits
//
// Row-level problems are not errors; they are reported as [Issue] values on
// the session and exported with [RenderReport].
package core
