// Package plan implements the plan file model: an append-only, ordered log
// of schema changes and release tags, parsed from the line-oriented plan
// format shared with other deployments of the same project.
//
// The plan is the sole source of chronological truth. Change names are not
// unique — a name may be reintroduced later with different content (a
// "rework") — so lookups are position-based, with a name->positions index
// layered on top. "Latest version of a name" is a query, not a structural
// constraint.
//
// Change and tag identifiers are content-derived SHA-1 digests computed from
// a canonical byte serialization (see ident.go). The serialization is a fixed
// external contract: two tools operating on the same project must derive
// byte-identical IDs or the shared registry becomes unreadable.
package plan
