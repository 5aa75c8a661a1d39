// Package registry persists deployment history: which changes are currently
// deployed to a target, the tags applied with them, the dependency links
// between them, and an append-only event log of every deploy, revert, and
// failure.
//
// The schema is a shared external contract — an independent implementation
// of this tool reads and writes the same tables — so column names, types,
// and the ON DELETE CASCADE from changes to dependencies are fixed. The
// cascade is what makes a revert a single atomic delete instead of an
// application-level loop.
//
// The store runs over whatever database the engine adapter provides. In the
// common case the registry lives in the same physical database as the
// deployment target (an attached SQLite database, a Postgres schema, a
// sibling MySQL database), reached through a table-name prefix, so one
// transaction can span a change script and its registry row.
package registry
