// Package decision implements the hot-path decision engine: deterministic
// visitor bucketing, URL targeting, the TTL-bounded experiment config cache,
// and sticky-assignment orchestration.
//
// The engine never writes experiment state. Its only write is the
// assignment row, and that write is dispatched asynchronously through an
// AssignmentQueue so the response path never blocks on the database.
// It depends on repository interfaces defined in this package and should
// never import from api/.
//
// Repository implementations live in repository/postgres/.
package decision
