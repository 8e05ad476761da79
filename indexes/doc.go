// Package indexes keeps rows, row index snapshots and index groups
// consistent inside one staging transaction.
//
// # Records
//
// For a table T and a row with id X the engine maintains:
//
//   - T/rows/X            the row, JSON encoded
//   - T/rows/X/indexes    the snapshot {index name -> value} computed from
//     the row when it was written
//   - T/indexes/NAME      the ordered list of groups {value, ids} of one index
//
// The snapshot, not the stored row, is what a later write or delete
// retracts from the groups.
//
// # Writes
//
// WriteItem stores the row and its new snapshot, then for every index whose
// value changed strips the id from the old group and appends it to the group
// of the new value, creating the group when none matches. Unchanged indexes
// are not touched. A row accepted by the table's deletion predicate is routed
// to DeleteItem instead.
//
// DeleteItem strips the id from every group named in the snapshot and
// removes the row and its snapshot. Groups left empty stay in the list.
//
// # Matching
//
// Group values match by tables.Equal: same dynamic type and ==, after number
// normalization. Composite values (objects, arrays) never match, so a row
// indexed by a composite value lands in a fresh group on every write and is
// never found by value. When an old value cannot be matched the id is stripped
// from whichever group holds it, so an id is never in two groups of one index.
//
// All writes go through the store.Store handed in by the caller, normally an
// overlay transaction; the engine never commits.
package indexes
