// Package repository provides ctx-first repositories over the dashboard tables.
//
// # Full table replace
//
// TableRepository.Replace deletes every row of a table and inserts the new
// set in batches inside one transaction. With shadow swap enabled on MySQL or
// Postgres the rows are loaded into "<table>_shadow" and renamed into place,
// so readers never observe the table mid-load. SQLite readers in WAL mode
// already see the pre-commit snapshot, so the swap is skipped there.
//
// # Error Handling
//
// Lookups return the sentinel errors in errors.go instead of gorm errors.
//
// # Thread Safety
//
// All repository methods are safe for concurrent use. Concurrent replaces of
// the same table are not serialized; the last commit wins.
package repository
