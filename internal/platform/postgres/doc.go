// Package postgres provides PostgreSQL implementations of the store
// interfaces, using the pgx stdlib driver through database/sql. All
// implementations accept a store.DBTX so they run equally against a
// connection pool or a caller-managed transaction.
package postgres
