// Package postgres implements deviceauth.IdentityStore on PostgreSQL with
// pgx, and ships the schema as embedded golang-migrate migrations.
package postgres
