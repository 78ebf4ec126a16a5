// Package database opens and supervises the bun connection that sessions run
// on: configuration loading, dialect selection for MySQL, PostgreSQL and
// SQLite, query logging and metrics hooks, health checks, SQL error
// classification and table creation for registered models.
package database
