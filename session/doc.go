// Package session implements a unit of work over bun: a lazily started
// transaction, staged inserts, updates and deletes written on Flush, and an
// identity map so one row maps to one entity pointer per session.
package session
