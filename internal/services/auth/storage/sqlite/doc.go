// Package sqlite implements the auth storage interfaces on SQLite.
package sqlite
