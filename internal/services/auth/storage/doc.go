// Package storage defines persistence interfaces for the auth service.
package storage
