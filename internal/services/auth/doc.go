// Package auth provides identity, roles, and passkey ceremonies.
package auth
