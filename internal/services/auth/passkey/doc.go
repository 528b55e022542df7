// Package passkey implements WebAuthn registration and authentication
// ceremonies for reviewers.
package passkey
