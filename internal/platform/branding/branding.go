// Package branding centralizes product naming.
package branding

// AppName is the user-facing product name.
const AppName = "VeraVid"
