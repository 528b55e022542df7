// Package verification owns the video verification request lifecycle.
package verification
