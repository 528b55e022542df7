// Package notifications holds the inbox service: decision outcomes land
// here as per-user notifications, with a live feed over websocket.
package notifications
