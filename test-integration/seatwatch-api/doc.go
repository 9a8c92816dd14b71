// Package integration runs the seat monitor end to end: a real HTTP server,
// the HTML adapter pointed at a fake registration site, and the notification
// transports.
package integration
