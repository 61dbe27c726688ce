// Package http contains the HTTP handlers for the notegate relay.
//
// Handlers are thin: they bind and validate request parameters, delegate to
// the services layer and shape the wire responses. Success bodies carry
// `"status":"success"` and failures render through the errors package as
// `{"status":"error","message":...}` with the appropriate HTTP status.
package http
