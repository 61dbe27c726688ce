// Package app wires the notegate relay together: configuration, logging,
// telemetry, the binding store client, the note extractor, the services
// layer and the HTTP server with its middleware chain. The Application type
// owns the dependency graph and the server lifecycle, shutting down
// gracefully on SIGINT/SIGTERM.
package app
