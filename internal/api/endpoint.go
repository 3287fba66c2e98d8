// Package api defines the endpoint abstraction shared by the HTTP server
// and the CLI: every API operation is registered once and exposed both as
// an HTTP route and as a cobra command that calls that route.
package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint defines both an HTTP route and its corresponding CLI command.
type Endpoint interface {
	// Route returns the HTTP method, path, and handler for this endpoint.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit returns true if this endpoint requires the server to be
	// fully initialized (store opened, orchestrator running).
	RequiresInit() bool

	// Command returns a cobra command that calls this endpoint via HTTP.
	// getServerURL is evaluated at run time, after flags are parsed.
	Command(getServerURL func() string) *cobra.Command
}
