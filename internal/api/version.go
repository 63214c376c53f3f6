// Package api provides the admin HTTP API of the configuration daemon.
package api

// Service is the name reported by /health and /admin/status.
const Service = "ezcd"

// Version is the daemon version, overridden at build time with
// -ldflags "-X github.com/ezbox-project/go-ezcfg/internal/api.Version=...".
var Version = "dev"

// APIVersion is the admin API capability level. It refers to the set of
// routes available, not to a URL prefix.
const APIVersion = 1

// Capabilities lists the features of the admin API.
var Capabilities = []string{
	"status",
	"nvram-info",
	"nvram-list",
	"reload",
	"events",
	"metrics",
}

// HealthResponse is the response from the /health endpoint.
type HealthResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	Version      string   `json:"version"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
