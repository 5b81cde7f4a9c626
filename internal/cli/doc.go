// Package cli implements the command-line interface for pokertour.
//
// The cli package provides the Cobra-based CLI: listing tournaments across all
// configured sources with filtering, sorting and text/JSON/iCalendar output,
// reporting source health, refreshing the cache, detecting newly-listed
// tournaments against a stored snapshot, and serving the HTTP API.
// It wires configuration, logging, metrics, cache persistence and the source
// adapters into an aggregator.Service.
package cli
