// Package driven defines the driven ports: interfaces the core services
// depend on, implemented by platform connectors and infrastructure adapters.
package driven
