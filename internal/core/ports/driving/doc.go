// Package driving defines the driving ports: the interfaces through which
// callers (CLI, IPC layers) use the core services.
package driving
