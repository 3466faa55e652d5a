// Package services implements the driving ports: the search orchestrator,
// the adapter registry and their supporting caches and counters.
package services
