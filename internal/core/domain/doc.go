// Package domain contains the core business entities for Parley.
// These types have no dependencies on infrastructure or external services.
package domain
