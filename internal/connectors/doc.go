// Package connectors contains platform adapter implementations.
//
// Each subpackage implements driven.PlatformAdapter for one platform:
//
//   - lark: chat enumeration with paginated fetch and local filtering,
//     for a provider without a native search endpoint
//   - slack: thin wrapper over the provider's own search endpoint
//   - gmail: Google API client with server-side query support
//
// The connectors package itself hosts the factory that maps a platform
// configuration to a concrete adapter.
package connectors
