// Package providers defines the platform registry for OAuth integrations.
//
// Each supported platform (Twitter, LinkedIn, Facebook, Instagram, TikTok,
// YouTube, Pinterest) is described by a Config: its authorization and token
// endpoints, default scopes, PKCE requirements, and revocation behavior.
// The Registry is the single source of per-platform behavior; components
// resolve a platform through Registry.Lookup instead of embedding endpoint
// literals or branching on platform names.
//
// Adding a platform means adding one entry to the built-in table (or
// supplying a custom table via NewRegistryWithConfigs); no other component
// changes.
package providers
