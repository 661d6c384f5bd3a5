// Copyright 2025-2026 Tigro14

// Package bridge wires the full receive pipeline together: one transport
// manager and protocol adapter per network, a shared resolver, the
// deduplicator, and the router, fed through a single pipeline goroutine so
// classification and dispatch stay deterministically ordered. It also
// serves the admin HTTP API and owns bounded process shutdown.
package bridge
