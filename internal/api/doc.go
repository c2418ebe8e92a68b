// Package api implements the read-only HTTP status surface of the bridge.
//
// This package provides:
//   - REST endpoints for bridge health, ingest statistics, the device
//     registry and the alert catalog
//   - A WebSocket hub streaming dispatch reports and gateway status lines
//   - Prometheus metrics at /metrics
//   - Middleware stack (request ID, logging, recovery)
//
// The server never changes bridge state. It binds to 127.0.0.1 by default;
// there is no authentication.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
