// Package api holds the request and response types of the Streamform HTTP API.
//
// # API Overview
//
// Streamform exposes chats whose assistant replies stream as snapshots:
//   - POST /api/v1/chats/{chatID}/messages?mode=text|qa|steps streams one
//     turn as Server-Sent Events (snapshot, done, committed, error)
//   - GET /api/v1/chats/{chatID}/ws carries turns over a websocket
//   - GET /api/v1/chats/{chatID} returns the committed history
//   - /health, /healthz, /ready and /version for probes
//
// # Authentication
//
// When a JWT secret is configured, /api/v1 routes require a bearer token:
//
//	Authorization: Bearer <token>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
