// Package api implements the HTTP REST API and WebSocket server for Lab Panel Core.
//
// This package provides:
//   - REST endpoints for reading the dialog slot and acting on dialogs
//   - WebSocket hub pushing dialog changes and navigation requests
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between the lab dashboards and the orchestration
// scope. Instrument events reach the scope over MQTT (or, for service
// clients, through the event injection endpoint); the resulting dialog
// views and navigation requests are broadcast to WebSocket subscribers.
// Confirm and close actions come back over REST.
//
// # Security
//
// Dashboards enrol with the configured enrolment key and receive a panel
// JWT. Permissions are checked per route against the token's role.
// WebSocket connections use single-use tickets to prevent token leakage in URLs.
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB. Health reports their
// state; dialogs can still be driven through event injection.
package api
