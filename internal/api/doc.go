// Package api exposes the assessment and review services over HTTP. Handlers
// decode and validate JSON requests, take the user id from the authenticated
// context and map service errors to status codes and safe messages.
package api
