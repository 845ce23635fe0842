/*
Package types holds the shared types of the stage node service.

It is the bottom-most package with no internal dependencies, providing the
structured error taxonomy (Error / ErrorCode) used across the conversion
orchestrator, the render pipeline and the HTTP handlers.
*/
package types
