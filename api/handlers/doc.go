// Package handlers implements the HTTP handlers of the stage node API:
// 2D → 3D conversion, camera-angle rendering, and service health.
package handlers
