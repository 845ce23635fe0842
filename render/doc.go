// Package render produces 2D preview images of 3D meshes through a chain of
// backends probed once at startup: a pure-Go offscreen perspective
// rasterizer, a projected polygon-plot fallback and an always-available
// placeholder. Any backend failure is retried once against the placeholder
// before the call reports an error.
package render
