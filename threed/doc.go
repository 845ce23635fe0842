// Package threed converts 2D images into 3D GLB models through a hosted
// asynchronous inference API. One orchestrator drives three historical
// endpoint variants, each captured as a JobProfile: the general Trellis
// model, the fast single-object TripoSR model and the prompt-guided SAM3D
// model. The shared flow is upload → submit → await → conditional relaxed
// retry → download → mesh statistics.
package threed
