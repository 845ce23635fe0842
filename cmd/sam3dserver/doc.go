// Command sam3dserver runs the stage node service: an HTTP API that turns
// 2D images into 3D models through a hosted inference queue and renders
// camera-angle previews of the results.
package main
