package threed

// ConvertInput describes one 2D → 3D conversion. Immutable once constructed.
type ConvertInput struct {
	// Path to the local source image
	ImagePath string
	// Path the generated GLB is written to
	OutputPath string
	// Optional segmentation prompt
	Prompt string
	// Optional random seed; zero means unseeded
	Seed int
}

// ConvertResult is a successful conversion. Exactly one mesh file is
// produced per result.
type ConvertResult struct {
	MeshPath    string
	VertexCount int
	FaceCount   int
}
