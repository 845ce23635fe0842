package threed

import "fmt"

// JobProfile captures what distinguishes the historical orchestrator
// variants: which inference endpoint they target, how the request parameter
// set is built, and which response fields may carry the mesh reference, in
// priority order.
type JobProfile struct {
	ID       string
	Endpoint string
	// ResponseFields is the prioritized mesh-reference lookup order.
	// Per-object fields come before combined-scene fields.
	ResponseFields []string
	// Arguments builds the primary parameter set.
	Arguments func(imageURL, prompt string, seed int) map[string]any
	// RelaxedArguments builds the relaxed retry after a recognized
	// segmentation failure; nil when the profile has no such retry.
	RelaxedArguments func(imageURL string, seed int) map[string]any
}

// Trellis is the general mesh-from-image model.
var Trellis = JobProfile{
	ID:             "trellis",
	Endpoint:       "fal-ai/trellis",
	ResponseFields: []string{"model_mesh", "glb_url", "glb", "model_url", "output"},
	Arguments: func(imageURL, prompt string, seed int) map[string]any {
		args := map[string]any{
			"image_url":              imageURL,
			"ss_guidance_strength":   7.5,
			"ss_sampling_steps":      12,
			"slat_guidance_strength": 3,
			"slat_sampling_steps":    12,
			"mesh_simplify":          0.95,
			"texture_size":           1024,
		}
		if seed != 0 {
			args["seed"] = seed
		}
		return args
	},
}

// TripoSR is the fast single-object model.
var TripoSR = JobProfile{
	ID:             "triposr",
	Endpoint:       "fal-ai/triposr",
	ResponseFields: []string{"model_mesh", "model_url", "output"},
	Arguments: func(imageURL, prompt string, seed int) map[string]any {
		return map[string]any{
			"image_url":            imageURL,
			"output_format":        "glb",
			"mc_resolution":        256,
			"do_remove_background": true,
		}
	},
}

// SAM3D is the prompt-guided segmentation-and-reconstruct model. The
// per-object mesh is preferred over the combined scene mesh.
var SAM3D = JobProfile{
	ID:             "sam3d",
	Endpoint:       "fal-ai/sam3d",
	ResponseFields: []string{"object_mesh", "scene_mesh", "model_mesh", "glb_url"},
	Arguments: func(imageURL, prompt string, seed int) map[string]any {
		args := map[string]any{
			"image_url":           imageURL,
			"prompt":              prompt,
			"detection_threshold": 0.45,
		}
		if seed != 0 {
			args["seed"] = seed
		}
		return args
	},
	RelaxedArguments: func(imageURL string, seed int) map[string]any {
		// Lower threshold, no prompt: consider the whole image the subject.
		args := map[string]any{
			"image_url":           imageURL,
			"detection_threshold": 0.2,
			"use_full_image":      true,
		}
		if seed != 0 {
			args["seed"] = seed
		}
		return args
	},
}

var profiles = map[string]JobProfile{
	Trellis.ID: Trellis,
	TripoSR.ID: TripoSR,
	SAM3D.ID:   SAM3D,
}

// ProfileByID looks up a job profile by identifier.
func ProfileByID(id string) (JobProfile, error) {
	p, ok := profiles[id]
	if !ok {
		return JobProfile{}, fmt.Errorf("unknown job profile: %q", id)
	}
	return p, nil
}
