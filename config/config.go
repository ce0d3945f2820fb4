// Package config holds the tunable parameters enumerated by the core's
// external configuration contract.
package config

import "fmt"

// Config holds every recognized configuration option for the core
// pipeline. All fields have defaults matching the reference implementation.
type Config struct {
	// World volume edge length, in nanometers.
	WorldEdgeNM float32

	// Large (coarse) voxel edge length, in nanometers.
	LargeVoxelNM float32

	// Small (fine) voxel edge length, in nanometers.
	SmallVoxelNM float32

	// Output texture width/height, in pixels.
	TextureSize uint32

	// Hard cap on the number of atoms accepted in a single frame.
	MaxAtoms uint32

	// Hard cap on the preprocessor's estimate of the total number of
	// small-voxel references a frame's atom set needs; large-voxel
	// references are not counted against it.
	MaxReferences uint32

	// Number of ambient-occlusion samples per shaded pixel.
	AOSamples uint32

	// AO ray cutoff distance, in nanometers (1nm + the small-voxel diagonal).
	AOCutoffNM float32

	// Per-ray loop iteration guard for the traversers.
	FaultLimit uint32
}

// Default returns the configuration used by the reference implementation.
func Default() Config {
	return Config{
		WorldEdgeNM:   128,
		LargeVoxelNM:  2,
		SmallVoxelNM:  0.25,
		TextureSize:   512,
		MaxAtoms:      4194304,
		MaxReferences: 67108864,
		AOSamples:     5,
		AOCutoffNM:    1.433,
		FaultLimit:    200,
	}
}

// LargeGridDim returns the number of large voxels per axis (W / large edge).
func (c Config) LargeGridDim() int32 {
	return int32(c.WorldEdgeNM / c.LargeVoxelNM)
}

// SmallPerLarge returns the number of small voxels per axis inside one large voxel.
func (c Config) SmallPerLarge() int32 {
	return int32(c.LargeVoxelNM / c.SmallVoxelNM)
}

// Validate checks that the configuration describes a self-consistent grid.
func (c Config) Validate() error {
	if c.WorldEdgeNM <= 0 || c.LargeVoxelNM <= 0 || c.SmallVoxelNM <= 0 {
		return fmt.Errorf("config: world/voxel edges must be positive")
	}
	largeDim := c.WorldEdgeNM / c.LargeVoxelNM
	if largeDim != float32(int32(largeDim)) {
		return fmt.Errorf("config: world_edge_nm %.3f is not a multiple of large_voxel_nm %.3f", c.WorldEdgeNM, c.LargeVoxelNM)
	}
	smallPerLarge := c.LargeVoxelNM / c.SmallVoxelNM
	if smallPerLarge != float32(int32(smallPerLarge)) {
		return fmt.Errorf("config: large_voxel_nm %.3f is not a multiple of small_voxel_nm %.3f", c.LargeVoxelNM, c.SmallVoxelNM)
	}
	if c.TextureSize == 0 {
		return fmt.Errorf("config: texture_size must be > 0")
	}
	if c.MaxAtoms == 0 || c.MaxReferences == 0 {
		return fmt.Errorf("config: max_atoms and max_references must be > 0")
	}
	if c.FaultLimit == 0 {
		return fmt.Errorf("config: fault_limit must be > 0")
	}
	return nil
}
