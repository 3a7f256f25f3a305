package fir

import (
	"errors"
)

// VolHeader holds the fundamental volume parameters.
type VolHeader struct {
	VolSize     VolSize
	VoxelExtent VoxelExtent

	// In X and Y: coordinates of the center of the first voxel.
	// In Z: offset from the scanner center to the volume center.
	VolOffset Coords3

	NFrames int
}

// SetDefaults fills the header with default values. Must be called before
// setting specific values.
func (h *VolHeader) SetDefaults() {
	h.VolSize = VolSize{}
	h.VoxelExtent = VoxelExtent{}
	h.VolOffset = Coords3{}
	h.NFrames = 1
}

// Check validates the header.
func (h *VolHeader) Check() error {
	if h.VolSize.NPixelsX <= 0 || h.VolSize.NPixelsY <= 0 || h.VolSize.NSlices <= 0 {
		return errors.Join(
			ErrVolHeader,
			errors.New("number of voxels must be greater than zero in each dimension"))
	}

	if h.VoxelExtent.PixelWidth <= 0 ||
		h.VoxelExtent.PixelHeight <= 0 ||
		h.VoxelExtent.SliceThickness <= 0 {
		return errors.Join(
			ErrVolHeader,
			errors.New("voxel extent must be greater than zero in each dimension"))
	}

	if h.NFrames <= 0 {
		return errors.Join(
			ErrVolHeader,
			errors.New("number of frames must be greater than zero"))
	}

	return nil
}

// SameGrid reports whether two headers describe the same voxel grid. The
// number of frames is not compared.
func (h VolHeader) SameGrid(rhs VolHeader) bool {
	return h.VolSize == rhs.VolSize &&
		h.VoxelExtent == rhs.VoxelExtent &&
		h.VolOffset == rhs.VolOffset
}

// VolGeometry holds the parameters derived from a validated header.
type VolGeometry struct {
	VolExtent VolExtent

	NVoxelsPerFrame int
	NVoxelsTotal    int
}

// Fill derives the geometry from a validated header.
func (g *VolGeometry) Fill(h *VolHeader) {
	g.VolExtent = h.VoxelExtent.Extent(h.VolSize)

	g.NVoxelsPerFrame = h.VolSize.NVoxels()
	g.NVoxelsTotal = g.NVoxelsPerFrame * h.NFrames
}
