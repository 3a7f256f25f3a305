package fir

// Numeric tolerances. EpsGeom is used by the ray tracer to decide that a
// line of response has no component along an axis, or that it touches an
// inter-voxel plane. EpsValue guards divisions, multiplications and
// exponentials against near-zero operands. They share a value but are
// separate concepts and can be tuned independently.
const (
	EpsGeom  = 1e-5
	EpsValue = 1e-5
)

// BinValue is the storage type of a single projection bin.
type BinValue = float32

// VoxelValue is the storage type of a single voxel.
type VoxelValue = float32

// VolSize is the number of voxels along each dimension of a volume.
type VolSize struct {
	NPixelsX int
	NPixelsY int
	NSlices  int
}

// NVoxels returns the number of voxels in a single frame.
func (s VolSize) NVoxels() int {
	return s.NPixelsX * s.NPixelsY * s.NSlices
}

// VoxelExtent is the spatial extent of a single voxel in mm.
type VoxelExtent struct {
	PixelWidth     float64
	PixelHeight    float64
	SliceThickness float64
}

// VolExtent is the spatial extent of an entire volume frame in mm.
type VolExtent struct {
	SliceWidth  float64
	SliceHeight float64
	VolDepth    float64
}

// Extent returns the spatial extent of a frame of volSize voxels.
func (e VoxelExtent) Extent(volSize VolSize) VolExtent {
	return VolExtent{
		SliceWidth:  float64(volSize.NPixelsX) * e.PixelWidth,
		SliceHeight: float64(volSize.NPixelsY) * e.PixelHeight,
		VolDepth:    float64(volSize.NSlices) * e.SliceThickness,
	}
}

// Coords2 is a position in the transaxial plane in mm.
type Coords2 struct {
	X float64
	Y float64
}

// Coords3 is a position in scanner space in mm.
type Coords3 struct {
	X float64
	Y float64
	Z float64
}

// PathElement is one voxel crossed by a line of response: the linear voxel
// coordinate and the length of the intersection in mm. A path is a
// contiguous run of elements terminated by a sentinel with Coord == -1.
type PathElement struct {
	Coord  int32
	Length float32
}

// PathEnd is the sentinel coordinate terminating a path.
const PathEnd int32 = -1
