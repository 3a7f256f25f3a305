package fir

import (
	"math"
)

const (
	alphaEntry = 0.0
	alphaExit  = 1.0

	dirNeg = -1
	dirPos = +1

	dimX = 0
	dimY = 1
	dimZ = 2
)

// Siddon computes the ordered list of voxels crossed by a line of response
// together with the intersection lengths, for the voxel grid of one volume.
// Each worker of the pool owns one path buffer, handed out by Path.
type Siddon struct {
	scanner *ScannerData

	rowSize   int32
	sliceSize int32

	volSizeM1   [3]int
	voxelExtent [3]float64

	// Outer voxel-boundary planes of the volume
	lowPlanes  [3]float64
	highPlanes [3]float64

	maxPathLength int
	paths         [][]PathElement
}

// dimSetup carries the per-axis traversal parameters. A cancelled axis (no
// LOR component along it) keeps nextAlpha pinned to the exit value so it
// never wins the minimum.
type dimSetup struct {
	diff      float64
	dir       int
	alphaMin  float64
	alphaMax  float64
	nextAlpha float64
}

// NewSiddon prepares a tracer for the grid of vol using the crystal
// position tables of scanner. One path buffer per worker is allocated up
// front and reused for the lifetime of the tracer.
func NewSiddon(vol *VolData, scanner *ScannerData) *Siddon {
	header := vol.Header()
	volSize := header.VolSize
	voxelExtent := header.VoxelExtent
	volExtent := vol.Geometry().VolExtent

	s := &Siddon{
		scanner:   scanner,
		rowSize:   int32(volSize.NPixelsX),
		sliceSize: int32(volSize.NPixelsX * volSize.NPixelsY),
		volSizeM1: [3]int{
			volSize.NPixelsX - 1,
			volSize.NPixelsY - 1,
			volSize.NSlices - 1,
		},
		voxelExtent: [3]float64{
			voxelExtent.PixelWidth,
			voxelExtent.PixelHeight,
			voxelExtent.SliceThickness,
		},
	}

	s.lowPlanes = [3]float64{
		header.VolOffset.X - voxelExtent.PixelWidth/2,
		header.VolOffset.Y - voxelExtent.PixelHeight/2,
		header.VolOffset.Z - volExtent.VolDepth/2,
	}
	s.highPlanes = [3]float64{
		s.lowPlanes[dimX] + volExtent.SliceWidth,
		s.lowPlanes[dimY] + volExtent.SliceHeight,
		s.lowPlanes[dimZ] + volExtent.VolDepth,
	}

	s.maxPathLength = volSize.NPixelsX + volSize.NPixelsY + volSize.NSlices

	s.paths = make([][]PathElement, nWorkers)
	for worker := range s.paths {
		s.paths[worker] = make([]PathElement, s.maxPathLength)
	}

	return s
}

// MaxPathLength returns the size of a path buffer.
func (s *Siddon) MaxPathLength() int {
	return s.maxPathLength
}

// Path returns the path buffer owned by a worker.
func (s *Siddon) Path(worker int) []PathElement {
	return s.paths[worker]
}

// ComputePathBetweenCrystals traces the LOR joining two crystals given by
// their axial (slice) and angular indices. Returns false if the LOR does
// not cross the volume; the path then holds only the sentinel.
func (s *Siddon) ComputePathBetweenCrystals(
	crysAxialCoord1, crysAngCoord1, crysAxialCoord2, crysAngCoord2 int,
	path []PathElement,
) bool {

	crystalXY := s.scanner.CrystalXYPositions()
	sliceZ := s.scanner.SliceZPositions()

	return s.ComputePath(
		crystalXY[crysAngCoord1].X,
		crystalXY[crysAngCoord1].Y,
		sliceZ[crysAxialCoord1],
		crystalXY[crysAngCoord2].X,
		crystalXY[crysAngCoord2].Y,
		sliceZ[crysAxialCoord2],
		path)
}

// ComputePath traces the segment from crys1 to crys2 through the grid.
//
// The LOR is parameterized as x(alpha) = x1 + (x2-x1)*alpha, so alpha runs
// from 0 at crys1 to 1 at crys2. For each axis, alphaMin/alphaMax are the
// parameter values at which the LOR crosses the outer boundary planes; the
// traversal then steps from inter-voxel plane to inter-voxel plane, always
// advancing the axis whose next plane comes first.
func (s *Siddon) ComputePath(
	crys1X, crys1Y, crys1Z, crys2X, crys2Y, crys2Z float64,
	path []PathElement,
) bool {

	// Default empty path if the LOR doesn't intersect the volume
	path[0].Coord = PathEnd

	setupX, ok := s.dimSetupFor(dimX, crys1X, crys2X)
	if !ok {
		return false
	}

	setupY, ok := s.dimSetupFor(dimY, crys1Y, crys2Y)
	if !ok {
		return false
	}

	setupZ, ok := s.dimSetupFor(dimZ, crys1Z, crys2Z)
	if !ok {
		return false
	}

	// Values of alpha at which the LOR enters and exits the volume
	alphaMin := math.Max(setupX.alphaMin, math.Max(setupY.alphaMin, math.Max(setupZ.alphaMin, alphaEntry)))
	alphaMax := math.Min(setupX.alphaMax, math.Min(setupY.alphaMax, math.Min(setupZ.alphaMax, alphaExit)))
	if alphaMin >= alphaMax {
		return false
	}

	// Variation of alpha between neighbouring inter-voxel planes
	dAlpha := [3]float64{
		s.voxelExtent[dimX] / math.Abs(setupX.diff),
		s.voxelExtent[dimY] / math.Abs(setupY.diff),
		s.voxelExtent[dimZ] / math.Abs(setupZ.diff),
	}

	// alpha * d12 is the distance from crys1 along the LOR
	d12 := math.Sqrt(
		setupX.diff*setupX.diff + setupY.diff*setupY.diff + setupZ.diff*setupZ.diff)

	// Voxel where the LOR enters the volume
	position := [3]int{
		s.startInd(dimX, crys1X, setupX.diff, alphaMin),
		s.startInd(dimY, crys1Y, setupY.diff, alphaMin),
		s.startInd(dimZ, crys1Z, setupZ.diff, alphaMin),
	}

	// For each non-cancelled axis, alpha at which the LOR touches the next
	// inter-voxel plane after entering the volume
	alphaDim := [3]float64{
		s.prepareDim(dimX, crys1X, &setupX, &position, &dAlpha),
		s.prepareDim(dimY, crys1Y, &setupY, &position, &dAlpha),
		s.prepareDim(dimZ, crys1Z, &setupZ, &position, &dAlpha),
	}

	pathInd := 0
	previousAlpha := alphaMin
	for previousAlpha < alphaMax {
		nextAlpha := math.Min(alphaMax, math.Min(alphaDim[dimX], math.Min(alphaDim[dimY], alphaDim[dimZ])))

		if s.checkIndices(&position) {
			path[pathInd] = PathElement{
				Coord:  s.linearCoord(&position),
				Length: float32((nextAlpha - previousAlpha) * d12),
			}
			pathInd++
		}

		updateDim(dimX, &alphaDim, &position, nextAlpha, &dAlpha, setupX.dir)
		updateDim(dimY, &alphaDim, &position, nextAlpha, &dAlpha, setupY.dir)
		updateDim(dimZ, &alphaDim, &position, nextAlpha, &dAlpha, setupZ.dir)

		previousAlpha = nextAlpha
	}

	path[pathInd].Coord = PathEnd

	return true
}

func (s *Siddon) dimSetupFor(dim int, crys1, crys2 float64) (dimSetup, bool) {
	lowPlane := s.lowPlanes[dim]
	highPlane := s.highPlanes[dim]

	diff := crys2 - crys1

	var setup dimSetup
	if math.Abs(diff) > EpsGeom {
		if diff > 0 {
			// LOR entering the volume from the low plane
			setup = dimSetup{
				diff:     diff,
				dir:      dirPos,
				alphaMin: (lowPlane - crys1) / diff,
				alphaMax: (highPlane - crys1) / diff,
			}
		} else {
			// LOR entering the volume from the high plane
			setup = dimSetup{
				diff:     diff,
				dir:      dirNeg,
				alphaMin: (highPlane - crys1) / diff,
				alphaMax: (lowPlane - crys1) / diff,
			}
		}

		setup.nextAlpha = alphaEntry
	} else {
		// The LOR has no component along this axis

		if crys1 < lowPlane || crys1 > highPlane {
			// The LOR doesn't intersect the volume
			return setup, false
		}

		// Cancelled axis: widest allowed alpha range so these values do
		// not interfere with the entry point, and nextAlpha pinned to the
		// exit so the axis never advances
		setup = dimSetup{
			diff:      EpsGeom,
			dir:       dirNeg,
			alphaMin:  alphaEntry,
			alphaMax:  alphaExit,
			nextAlpha: alphaExit,
		}
	}

	return setup, true
}

func (s *Siddon) startInd(dim int, crys1, diff, alphaMin float64) int {
	ind := int((crys1 + diff*alphaMin - s.lowPlanes[dim]) / s.voxelExtent[dim])

	if ind < 0 {
		ind = 0
	} else if ind > s.volSizeM1[dim] {
		ind = s.volSizeM1[dim]
	}

	return ind
}

func (s *Siddon) prepareDim(
	dim int,
	crys1 float64,
	setup *dimSetup,
	position *[3]int,
	dAlpha *[3]float64,
) float64 {

	alpha := setup.nextAlpha

	if alpha < alphaExit {
		planeDist := s.lowPlanes[dim] +
			s.voxelExtent[dim]*float64(position[dim]) -
			crys1

		alpha = planeDist / setup.diff
	}

	if setup.dir > 0 {
		alpha += dAlpha[dim]
	}

	return alpha
}

func updateDim(
	dim int,
	alphaDim *[3]float64,
	position *[3]int,
	nextAlpha float64,
	dAlpha *[3]float64,
	dir int,
) {
	if math.Abs(alphaDim[dim]-nextAlpha) < EpsGeom {
		alphaDim[dim] += dAlpha[dim]
		position[dim] += dir
	}
}

func (s *Siddon) checkIndices(position *[3]int) bool {
	return position[dimX] >= 0 && position[dimX] <= s.volSizeM1[dimX] &&
		position[dimY] >= 0 && position[dimY] <= s.volSizeM1[dimY] &&
		position[dimZ] >= 0 && position[dimZ] <= s.volSizeM1[dimZ]
}

func (s *Siddon) linearCoord(position *[3]int) int32 {
	return int32(position[dimX]) +
		int32(position[dimY])*s.rowSize +
		int32(position[dimZ])*s.sliceSize
}
