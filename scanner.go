package fir

import (
	"errors"
	"fmt"
	"math"
)

// ScannerData holds the validated scanner description together with the two
// derived position tables used by the ray tracer: the XY position of each
// crystal in a ring and the Z position of each slice.
type ScannerData struct {
	header   ScannerHeader
	geometry ScannerGeometry

	crystalXY []Coords2
	sliceZ    []float64
}

// NewScannerData validates the header, derives the geometry and builds the
// crystal position tables.
func NewScannerData(header ScannerHeader) (*ScannerData, error) {
	if err := header.Check(); err != nil {
		return nil, err
	}

	s := &ScannerData{header: header}
	s.geometry.Fill(&s.header)

	s.computeCrystalXYPositions()
	s.computeSliceZPositions()

	return s, nil
}

// Header returns the validated scanner header.
func (s *ScannerData) Header() *ScannerHeader {
	return &s.header
}

// Geometry returns the derived scanner geometry.
func (s *ScannerData) Geometry() *ScannerGeometry {
	return &s.geometry
}

// CrystalXYPositions returns the XY position of each crystal in a ring.
func (s *ScannerData) CrystalXYPositions() []Coords2 {
	return s.crystalXY
}

// SliceZPositions returns the Z position of each slice. Even slices are
// aligned with a ring, odd slices sit midway between neighbouring rings.
func (s *ScannerData) SliceZPositions() []float64 {
	return s.sliceZ
}

// CheckProjData verifies that a projection shares the scanner's ring count
// and crystals per ring.
func (s *ScannerData) CheckProjData(proj *ProjData) error {
	h := proj.Header()
	if h.NRings != s.geometry.NRings || h.NCrystalsPerRing != s.geometry.NCrystalsPerRing {
		return errors.Join(
			ErrScannerProjMismatch,
			fmt.Errorf(
				"projection must have the same number of rings (%d) and crystals per ring (%d) as the scanner",
				s.geometry.NRings, s.geometry.NCrystalsPerRing))
	}

	return nil
}

// CrystalCoordinates converts GATE-style (rSector, module, crystal)
// identifiers into a ring index and a crystal-in-ring index.
func (s *ScannerData) CrystalCoordinates(rSectorID, moduleID, crystalID int) (ring, crystal int) {
	moduleRepeatY := s.header.ModuleRepeatNumbersYZ[0]
	crystalRepeatY := s.header.CrystalRepeatNumbersYZ[0]
	crystalRepeatZ := s.header.CrystalRepeatNumbersYZ[1]

	ring = (moduleID/moduleRepeatY)*crystalRepeatZ + crystalID/crystalRepeatY

	crystal = rSectorID*moduleRepeatY*crystalRepeatY +
		(moduleID%moduleRepeatY)*crystalRepeatY +
		crystalID%crystalRepeatY -
		s.geometry.CrystalOffset
	if crystal < 0 {
		crystal += s.geometry.NCrystalsPerRing
	}

	return ring, crystal
}

func rotateXY(x, y, angle float64) (float64, float64) {
	cosAngle := math.Cos(angle)
	sinAngle := math.Sin(angle)

	return x*cosAngle - y*sinAngle, x*sinAngle + y*cosAngle
}

// computeCrystalXYPositions places the crystals of the first (vertical)
// rSector and repeats them rotationally around the origin. Crystal index 0
// is the middle crystal of the first rSector, on the +X axis.
func (s *ScannerData) computeCrystalXYPositions() {
	nCrystalsY := s.header.CrystalRepeatNumbersYZ[0]
	crystalRepeatY := s.geometry.CrystalRepeatVectorYZ[0]

	nModulesY := s.header.ModuleRepeatNumbersYZ[0]
	moduleRepeatY := s.geometry.ModuleRepeatVectorYZ[0]

	// Y position of the first crystal of the first rSector: half the
	// distance between its first and last crystal, on the negative Y side
	firstCrystalY := -(float64(nModulesY-1)*moduleRepeatY +
		float64(nCrystalsY-1)*crystalRepeatY) / 2.0

	rSectorNCrystalsY := nModulesY * nCrystalsY
	rSectorY := make([]float64, rSectorNCrystalsY)
	for moduleIndex := 0; moduleIndex < nModulesY; moduleIndex++ {
		for crystalIndex := 0; crystalIndex < nCrystalsY; crystalIndex++ {
			rSectorY[moduleIndex*nCrystalsY+crystalIndex] =
				float64(moduleIndex)*moduleRepeatY +
					float64(crystalIndex)*crystalRepeatY +
					firstCrystalY
		}
	}

	s.crystalXY = make([]Coords2, s.geometry.NCrystalsPerRing)

	angleInterval := 2 * math.Pi / float64(s.header.RSectorRepeatNumber)

	// Index of the first crystal of the first rSector, chosen so that the
	// crystal with index 0 sits on the X axis or next to it
	firstCrystalIndex := s.geometry.NCrystalsPerRing - s.geometry.CrystalOffset

	for crystalIndex := 0; crystalIndex < firstCrystalIndex; crystalIndex++ {
		withOffset := crystalIndex + s.geometry.CrystalOffset

		y := rSectorY[withOffset%rSectorNCrystalsY]
		angle := float64(withOffset/rSectorNCrystalsY) * angleInterval

		xRot, yRot := rotateXY(s.geometry.RSectorTranslationX, y, angle)

		s.crystalXY[crystalIndex] = Coords2{X: xRot, Y: yRot}
	}

	// Complete the first half of the first rSector
	for crystalIndex := firstCrystalIndex; crystalIndex < s.geometry.NCrystalsPerRing; crystalIndex++ {
		s.crystalXY[crystalIndex] = Coords2{
			X: s.geometry.RSectorTranslationX,
			Y: rSectorY[crystalIndex-firstCrystalIndex],
		}
	}
}

// computeSliceZPositions builds the slice table: even slices take ring Z
// positions, odd slices take the mean of the neighbouring rings.
func (s *ScannerData) computeSliceZPositions() {
	nCrystalsZ := s.header.CrystalRepeatNumbersYZ[1]
	crystalRepeatZ := s.geometry.CrystalRepeatVectorYZ[1]

	nModulesZ := s.header.ModuleRepeatNumbersYZ[1]
	moduleRepeatZ := s.geometry.ModuleRepeatVectorYZ[1]

	firstRingZ := -(float64(nModulesZ-1)*moduleRepeatZ +
		float64(nCrystalsZ-1)*crystalRepeatZ) / 2.0

	ringZ := make([]float64, nModulesZ*nCrystalsZ)
	for moduleIndex := 0; moduleIndex < nModulesZ; moduleIndex++ {
		for crystalIndex := 0; crystalIndex < nCrystalsZ; crystalIndex++ {
			ringZ[moduleIndex*nCrystalsZ+crystalIndex] =
				float64(moduleIndex)*moduleRepeatZ +
					float64(crystalIndex)*crystalRepeatZ +
					firstRingZ
		}
	}

	s.sliceZ = make([]float64, s.geometry.NSlices)
	for sliceIndex := 0; sliceIndex < s.geometry.NSlices; sliceIndex++ {
		if sliceIndex%2 == 0 {
			s.sliceZ[sliceIndex] = ringZ[sliceIndex/2]
		} else {
			s.sliceZ[sliceIndex] = (ringZ[sliceIndex/2] + ringZ[(sliceIndex+1)/2]) / 2.0
		}
	}
}
