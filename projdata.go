package fir

import (
	"errors"
	"fmt"
	"math"
)

// ConstructionMode selects how the data of a freshly built projection or
// volume is set up.
type ConstructionMode int

const (
	// Allocate data without initializing it
	Allocate ConstructionMode = iota

	// Initialize all elements to the value provided
	Initialize

	// Copy the data of the source object (error if it has none)
	CopyData

	// CopyData if the source has data, Initialize otherwise
	CopyDataIfAllocated
)

// BinAddr addresses a single projection bin.
type BinAddr struct {
	Seg        int
	View       int
	AxialCoord int
	TangCoord  int
}

// ProjData owns the measured or computed sinogram: one bin per (segment,
// view, axial, tangential) coordinate. Storage is a single contiguous
// float32 buffer carved into per-segment subslices, view-major within a
// segment.
type ProjData struct {
	header   ProjHeader
	geometry ProjGeometry

	data []BinValue
	segs [][]BinValue
}

// NewProjData validates the header and builds a projection with the
// requested construction mode. CopyData is not meaningful here; use
// NewProjDataFrom or attach loaded bins with NewProjDataWithBins.
func NewProjData(header ProjHeader, mode ConstructionMode, initValue BinValue) (*ProjData, error) {
	if err := header.Check(); err != nil {
		return nil, err
	}

	p := &ProjData{header: header}
	p.geometry.Fill(&p.header)
	p.allocate()

	if mode == Initialize {
		p.SetAllBins(initValue)
	}

	return p, nil
}

// NewProjDataWithBins validates the header and attaches a loaded bin
// buffer, which must hold exactly NBins values in segment-major order.
func NewProjDataWithBins(header ProjHeader, bins []BinValue) (*ProjData, error) {
	if err := header.Check(); err != nil {
		return nil, err
	}

	p := &ProjData{header: header}
	p.geometry.Fill(&p.header)

	if len(bins) != p.geometry.NBins {
		return nil, projErr(
			"bin buffer holds %d values but the header describes %d bins",
			len(bins), p.geometry.NBins)
	}

	p.data = bins
	p.sliceSegments()

	return p, nil
}

// NewProjDataFrom builds an empty or copied projection with the same
// dimensions as an existing one.
func NewProjDataFrom(proj *ProjData, mode ConstructionMode, initValue BinValue) *ProjData {
	p := &ProjData{header: proj.header, geometry: proj.geometry}
	p.allocate()

	switch mode {
	case Initialize:
		p.SetAllBins(initValue)
	case CopyData, CopyDataIfAllocated:
		if proj.Allocated() {
			copy(p.data, proj.data)
		} else {
			p.SetAllBins(initValue)
		}
	}

	return p
}

func (p *ProjData) allocate() {
	p.data = make([]BinValue, p.geometry.NBins)
	p.sliceSegments()
}

func (p *ProjData) sliceSegments() {
	p.segs = make([][]BinValue, p.header.NSegments)

	offset := 0
	for seg := -p.geometry.SegOffset; seg <= p.geometry.SegOffset; seg++ {
		n := p.geometry.NAxialCoordsFor(seg) * p.geometry.NViews * p.header.NTangCoords
		p.segs[seg+p.geometry.SegOffset] = p.data[offset : offset+n : offset+n]
		offset += n
	}
}

// Allocated reports whether the projection owns bin data.
func (p *ProjData) Allocated() bool {
	return p.data != nil
}

// Header returns the validated projection header.
func (p *ProjData) Header() *ProjHeader {
	return &p.header
}

// Geometry returns the derived projection geometry.
func (p *ProjData) Geometry() *ProjGeometry {
	return &p.geometry
}

// Data returns the full contiguous bin buffer in segment-major order.
func (p *ProjData) Data() []BinValue {
	return p.data
}

// Segment returns the bin buffer of one segment, view-major.
func (p *ProjData) Segment(seg int) []BinValue {
	return p.segs[seg+p.geometry.SegOffset]
}

// CheckNSubsets verifies that the number of subsets divides the number of
// views, a requirement of subset iteration.
func (p *ProjData) CheckNSubsets(nSubsets int) error {
	if nSubsets <= 0 || p.geometry.NViews%nSubsets != 0 {
		return errors.Join(
			ErrNSubsets,
			fmt.Errorf("number of subsets (%d) must be a divisor of %d", nSubsets, p.geometry.NViews))
	}

	return nil
}

// binInd returns the segment slice index and the offset of a bin within it.
func (p *ProjData) binInd(seg, view, axialCoord, tangCoord int) (int, int) {
	segIdx := seg + p.geometry.SegOffset

	ind := view*p.geometry.NAxialCoords[segIdx]*p.header.NTangCoords +
		axialCoord*p.header.NTangCoords +
		tangCoord + p.geometry.TangCoordOffset

	return segIdx, ind
}

// Bin returns the value of a single bin.
func (p *ProjData) Bin(seg, view, axialCoord, tangCoord int) BinValue {
	segIdx, ind := p.binInd(seg, view, axialCoord, tangCoord)
	return p.segs[segIdx][ind]
}

// SetBin sets the value of a single bin.
func (p *ProjData) SetBin(seg, view, axialCoord, tangCoord int, value BinValue) {
	segIdx, ind := p.binInd(seg, view, axialCoord, tangCoord)
	p.segs[segIdx][ind] = value
}

// IncrementBin adds one count to a single bin.
func (p *ProjData) IncrementBin(seg, view, axialCoord, tangCoord int) {
	segIdx, ind := p.binInd(seg, view, axialCoord, tangCoord)
	p.segs[segIdx][ind]++
}

// WeightBin multiplies a single bin by a weight.
func (p *ProjData) WeightBin(seg, view, axialCoord, tangCoord int, weight BinValue) {
	segIdx, ind := p.binInd(seg, view, axialCoord, tangCoord)
	p.segs[segIdx][ind] *= weight
}

// SetAllBins fills every bin of every segment with the same value.
func (p *ProjData) SetAllBins(value BinValue) {
	runChunks(len(p.data), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			p.data[i] = value
		}
	})
}

// Mul multiplies the projection bin-by-bin with another projection of the
// same dimensions. If either operand is <= EpsValue the result is zero,
// which suppresses noise propagation through near-empty bins.
func (p *ProjData) Mul(input *ProjData) error {
	if p.header != input.header {
		return ErrProjMismatch
	}

	runChunks(len(p.data), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			if p.data[i] > EpsValue && input.data[i] > EpsValue {
				p.data[i] *= input.data[i]
			} else {
				p.data[i] = 0
			}
		}
	})

	return nil
}

// Exponential replaces every bin above EpsValue with its exponential and
// every other bin with one. Used to turn forward-projected attenuation
// line integrals into correction factors.
func (p *ProjData) Exponential() {
	runChunks(len(p.data), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			if p.data[i] > EpsValue {
				p.data[i] = BinValue(math.Exp(float64(p.data[i])))
			} else {
				p.data[i] = 1
			}
		}
	})
}

// CrystalAxialCoords returns the two crystal axial (slice) indices of a
// bin. The axial index ranges over [0, 2*nRings-1].
func (p *ProjData) CrystalAxialCoords(seg, axialCoord int) (int, int) {
	var crystalAxialCoord1, crystalAxialCoord2 int

	switch {
	case p.header.SegmentSpan == 1:
		if seg == 0 {
			crystalAxialCoord1 = 2 * axialCoord
			crystalAxialCoord2 = crystalAxialCoord1
		} else if seg > 0 {
			crystalAxialCoord1 = 2 * (axialCoord + seg)
			crystalAxialCoord2 = 2 * axialCoord
		} else {
			crystalAxialCoord1 = 2 * axialCoord
			crystalAxialCoord2 = 2 * (axialCoord - seg)
		}

	case seg == 0:
		crystalAxialCoord1 = axialCoord
		crystalAxialCoord2 = axialCoord

	default:
		midSegRingDiff := absInt(seg) * p.header.SegmentSpan

		if axialCoord < p.geometry.HalfSegmentSpan {
			// Initial portion: one crystal pinned to slice 0
			ringDiff := midSegRingDiff - p.geometry.HalfSegmentSpan + axialCoord

			if seg > 0 {
				crystalAxialCoord1 = 2 * ringDiff
				crystalAxialCoord2 = 0
			} else {
				crystalAxialCoord1 = 0
				crystalAxialCoord2 = 2 * ringDiff
			}
		} else {
			invertedAxialCoord := p.geometry.NAxialCoordsFor(seg) - axialCoord - 1

			if invertedAxialCoord < p.geometry.HalfSegmentSpan {
				// Final portion: one crystal pinned to the last slice
				ringDiff := midSegRingDiff - p.geometry.HalfSegmentSpan + invertedAxialCoord

				sliceMax := 2*p.header.NRings - 2

				if seg > 0 {
					crystalAxialCoord1 = sliceMax
					crystalAxialCoord2 = sliceMax - 2*ringDiff
				} else {
					crystalAxialCoord1 = sliceMax - 2*ringDiff
					crystalAxialCoord2 = sliceMax
				}
			} else {
				// Central portion
				adjustedAxialCoord := axialCoord - p.geometry.HalfSegmentSpan

				if seg > 0 {
					crystalAxialCoord1 = 2*midSegRingDiff + adjustedAxialCoord
					crystalAxialCoord2 = adjustedAxialCoord
				} else {
					crystalAxialCoord1 = adjustedAxialCoord
					crystalAxialCoord2 = 2*midSegRingDiff + adjustedAxialCoord
				}
			}
		}
	}

	return crystalAxialCoord1, crystalAxialCoord2
}

// CrystalAngCoords returns the two crystal indices within a ring for a
// (view, tangential) pair, wrapped into [0, nCrystalsPerRing).
func (p *ProjData) CrystalAngCoords(view, tangCoord int) (int, int) {
	// Floor division toward minus infinity
	var crystalTranslation int
	if tangCoord >= 0 {
		crystalTranslation = tangCoord / 2
	} else {
		crystalTranslation = (tangCoord - 1) / 2
	}

	oddBinAdjustment := absInt(tangCoord) % 2

	crystalAngCoord1 := view + crystalTranslation + oddBinAdjustment
	crystalAngCoord2 := view + p.geometry.NViews - crystalTranslation

	if crystalAngCoord1 < 0 {
		crystalAngCoord1 += p.header.NCrystalsPerRing
	} else if crystalAngCoord1 >= p.header.NCrystalsPerRing {
		crystalAngCoord1 -= p.header.NCrystalsPerRing
	}

	if crystalAngCoord2 < 0 {
		crystalAngCoord2 += p.header.NCrystalsPerRing
	} else if crystalAngCoord2 >= p.header.NCrystalsPerRing {
		crystalAngCoord2 -= p.header.NCrystalsPerRing
	}

	return crystalAngCoord1, crystalAngCoord2
}

// BinCoordinates is the inverse of the crystal-coordinate maps. It returns
// the bin addressed by a crystal pair, or ok == false when the LOR falls
// outside the allocated segments or tangential range. The axial arguments
// are ring indices, not the slice indices returned by CrystalAxialCoords.
func (p *ProjData) BinCoordinates(
	crystalAxialCoord1, crystalAngCoord1, crystalAxialCoord2, crystalAngCoord2 int,
) (BinAddr, bool) {

	var addr BinAddr

	absSeg := absInt(crystalAxialCoord1 - crystalAxialCoord2)
	if absSeg > p.geometry.MaxRingDiff {
		return addr, false
	}

	// Tangential coordinate. The sign flips for crystal sums in
	// [nCrystalsPerRing/2, 3*nCrystalsPerRing/2).
	sum := crystalAngCoord1 + crystalAngCoord2
	sign1 := +1
	if sum >= p.header.NCrystalsPerRing/2 && sum < 3*p.header.NCrystalsPerRing/2 {
		sign1 = -1
	}

	tangCoord := sign1 *
		(absInt(crystalAngCoord2-crystalAngCoord1) - p.header.NCrystalsPerRing/2)

	if tangCoord < -p.geometry.TangCoordOffset ||
		tangCoord >= -p.geometry.TangCoordOffset+p.header.NTangCoords {
		return addr, false
	}

	// Axial coordinate
	var axialCoord int
	if p.header.SegmentSpan == 1 {
		axialCoord = (crystalAxialCoord1 + crystalAxialCoord2 - absSeg) / 2
	} else {
		// Fold the ring difference into the fused segment
		inCentralSeg := absSeg <= p.geometry.HalfSegmentSpan

		if inCentralSeg {
			absSeg = 0
		} else {
			absSeg = 1 + (absSeg-p.geometry.HalfSegmentSpan-1)/p.header.SegmentSpan
		}

		// Slice sum at the start of the segment
		var sliceBase int
		if !inCentralSeg {
			sliceBase = 1 + p.geometry.HalfSegmentSpan + (absSeg-1)*p.header.SegmentSpan
		}

		axialCoord = crystalAxialCoord1 + crystalAxialCoord2 - sliceBase
	}

	view := ((sum + p.header.NCrystalsPerRing/2) % p.header.NCrystalsPerRing) / 2

	// Segment sign
	seg := absSeg
	if seg != 0 {
		sign2 := +1
		if crystalAngCoord1 >= crystalAngCoord2 {
			sign2 = -1
		}

		// Half the tangential offset needed to reach the parallel LOR
		// closest to the center (tangCoord 0 for even bins, 1 for odd)
		var u int
		if absInt(tangCoord)%2 == 0 {
			u = -tangCoord / 2
		} else {
			u = -(tangCoord - 1) / 2
		}

		c1 := crystalAngCoord1 - sign1*sign2*u
		c2 := crystalAngCoord2 + sign1*sign2*u

		if c1 >= p.header.NCrystalsPerRing {
			c1 -= p.header.NCrystalsPerRing
		} else if c1 < 0 {
			c1 += p.header.NCrystalsPerRing
		}

		if c2 >= p.header.NCrystalsPerRing {
			c2 -= p.header.NCrystalsPerRing
		} else if c2 < 0 {
			c2 += p.header.NCrystalsPerRing
		}

		segSign := +1
		if crystalAxialCoord1 < crystalAxialCoord2 {
			segSign = -1
		}

		segFlip := +1
		if c1 >= c2 {
			segFlip = -1
		}

		seg = seg * segSign * segFlip
	}

	addr = BinAddr{Seg: seg, View: view, AxialCoord: axialCoord, TangCoord: tangCoord}

	return addr, true
}

// RebinWeight divides each bin by the number of ring pairs collapsed into
// it. Only meaningful for spans greater than one and only after a backward
// projection that summed over all ring pairs; callers opt in explicitly.
func (p *ProjData) RebinWeight() {
	if p.header.SegmentSpan == 1 {
		return
	}

	for ringSum := 0; ringSum <= 2*(p.header.NRings-1); ringSum++ {
		localMaxRingDiff := ringSum
		if ringSum > p.header.NRings-1 {
			localMaxRingDiff = 2*(p.header.NRings-1) - ringSum
		}
		if localMaxRingDiff > p.geometry.MaxRingDiff {
			localMaxRingDiff = p.geometry.MaxRingDiff
		}

		// Ring sum and ring difference must share parity
		if (ringSum+localMaxRingDiff)%2 != 0 {
			localMaxRingDiff--
		}

		// Find the segment holding the most negative ring difference
		seg := -p.geometry.SegOffset - 1
		nextRingDiff := -p.geometry.MaxRingDiff - 1
		for nextRingDiff < -localMaxRingDiff {
			seg++
			nextRingDiff += p.header.SegmentSpan
		}

		weight := 1
		for ringDiff := -localMaxRingDiff; ringDiff <= localMaxRingDiff; ringDiff += 2 {
			if ringDiff == localMaxRingDiff || ringDiff+1 >= nextRingDiff {
				if weight > 1 {
					axialCoord := ringSum
					if seg != 0 {
						axialCoord = ringSum - (p.header.SegmentSpan+1)/2 -
							(absInt(seg)-1)*p.header.SegmentSpan
					}

					for view := 0; view < p.geometry.NViews; view++ {
						for tangCoord := -p.geometry.TangCoordOffset; tangCoord < -p.geometry.TangCoordOffset+p.header.NTangCoords; tangCoord++ {
							p.WeightBin(seg, view, axialCoord, tangCoord, 1/BinValue(weight))
						}
					}
				}

				weight = 1
				seg++
				nextRingDiff += p.header.SegmentSpan
			} else {
				weight++
			}
		}
	}
}
