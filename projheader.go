package fir

import (
	"errors"
	"fmt"
)

// Projection dimensions:
//
//	          || Axial          | Transversal |
//	==========||================|=============|
//	   Angle  || segment        | view        |
//	Distance  || axialCoord     | tangCoord   |
//
// The number of axial coordinates depends on the segment.
type ProjHeader struct {
	// Scanner basic geometry; must match the associated scanner
	NRings           int
	NCrystalsPerRing int

	// Michelogram compression
	SegmentSpan int

	// Fundamental projection dimensions (the other two are derived)
	NSegments   int
	NTangCoords int // 0 selects the maximum value
}

// SetDefaults fills the header with default values. Must be called before
// setting specific values.
func (h *ProjHeader) SetDefaults() {
	h.NRings = 0
	h.NCrystalsPerRing = 0

	// Keep only the central diagonal by default
	h.SegmentSpan = 1
	h.NSegments = 1

	// Replaced by the maximum possible value in Check
	h.NTangCoords = 0
}

func projErr(format string, args ...any) error {
	return errors.Join(ErrProjHeader, fmt.Errorf(format, args...))
}

// Check validates the header and substitutes the default number of
// tangential coordinates. Must be called after setting values and before
// deriving the geometry.
func (h *ProjHeader) Check() error {
	if h.NRings <= 0 {
		return projErr("\"number of rings\" must be provided and > 0")
	}

	if h.NCrystalsPerRing <= 0 {
		return projErr("\"number of crystals per ring\" must be provided and > 0")
	}
	if h.NCrystalsPerRing%4 != 0 {
		return projErr("\"number of crystals per ring\" must be a multiple of four")
	}

	if h.SegmentSpan <= 0 {
		return projErr("\"segment span\" must be > 0")
	}
	if h.SegmentSpan%2 != 1 {
		return projErr("\"segment span\" must be an odd number")
	}

	// Maximum span allowed, guaranteed to be odd
	maxSpan := 2*h.NRings - 1
	if h.SegmentSpan > maxSpan {
		return projErr("for %d ring(s), \"segment span\" must not be > %d", h.NRings, maxSpan)
	}

	if h.NSegments < 0 {
		return projErr("\"number of segments\" must not be negative")
	}
	if h.NSegments%2 != 1 {
		return projErr("\"number of segments\" must be an odd number")
	}

	// Maximum number of segments allowed; decrement if even to make it odd
	maxNSegments := maxSpan / h.SegmentSpan
	maxNSegments -= 1 - maxNSegments%2
	if h.NSegments > maxNSegments {
		return projErr(
			"for %d ring(s) and a segment span of %d, \"number of segments\" must not be > %d",
			h.NRings, h.SegmentSpan, maxNSegments)
	}

	if h.NTangCoords < 0 {
		return projErr("\"number of tangential coordinates\" must not be negative")
	}

	maxNTangCoords := h.NCrystalsPerRing - 1
	if h.NTangCoords == 0 {
		h.NTangCoords = maxNTangCoords
	} else if h.NTangCoords > maxNTangCoords {
		return projErr(
			"for %d crystals per ring, \"number of tangential coordinates\" must not be > %d",
			h.NCrystalsPerRing, maxNTangCoords)
	}

	return nil
}

// ProjGeometry holds the parameters derived from a validated header.
type ProjGeometry struct {
	// Total number of bins kept in memory
	NBins int

	// Offsets for bin coordinates that can be negative: a vector over
	// segments is indexed with seg+SegOffset, a vector over tangential
	// coordinates with tangCoord+TangCoordOffset
	SegOffset       int
	TangCoordOffset int

	// Number of axial coordinates for each segment
	NAxialCoords []int

	NViews int

	// Number of michelogram diagonals on each side of the central diagonal
	// within a segment
	HalfSegmentSpan int

	// Distance from the central diagonal to the outermost one kept
	MaxRingDiff int
}

// NAxialCoordsFor returns the number of axial coordinates of a segment.
func (g *ProjGeometry) NAxialCoordsFor(seg int) int {
	return g.NAxialCoords[seg+g.SegOffset]
}

// Fill derives the geometry from a validated header.
func (g *ProjGeometry) Fill(h *ProjHeader) {
	g.SegOffset = (h.NSegments - 1) / 2
	g.TangCoordOffset = h.NTangCoords / 2

	g.NAxialCoords = make([]int, h.NSegments)
	if h.SegmentSpan == 1 {
		// The segment length reduces by one for each segment away from the
		// central segment, which is as long as the number of rings
		for seg := -g.SegOffset; seg <= g.SegOffset; seg++ {
			g.NAxialCoords[seg+g.SegOffset] = h.NRings - absInt(seg)
		}
	} else {
		centralSegmentLength := 2*h.NRings - 1

		for seg := -g.SegOffset; seg <= g.SegOffset; seg++ {
			absSeg := absInt(seg)

			segmentLength := centralSegmentLength
			if absSeg >= 1 {
				// Length reduction when leaving the central segment
				segmentLength -= h.SegmentSpan + 1

				if absSeg >= 2 {
					// Further reduction for each subsequent displacement
					segmentLength -= 2 * h.SegmentSpan * (absSeg - 1)
				}
			}

			g.NAxialCoords[seg+g.SegOffset] = segmentLength
		}
	}

	g.NViews = h.NCrystalsPerRing / 2

	g.NBins = 0
	for seg := -g.SegOffset; seg <= g.SegOffset; seg++ {
		g.NBins += g.NAxialCoords[seg+g.SegOffset] * g.NViews * h.NTangCoords
	}

	g.HalfSegmentSpan = (h.SegmentSpan - 1) / 2

	if h.SegmentSpan == 1 {
		g.MaxRingDiff = g.SegOffset
	} else {
		g.MaxRingDiff = g.HalfSegmentSpan
		if g.SegOffset > 0 {
			g.MaxRingDiff += g.SegOffset * h.SegmentSpan
		}
	}
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
