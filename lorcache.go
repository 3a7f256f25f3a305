package fir

import (
	"errors"
	"fmt"
)

// lorInvalid marks a disabled cache entry. Crystal identifiers are packed
// into 16 bits, which holds for all in-scope scanners; the bound is
// enforced at construction.
const lorInvalid uint16 = 0xFFFF

type lorEntry struct {
	crystal1 uint16
	crystal2 uint16
}

// LORCache holds, for each (subset, segment), the crystal pairs of the bins
// of that subset in iteration order, so back-projection can stream through
// LORs without recomputing crystal coordinates. LORs that never intersect
// the volume are disabled in place by writing the sentinel.
type LORCache struct {
	nSubsets        int
	nViewsPerSubset int

	nCrystalsPerRing int
	segOffset        int
	nSegments        int

	// Bins per view for each segment
	nBinsPerView []int

	// One contiguous entry buffer; offsets[subset*nSegments+segIdx] is the
	// start of that (subset, segment) slice
	entries []lorEntry
	offsets []int

	// Active slice selected by SetSubsetSegment
	currentSubset      int
	currentBinsPerView int
	currentEntries     []lorEntry
}

// NewLORCache builds the cache from the projection geometry. The number of
// subsets must divide the number of views.
func NewLORCache(proj *ProjData, nSubsets int) (*LORCache, error) {
	if err := proj.CheckNSubsets(nSubsets); err != nil {
		return nil, err
	}

	header := proj.Header()
	geometry := proj.Geometry()

	// The packed crystal id is slice*nCrystalsPerRing+ang; the largest one
	// must stay below the sentinel
	maxCrystal := (2*header.NRings-2)*header.NCrystalsPerRing + header.NCrystalsPerRing - 1
	if maxCrystal >= int(lorInvalid) {
		return nil, errors.Join(
			ErrCrystalPacking,
			fmt.Errorf("largest packed crystal id %d does not fit in 16 bits", maxCrystal))
	}

	c := &LORCache{
		nSubsets:         nSubsets,
		nViewsPerSubset:  geometry.NViews / nSubsets,
		nCrystalsPerRing: header.NCrystalsPerRing,
		segOffset:        geometry.SegOffset,
		nSegments:        header.NSegments,
	}

	c.nBinsPerView = make([]int, header.NSegments)
	total := 0
	for seg := -c.segOffset; seg <= c.segOffset; seg++ {
		c.nBinsPerView[seg+c.segOffset] = geometry.NAxialCoordsFor(seg) * header.NTangCoords
		total += c.nViewsPerSubset * c.nBinsPerView[seg+c.segOffset]
	}
	total *= nSubsets

	c.entries = make([]lorEntry, total)
	c.offsets = make([]int, nSubsets*header.NSegments)

	offset := 0
	for subset := 0; subset < nSubsets; subset++ {
		for seg := -c.segOffset; seg <= c.segOffset; seg++ {
			segIdx := seg + c.segOffset
			c.offsets[subset*c.nSegments+segIdx] = offset

			index := offset
			for subsetView := 0; subsetView < c.nViewsPerSubset; subsetView++ {
				view := subset + subsetView*nSubsets

				for axialCoord := 0; axialCoord < geometry.NAxialCoordsFor(seg); axialCoord++ {
					crystalAxialCoord1, crystalAxialCoord2 :=
						proj.CrystalAxialCoords(seg, axialCoord)

					for tangCoord := -geometry.TangCoordOffset; tangCoord < -geometry.TangCoordOffset+header.NTangCoords; tangCoord++ {
						crystalAngCoord1, crystalAngCoord2 :=
							proj.CrystalAngCoords(view, tangCoord)

						c.entries[index] = lorEntry{
							crystal1: uint16(crystalAxialCoord1*c.nCrystalsPerRing + crystalAngCoord1),
							crystal2: uint16(crystalAxialCoord2*c.nCrystalsPerRing + crystalAngCoord2),
						}
						index++
					}
				}
			}

			offset += c.nViewsPerSubset * c.nBinsPerView[segIdx]
		}
	}

	return c, nil
}

// SetSubsetSegment selects the active (subset, segment) slice and returns
// the number of bins it holds. GetLOR and DisableLOR then take indices
// local to that slice.
func (c *LORCache) SetSubsetSegment(subset, seg int) int {
	segIdx := seg + c.segOffset

	c.currentSubset = subset
	c.currentBinsPerView = c.nBinsPerView[segIdx]

	nBins := c.nViewsPerSubset * c.currentBinsPerView
	start := c.offsets[subset*c.nSegments+segIdx]
	c.currentEntries = c.entries[start : start+nBins]

	return nBins
}

// GetLOR returns the crystal coordinates of a cached LOR together with the
// offset of its bin within the full (unsubsetted) segment array. valid is
// false for entries disabled by DisableLOR; their crystal coordinates are
// zero.
func (c *LORCache) GetLOR(index int) (
	valid bool,
	binIndex int,
	crystalAxialCoord1, crystalAngCoord1, crystalAxialCoord2, crystalAngCoord2 int,
) {

	if c.nSubsets == 1 {
		binIndex = index
	} else {
		// Reconstruct view = subset + (index / binsPerView) * nSubsets
		binIndex = c.currentSubset*c.currentBinsPerView +
			index/c.currentBinsPerView*c.nSubsets*c.currentBinsPerView +
			index%c.currentBinsPerView
	}

	lor := c.currentEntries[index]

	valid = lor.crystal1 != lorInvalid
	if valid {
		crystalAxialCoord1 = int(lor.crystal1) / c.nCrystalsPerRing
		crystalAngCoord1 = int(lor.crystal1) % c.nCrystalsPerRing
		crystalAxialCoord2 = int(lor.crystal2) / c.nCrystalsPerRing
		crystalAngCoord2 = int(lor.crystal2) % c.nCrystalsPerRing
	}

	return valid, binIndex,
		crystalAxialCoord1, crystalAngCoord1, crystalAxialCoord2, crystalAngCoord2
}

// DisableLOR marks a cached LOR as permanently invalid. On the first
// iteration each index has a single writer, so the write is race-free;
// later readers observe either value, both of which are legal.
func (c *LORCache) DisableLOR(index int) {
	c.currentEntries[index].crystal1 = lorInvalid
}
