package fir

import (
	"errors"
	"testing"
)

// Every valid cache entry must map back through BinCoordinates to the
// segment it is stored under, and its reconstructed bin index must address
// the same bin in the full segment array.
func TestLORCacheEntriesMatchBinCoordinates(t *testing.T) {
	proj := projFixture(t, 1)
	geometry := proj.Geometry()
	header := proj.Header()

	for _, nSubsets := range []int{1, 2, 4} {
		cache, err := NewLORCache(proj, nSubsets)
		if err != nil {
			t.Fatalf("NewLORCache: %v", err)
		}

		for subset := 0; subset < nSubsets; subset++ {
			for seg := -geometry.SegOffset; seg <= geometry.SegOffset; seg++ {
				nBins := cache.SetSubsetSegment(subset, seg)

				expectedBins := geometry.NAxialCoordsFor(seg) * header.NTangCoords *
					geometry.NViews / nSubsets
				if nBins != expectedBins {
					t.Fatalf("subset %d segment %d: expected %d bins, got %d",
						subset, seg, expectedBins, nBins)
				}

				for index := 0; index < nBins; index++ {
					valid, binIndex, slice1, crystal1, slice2, crystal2 := cache.GetLOR(index)
					if !valid {
						t.Fatalf("entry (%d, %d, %d) unexpectedly invalid", subset, seg, index)
					}

					addr, ok := proj.BinCoordinates(slice1/2, crystal1, slice2/2, crystal2)
					if !ok {
						t.Fatalf("entry (%d, %d, %d) does not map to a bin", subset, seg, index)
					}

					if addr.Seg != seg {
						t.Fatalf("entry (%d, %d, %d): segment %d from inverse map",
							subset, seg, index, addr.Seg)
					}

					if addr.View%nSubsets != subset {
						t.Fatalf("entry (%d, %d, %d): view %d not in subset",
							subset, seg, index, addr.View)
					}

					expectedIndex := addr.View*geometry.NAxialCoordsFor(seg)*header.NTangCoords +
						addr.AxialCoord*header.NTangCoords +
						addr.TangCoord + geometry.TangCoordOffset
					if binIndex != expectedIndex {
						t.Fatalf("entry (%d, %d, %d): bin index %d, expected %d",
							subset, seg, index, binIndex, expectedIndex)
					}
				}
			}
		}
	}
}

// Disabled entries stay disabled across slice switches.
func TestLORCacheDisable(t *testing.T) {
	proj := projFixture(t, 3)

	cache, err := NewLORCache(proj, 2)
	if err != nil {
		t.Fatalf("NewLORCache: %v", err)
	}

	cache.SetSubsetSegment(1, 0)
	cache.DisableLOR(5)

	if valid, _, _, _, _, _ := cache.GetLOR(5); valid {
		t.Fatal("expected entry 5 to be disabled")
	}

	// Another slice is untouched
	cache.SetSubsetSegment(0, 0)
	if valid, _, _, _, _, _ := cache.GetLOR(5); !valid {
		t.Fatal("expected entry 5 of subset 0 to remain valid")
	}

	// The disabled entry persists
	cache.SetSubsetSegment(1, 0)
	if valid, _, _, _, _, _ := cache.GetLOR(5); valid {
		t.Fatal("expected entry 5 to remain disabled")
	}
}

func TestLORCacheSubsetValidation(t *testing.T) {
	proj := projFixture(t, 1)

	// 16 views are not divisible by 3
	if _, err := NewLORCache(proj, 3); !errors.Is(err, ErrNSubsets) {
		t.Fatalf("expected ErrNSubsets, got %v", err)
	}
}

func TestLORCachePackingBound(t *testing.T) {
	header := checkedProjHeader(t, 1024, 64, 1, 1, 0)

	proj, err := NewProjData(header, Allocate, 0)
	if err != nil {
		t.Fatalf("NewProjData: %v", err)
	}

	if _, err := NewLORCache(proj, 1); !errors.Is(err, ErrCrystalPacking) {
		t.Fatalf("expected ErrCrystalPacking, got %v", err)
	}
}
