package fir

import (
	"testing"
)

func TestProjHeaderCheckDefaults(t *testing.T) {
	var header ProjHeader
	header.SetDefaults()

	// No scanner geometry provided
	if err := header.Check(); err == nil {
		t.Fatal("expected an error for an empty header")
	}
}

func TestProjHeaderNRingsValidation(t *testing.T) {
	cases := []struct {
		name   string
		nRings int
		valid  bool
	}{
		{"missing", 0, false},
		{"negative", -1, false},
		{"one ring", 1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var header ProjHeader
			header.SetDefaults()
			header.NCrystalsPerRing = 4
			header.NRings = tc.nRings

			err := header.Check()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestProjHeaderNCrystalsPerRingValidation(t *testing.T) {
	cases := []struct {
		name      string
		nCrystals int
		valid     bool
	}{
		{"missing", 0, false},
		{"negative", -1, false},
		{"not a multiple of four", 3, false},
		{"valid", 4, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var header ProjHeader
			header.SetDefaults()
			header.NRings = 1
			header.NCrystalsPerRing = tc.nCrystals

			err := header.Check()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestProjHeaderSegmentSpanValidation(t *testing.T) {
	// With two rings the maximum span is 3
	cases := []struct {
		name  string
		span  int
		valid bool
	}{
		{"zero", 0, false},
		{"negative", -1, false},
		{"even", 2, false},
		{"too large", 5, false},
		{"valid", 3, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var header ProjHeader
			header.SetDefaults()
			header.NRings = 2
			header.NCrystalsPerRing = 4
			header.SegmentSpan = tc.span

			err := header.Check()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestProjHeaderNSegmentsValidation(t *testing.T) {
	// With two rings and the default span of 1 the maximum is 3
	cases := []struct {
		name      string
		nSegments int
		valid     bool
	}{
		{"zero", 0, false},
		{"negative", -1, false},
		{"even", 2, false},
		{"too large", 5, false},
		{"valid", 3, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var header ProjHeader
			header.SetDefaults()
			header.NRings = 2
			header.NCrystalsPerRing = 4
			header.NSegments = tc.nSegments

			err := header.Check()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestProjHeaderNTangCoordsValidation(t *testing.T) {
	// With four crystals per ring the maximum is 3; zero selects it
	cases := []struct {
		name     string
		nTang    int
		valid    bool
		expected int
	}{
		{"negative", -1, false, 0},
		{"too large", 4, false, 0},
		{"valid", 3, true, 3},
		{"default", 0, true, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var header ProjHeader
			header.SetDefaults()
			header.NRings = 2
			header.NCrystalsPerRing = 4
			header.NTangCoords = tc.nTang

			err := header.Check()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected an error")
			}
			if tc.valid && header.NTangCoords != tc.expected {
				t.Fatalf("expected %d tangential coordinates, got %d",
					tc.expected, header.NTangCoords)
			}
		})
	}
}

func checkedProjHeader(t *testing.T, nRings, nCrystals, span, nSegments, nTang int) ProjHeader {
	t.Helper()

	var header ProjHeader
	header.SetDefaults()
	header.NRings = nRings
	header.NCrystalsPerRing = nCrystals
	header.SegmentSpan = span
	header.NSegments = nSegments
	header.NTangCoords = nTang

	if err := header.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}

	return header
}

func TestProjGeometryFillSpanOne(t *testing.T) {
	header := checkedProjHeader(t, 5, 32, 1, 3, 8)

	var geometry ProjGeometry
	geometry.Fill(&header)

	if geometry.NBins != 1664 {
		t.Fatalf("NBins: expected 1664, got %d", geometry.NBins)
	}
	if geometry.SegOffset != 1 {
		t.Fatalf("SegOffset: expected 1, got %d", geometry.SegOffset)
	}
	if geometry.TangCoordOffset != 4 {
		t.Fatalf("TangCoordOffset: expected 4, got %d", geometry.TangCoordOffset)
	}
	expectInts(t, geometry.NAxialCoords, []int{4, 5, 4})
	if geometry.NViews != 16 {
		t.Fatalf("NViews: expected 16, got %d", geometry.NViews)
	}
	if geometry.HalfSegmentSpan != 0 {
		t.Fatalf("HalfSegmentSpan: expected 0, got %d", geometry.HalfSegmentSpan)
	}
	if geometry.MaxRingDiff != 1 {
		t.Fatalf("MaxRingDiff: expected 1, got %d", geometry.MaxRingDiff)
	}
}

func TestProjGeometryFillSpanThree(t *testing.T) {
	header := checkedProjHeader(t, 5, 32, 3, 3, 8)

	var geometry ProjGeometry
	geometry.Fill(&header)

	if geometry.NBins != 2432 {
		t.Fatalf("NBins: expected 2432, got %d", geometry.NBins)
	}
	if geometry.SegOffset != 1 {
		t.Fatalf("SegOffset: expected 1, got %d", geometry.SegOffset)
	}
	if geometry.TangCoordOffset != 4 {
		t.Fatalf("TangCoordOffset: expected 4, got %d", geometry.TangCoordOffset)
	}
	expectInts(t, geometry.NAxialCoords, []int{5, 9, 5})
	if geometry.NViews != 16 {
		t.Fatalf("NViews: expected 16, got %d", geometry.NViews)
	}
	if geometry.HalfSegmentSpan != 1 {
		t.Fatalf("HalfSegmentSpan: expected 1, got %d", geometry.HalfSegmentSpan)
	}
	if geometry.MaxRingDiff != 4 {
		t.Fatalf("MaxRingDiff: expected 4, got %d", geometry.MaxRingDiff)
	}
}

// The per-segment sizes must add up to the total bin count.
func TestProjGeometrySegmentTotals(t *testing.T) {
	for _, span := range []int{1, 3} {
		header := checkedProjHeader(t, 5, 32, span, 3, 8)

		var geometry ProjGeometry
		geometry.Fill(&header)

		total := 0
		for seg := -geometry.SegOffset; seg <= geometry.SegOffset; seg++ {
			total += geometry.NAxialCoordsFor(seg) * geometry.NViews * header.NTangCoords
		}

		if total != geometry.NBins {
			t.Fatalf("span %d: segment sizes add to %d, NBins is %d", span, total, geometry.NBins)
		}
	}
}

func expectInts(t *testing.T, got, expected []int) {
	t.Helper()

	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
}
