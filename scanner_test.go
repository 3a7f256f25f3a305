package fir

import (
	"math"
	"testing"
)

// testScannerHeader describes a small cylindrical scanner: 16 crystals per
// ring in four rSectors of two modules, two rings, inner radius 50 mm.
func testScannerHeader() ScannerHeader {
	var header ScannerHeader
	header.SetDefaults()

	header.CrystalDimsXYZ = []float64{2, 2, 2}
	header.CrystalRepeatNumbersYZ = []int{2, 2}
	header.InterCrystalDistanceYZ = []float64{0.5, 0.5}

	header.ModuleRepeatNumbersYZ = []int{2, 1}
	header.InterModuleDistanceYZ = []float64{1, 0}

	header.RSectorRepeatNumber = 4
	header.RSectorInnerRadius = 50

	return header
}

func testScanner(t *testing.T) *ScannerData {
	t.Helper()

	scanner, err := NewScannerData(testScannerHeader())
	if err != nil {
		t.Fatalf("NewScannerData: %v", err)
	}

	return scanner
}

func TestScannerGeometryNumbers(t *testing.T) {
	scanner := testScanner(t)
	geometry := scanner.Geometry()

	if geometry.NCrystalsPerRing != 16 {
		t.Fatalf("NCrystalsPerRing: expected 16, got %d", geometry.NCrystalsPerRing)
	}
	if geometry.NRings != 2 {
		t.Fatalf("NRings: expected 2, got %d", geometry.NRings)
	}
	if geometry.NCrystals != 32 {
		t.Fatalf("NCrystals: expected 32, got %d", geometry.NCrystals)
	}
	if geometry.NSlices != 3 {
		t.Fatalf("NSlices: expected 3, got %d", geometry.NSlices)
	}
	if geometry.CrystalOffset != 2 {
		t.Fatalf("CrystalOffset: expected 2, got %d", geometry.CrystalOffset)
	}

	// Tight-fit defaults: module 2x4.5x4.5, rSector 2x10x4.5
	if geometry.RSectorTranslationX != 51 {
		t.Fatalf("RSectorTranslationX: expected 51, got %v", geometry.RSectorTranslationX)
	}
}

func TestScannerCrystalPositions(t *testing.T) {
	scanner := testScanner(t)
	geometry := scanner.Geometry()
	crystalXY := scanner.CrystalXYPositions()

	if len(crystalXY) != geometry.NCrystalsPerRing {
		t.Fatalf("expected %d crystal positions, got %d",
			geometry.NCrystalsPerRing, len(crystalXY))
	}

	// The first crystal of the first rSector sits at the rSector center
	// radius, on the negative Y end of the sector
	firstCrystalIndex := geometry.NCrystalsPerRing - geometry.CrystalOffset
	first := crystalXY[firstCrystalIndex]
	if math.Abs(first.X-51) > 1e-9 || math.Abs(first.Y-(-4)) > 1e-9 {
		t.Fatalf("first crystal of first rSector: expected (51, -4), got (%v, %v)", first.X, first.Y)
	}

	// Crystal 0 sits next to the +X axis
	if math.Abs(crystalXY[0].X-51) > 1e-9 {
		t.Fatalf("crystal 0: expected X = 51, got %v", crystalXY[0].X)
	}
	if math.Abs(crystalXY[0].Y) > 2.5 {
		t.Fatalf("crystal 0 should be close to the +X axis, got Y = %v", crystalXY[0].Y)
	}

	// Rotating any crystal by the rSector interval gives the crystal four
	// indices further along the ring
	angle := 2 * math.Pi / 4
	for i := 0; i < geometry.NCrystalsPerRing; i++ {
		j := (i + 4) % geometry.NCrystalsPerRing

		xRot, yRot := rotateXY(crystalXY[i].X, crystalXY[i].Y, angle)

		if math.Abs(xRot-crystalXY[j].X) > 1e-9 || math.Abs(yRot-crystalXY[j].Y) > 1e-9 {
			t.Fatalf("crystal %d rotated is (%v, %v), crystal %d is (%v, %v)",
				i, xRot, yRot, j, crystalXY[j].X, crystalXY[j].Y)
		}
	}

	// All crystals share the ring radius up to the flat sector faces
	for i, pos := range crystalXY {
		radius := math.Hypot(pos.X, pos.Y)
		if radius < 51 || radius > math.Hypot(51, 4) {
			t.Fatalf("crystal %d radius %v out of sector bounds", i, radius)
		}
	}
}

func TestScannerSlicePositions(t *testing.T) {
	scanner := testScanner(t)
	sliceZ := scanner.SliceZPositions()

	expected := []float64{-1.25, 0, 1.25}
	if len(sliceZ) != len(expected) {
		t.Fatalf("expected %d slices, got %d", len(expected), len(sliceZ))
	}

	for i := range expected {
		if math.Abs(sliceZ[i]-expected[i]) > 1e-9 {
			t.Fatalf("slice %d: expected %v, got %v", i, expected[i], sliceZ[i])
		}
	}

	// Odd slices sit midway between their neighbours
	for i := 1; i < len(sliceZ); i += 2 {
		mid := (sliceZ[i-1] + sliceZ[i+1]) / 2
		if math.Abs(sliceZ[i]-mid) > 1e-9 {
			t.Fatalf("slice %d is not centered between its neighbours", i)
		}
	}
}

func TestScannerHeaderValidation(t *testing.T) {
	missing := testScannerHeader()
	missing.RSectorRepeatNumber = 0
	if _, err := NewScannerData(missing); err == nil {
		t.Fatal("expected an error for a missing rSector repeat number")
	}

	noRadius := testScannerHeader()
	noRadius.RSectorInnerRadius = 0
	if _, err := NewScannerData(noRadius); err == nil {
		t.Fatal("expected an error for a missing inner radius")
	}

	zeroDim := testScannerHeader()
	zeroDim.CrystalDimsXYZ = []float64{2, 0, 2}
	if _, err := NewScannerData(zeroDim); err == nil {
		t.Fatal("expected an error for a repeated crystal with zero Y dimension")
	}

	smallModule := testScannerHeader()
	smallModule.ModuleDimsXYZ = []float64{2, 1, 0}
	if _, err := NewScannerData(smallModule); err == nil {
		t.Fatal("expected an error for a module smaller than its crystals")
	}
}

func TestScannerCrystalCoordinates(t *testing.T) {
	scanner := testScanner(t)

	// The second rSector starts right after the crystal offset
	ring, crystal := scanner.CrystalCoordinates(1, 0, 0)
	if ring != 0 || crystal != 2 {
		t.Fatalf("expected (0, 2), got (%d, %d)", ring, crystal)
	}

	// Second module in Y advances the in-ring index
	ring, crystal = scanner.CrystalCoordinates(0, 1, 1)
	if ring != 0 || crystal != 1 {
		t.Fatalf("expected (0, 1), got (%d, %d)", ring, crystal)
	}

	// Second crystal row in Z advances the ring
	ring, crystal = scanner.CrystalCoordinates(1, 0, 2)
	if ring != 1 || crystal != 2 {
		t.Fatalf("expected (1, 2), got (%d, %d)", ring, crystal)
	}

	// The last module of the last rSector stays within the ring
	ring, crystal = scanner.CrystalCoordinates(3, 1, 1)
	if ring != 0 || crystal != 13 {
		t.Fatalf("expected (0, 13), got (%d, %d)", ring, crystal)
	}
}
