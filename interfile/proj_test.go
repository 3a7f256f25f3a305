package interfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	fir "github.com/sixy6e/go-fir"
)

func testProjHeader(t *testing.T) fir.ProjHeader {
	t.Helper()

	var header fir.ProjHeader
	header.SetDefaults()
	header.NRings = 5
	header.NCrystalsPerRing = 32
	header.SegmentSpan = 3
	header.NSegments = 3
	header.NTangCoords = 8

	if err := header.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}

	return header
}

func TestProjWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	proj, err := fir.NewProjData(testProjHeader(t), fir.Allocate, 0)
	if err != nil {
		t.Fatalf("NewProjData: %v", err)
	}
	for i := range proj.Data() {
		proj.Data()[i] = fir.BinValue(i % 97)
	}

	out := filepath.Join(dir, "proj")
	if err := WriteProj(out, "", proj); err != nil {
		t.Fatalf("WriteProj: %v", err)
	}

	loaded, err := ReadProj(out+".hs", "", fir.CopyData, 0)
	if err != nil {
		t.Fatalf("ReadProj: %v", err)
	}

	if *loaded.Header() != *proj.Header() {
		t.Fatalf("header round trip mismatch: %+v vs %+v", loaded.Header(), proj.Header())
	}

	for i := range proj.Data() {
		if loaded.Data()[i] != proj.Data()[i] {
			t.Fatalf("bin %d: expected %v, got %v", i, proj.Data()[i], loaded.Data()[i])
		}
	}
}

func TestProjReadAllocateIgnoresData(t *testing.T) {
	dir := t.TempDir()

	header := strings.Join([]string{
		"PROJECTION DATA PARAMETERS :=",
		"number of rings := 5",
		"number of crystals per ring := 32",
		"segment span := 1",
		"number of segments := 3",
		"number of tangential coordinates := 8",
		"END OF PROJECTION DATA PARAMETERS :=",
	}, "\n")

	path := filepath.Join(dir, "proj.hs")
	if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	proj, err := ReadProj(path, "", fir.Initialize, 2)
	if err != nil {
		t.Fatalf("ReadProj: %v", err)
	}

	if proj.Geometry().NBins != 1664 {
		t.Fatalf("expected 1664 bins, got %d", proj.Geometry().NBins)
	}
	if proj.Data()[0] != 2 {
		t.Fatalf("expected the initialization value, got %v", proj.Data()[0])
	}
}

func TestReadOSEMParams(t *testing.T) {
	dir := t.TempDir()

	content := strings.Join([]string{
		"!OSEM PARAMETERS :=",
		"input projection file := scan.hs",
		"scanner file := scanner.hs",
		"output volume header := out.h33",
		"output volume file name := out",
		"number of iterations := 4",
		"number of subsets := 8",
		"save interval := 2",
		"cut radius in mm := 120.5",
		"convolution interval := 1",
		"convolution FHWM XYZ in mm := {3, 3, 4}",
		"sensitivity map volume := sens.h33",
		"!END OF OSEM PARAMETERS :=",
	}, "\n")

	path := filepath.Join(dir, "osem.params")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	params, err := ReadOSEMParams(path, "")
	if err != nil {
		t.Fatalf("ReadOSEMParams: %v", err)
	}

	if params.InputProjFile != "scan.hs" || params.ScannerFile != "scanner.hs" {
		t.Fatalf("main files: %+v", params)
	}
	if params.AlgoParams.NIterations != 4 || params.AlgoParams.NSubsets != 8 {
		t.Fatalf("iteration parameters: %+v", params.AlgoParams)
	}
	if params.AlgoParams.SaveInterval != 2 {
		t.Fatalf("save interval: %d", params.AlgoParams.SaveInterval)
	}
	if params.AlgoParams.CutRadius != 120.5 {
		t.Fatalf("cut radius: %v", params.AlgoParams.CutRadius)
	}
	if len(params.AlgoParams.FwhmXYZ) != 3 || params.AlgoParams.FwhmXYZ[2] != 4 {
		t.Fatalf("fwhm: %v", params.AlgoParams.FwhmXYZ)
	}
	if params.SensVolFile != "sens.h33" {
		t.Fatalf("sensitivity file: %q", params.SensVolFile)
	}

	// The convolution interval is read as given; the optional files whose
	// keys are absent keep their empty defaults
	if params.AlgoParams.ConvolutionInterval != 1 {
		t.Fatalf("convolution interval: %d", params.AlgoParams.ConvolutionInterval)
	}
	if params.BiasProjFile != "" || params.AttenVolHUFile != "" {
		t.Fatalf("optional files should be empty: %+v", params)
	}
}

func TestReadOSEMParamsMandatoryFiles(t *testing.T) {
	dir := t.TempDir()

	content := strings.Join([]string{
		"!OSEM PARAMETERS :=",
		"input projection file := scan.hs",
		"!END OF OSEM PARAMETERS :=",
	}, "\n")

	path := filepath.Join(dir, "osem.params")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := ReadOSEMParams(path, ""); err == nil {
		t.Fatal("expected an error for missing mandatory files")
	}
}

func TestReadScannerFile(t *testing.T) {
	dir := t.TempDir()

	content := strings.Join([]string{
		"!SCANNER PARAMETERS :=",
		"crystal dimensions XYZ in mm := {2, 2, 2}",
		"crystal repeat numbers YZ := {2, 2}",
		"inter-crystal distance YZ in mm := {0.5, 0.5}",
		"module repeat numbers YZ := {2, 1}",
		"inter-module distance YZ in mm := {1, 0}",
		"rSector repeat number := 4",
		"rSector inner radius in mm := 50",
		"!END OF SCANNER PARAMETERS :=",
	}, "\n")

	path := filepath.Join(dir, "scanner.hs")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	scanner, err := ReadScanner(path, "")
	if err != nil {
		t.Fatalf("ReadScanner: %v", err)
	}

	geometry := scanner.Geometry()
	if geometry.NCrystalsPerRing != 16 || geometry.NRings != 2 {
		t.Fatalf("unexpected geometry: %+v", geometry)
	}
	if geometry.RSectorTranslationX != 51 {
		t.Fatalf("rSector translation: %v", geometry.RSectorTranslationX)
	}
}
