package fir

import (
	"math"
	"testing"
)

func maskTestVol(t *testing.T, n int, init VoxelValue) *VolData {
	t.Helper()

	header := VolHeader{
		VolSize:     VolSize{NPixelsX: n, NPixelsY: n, NSlices: 1},
		VoxelExtent: VoxelExtent{PixelWidth: 1, PixelHeight: 1, SliceThickness: 1},
		NFrames:     1,
	}

	vol, err := NewVolData(header, Initialize, init)
	if err != nil {
		t.Fatalf("NewVolData: %v", err)
	}

	return vol
}

func TestCutCircle(t *testing.T) {
	vol := maskTestVol(t, 5, 1)

	if err := CutCircle(vol, 1.5); err != nil {
		t.Fatalf("CutCircle: %v", err)
	}

	// Voxel centers sit at -2..2 mm from the volume center
	for j := 0; j < 5; j++ {
		for i := 0; i < 5; i++ {
			px := float64(i) - 2
			py := float64(j) - 2

			expected := VoxelValue(1)
			if math.Sqrt(px*px+py*py) > 1.5 {
				expected = 0
			}

			if got := vol.Voxel(i, j, 0); got != expected {
				t.Fatalf("voxel (%d,%d): expected %v, got %v", i, j, expected, got)
			}
		}
	}
}

func TestCutCircleDisabled(t *testing.T) {
	vol := maskTestVol(t, 5, 1)

	if err := CutCircle(vol, 0); err != nil {
		t.Fatalf("CutCircle: %v", err)
	}
	if err := CutCircle(vol, -3); err != nil {
		t.Fatalf("CutCircle: %v", err)
	}

	for i, value := range vol.Data() {
		if value != 1 {
			t.Fatalf("voxel %d modified by a disabled cut", i)
		}
	}
}

func TestApplyMask(t *testing.T) {
	vol := maskTestVol(t, 3, 2)
	mask := maskTestVol(t, 3, 1)
	mask.SetVoxel(1, 1, 0, 0)
	mask.SetVoxel(2, 0, 0, -1)

	if err := ApplyMask(vol, mask); err != nil {
		t.Fatalf("ApplyMask: %v", err)
	}

	if vol.Voxel(1, 1, 0) != 0 || vol.Voxel(2, 0, 0) != 0 {
		t.Fatal("masked voxels not zeroed")
	}
	if vol.Voxel(0, 0, 0) != 2 {
		t.Fatal("unmasked voxel modified")
	}

	wrong := maskTestVol(t, 5, 1)
	if err := ApplyMask(vol, wrong); err == nil {
		t.Fatal("expected a header mismatch error")
	}
}

func TestHounsfieldToMuMap(t *testing.T) {
	header := VolHeader{
		VolSize:     VolSize{NPixelsX: 6, NPixelsY: 1, NSlices: 1},
		VoxelExtent: VoxelExtent{PixelWidth: 1, PixelHeight: 1, SliceThickness: 1},
		NFrames:     1,
	}

	vol, err := NewVolData(header, Allocate, 0)
	if err != nil {
		t.Fatalf("NewVolData: %v", err)
	}

	hu := []VoxelValue{-2000, -1000, -500, 0, 500, 1000}
	copy(vol.Data(), hu)

	if err := HounsfieldToMuMap(vol); err != nil {
		t.Fatalf("HounsfieldToMuMap: %v", err)
	}

	expected := []float64{0, 0, 0.0048, 0.0096, 0.0171, 0.0246}
	for i := range expected {
		if math.Abs(float64(vol.Data()[i])-expected[i]) > 1e-6 {
			t.Fatalf("HU %v: expected %v, got %v", hu[i], expected[i], vol.Data()[i])
		}
	}

	// The mapping is nondecreasing over a fine sweep
	prev := VoxelValue(-1)
	for hu := -1200; hu <= 1200; hu += 10 {
		probe, err := NewVolData(header, Initialize, VoxelValue(hu))
		if err != nil {
			t.Fatalf("NewVolData: %v", err)
		}
		if err := HounsfieldToMuMap(probe); err != nil {
			t.Fatalf("HounsfieldToMuMap: %v", err)
		}

		mu := probe.Data()[0]
		if mu < prev {
			t.Fatalf("mapping decreases at HU %d", hu)
		}
		prev = mu
	}
}

func blurTestVol(t *testing.T) *VolData {
	t.Helper()

	header := VolHeader{
		VolSize:     VolSize{NPixelsX: 8, NPixelsY: 8, NSlices: 4},
		VoxelExtent: VoxelExtent{PixelWidth: 2, PixelHeight: 2, SliceThickness: 2},
		NFrames:     1,
	}

	vol, err := NewVolData(header, Initialize, 0)
	if err != nil {
		t.Fatalf("NewVolData: %v", err)
	}

	return vol
}

// The edge-corrected normalization keeps a constant volume constant,
// including at the boundaries where the kernel is truncated.
func TestConvolveConstantVolume(t *testing.T) {
	vol := blurTestVol(t)
	vol.SetAllVoxelsAllFrames(3)

	if err := Convolve(vol, []float64{4, 4, 4}, 0); err != nil {
		t.Fatalf("Convolve: %v", err)
	}

	for i, value := range vol.Data() {
		if math.Abs(float64(value)-3) > 1e-5 {
			t.Fatalf("voxel %d drifted to %v", i, value)
		}
	}
}

func TestConvolveSpreadsAndPreservesPeakPosition(t *testing.T) {
	vol := blurTestVol(t)
	vol.SetVoxel(4, 4, 2, 10)

	if err := Convolve(vol, []float64{4, 4, 4}, 0); err != nil {
		t.Fatalf("Convolve: %v", err)
	}

	peak := vol.Voxel(4, 4, 2)
	if peak <= 0 || peak >= 10 {
		t.Fatalf("expected the peak to flatten, got %v", peak)
	}

	if vol.Voxel(3, 4, 2) <= 0 || vol.Voxel(4, 5, 2) <= 0 || vol.Voxel(4, 4, 1) <= 0 {
		t.Fatal("expected the blur to spread to neighbours")
	}

	for i, value := range vol.Data() {
		if value > peak+1e-6 {
			t.Fatalf("voxel %d exceeds the center value after blurring", i)
		}
	}
}

func TestConvolveSkippedOnNonPositiveFwhm(t *testing.T) {
	vol := blurTestVol(t)
	vol.SetVoxel(4, 4, 2, 10)

	for _, fwhm := range [][]float64{
		{0, 4, 4},
		{4, -1, 4},
		{4, 4, 0},
	} {
		if err := Convolve(vol, fwhm, 0); err != nil {
			t.Fatalf("Convolve: %v", err)
		}

		if vol.Voxel(4, 4, 2) != 10 {
			t.Fatalf("volume modified for FWHM %v", fwhm)
		}
	}
}

// With a cut radius, voxels outside the shrunk radius are restored from
// the pre-blur values.
func TestConvolveRestoresFovEdge(t *testing.T) {
	vol := blurTestVol(t)
	vol.SetAllVoxelsAllFrames(1)
	vol.SetVoxel(0, 0, 0, 9)

	// restore radius = 8 - 5*1 = 3 mm around the center
	if err := Convolve(vol, []float64{1, 1, 1}, 8); err != nil {
		t.Fatalf("Convolve: %v", err)
	}

	if vol.Voxel(0, 0, 0) != 9 {
		t.Fatalf("edge voxel not restored, got %v", vol.Voxel(0, 0, 0))
	}
}
