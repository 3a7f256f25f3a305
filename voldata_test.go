package fir

import (
	"errors"
	"math"
	"testing"
)

func smallVol(t *testing.T, nFrames int, init VoxelValue) *VolData {
	t.Helper()

	header := VolHeader{
		VolSize:     VolSize{NPixelsX: 4, NPixelsY: 3, NSlices: 2},
		VoxelExtent: VoxelExtent{PixelWidth: 1, PixelHeight: 1, SliceThickness: 1},
		NFrames:     nFrames,
	}

	vol, err := NewVolData(header, Initialize, init)
	if err != nil {
		t.Fatalf("NewVolData: %v", err)
	}

	return vol
}

func TestVolDataFrames(t *testing.T) {
	vol := smallVol(t, 3, 0)

	if vol.Geometry().NVoxelsPerFrame != 24 {
		t.Fatalf("NVoxelsPerFrame: expected 24, got %d", vol.Geometry().NVoxelsPerFrame)
	}
	if vol.Geometry().NVoxelsTotal != 72 {
		t.Fatalf("NVoxelsTotal: expected 72, got %d", vol.Geometry().NVoxelsTotal)
	}

	// Single-frame fills only touch the active frame
	if err := vol.SetActiveFrame(1); err != nil {
		t.Fatalf("SetActiveFrame: %v", err)
	}
	vol.SetAllVoxels(7)

	if vol.Frame(0)[0] != 0 || vol.Frame(2)[0] != 0 {
		t.Fatal("inactive frames were modified")
	}
	if vol.Frame(1)[5] != 7 {
		t.Fatal("active frame was not filled")
	}

	if err := vol.SetActiveFrame(3); !errors.Is(err, ErrActiveFrame) {
		t.Fatalf("expected ErrActiveFrame, got %v", err)
	}

	if err := vol.CheckNFrames(2); !errors.Is(err, ErrNFrames) {
		t.Fatalf("expected ErrNFrames, got %v", err)
	}
}

func TestVolDataVoxelIndexing(t *testing.T) {
	vol := smallVol(t, 1, 0)

	vol.SetVoxel(1, 2, 1, 5)

	// i + j*nx + k*nx*ny
	if vol.Data()[1+2*4+1*12] != 5 {
		t.Fatal("voxel linear index mismatch")
	}
	if vol.Voxel(1, 2, 1) != 5 {
		t.Fatal("voxel accessor mismatch")
	}
}

func TestVolDataMulDivGuards(t *testing.T) {
	a := smallVol(t, 1, 4)
	b := smallVol(t, 1, 2)

	if err := a.Div(b); err != nil {
		t.Fatalf("Div: %v", err)
	}
	if a.Voxel(0, 0, 0) != 2 {
		t.Fatalf("expected 2, got %v", a.Voxel(0, 0, 0))
	}

	if err := a.Mul(b); err != nil {
		t.Fatalf("Mul: %v", err)
	}
	if a.Voxel(0, 0, 0) != 4 {
		t.Fatalf("expected 4, got %v", a.Voxel(0, 0, 0))
	}

	// Near-zero operands zero the result instead of amplifying noise
	b.SetVoxel(1, 1, 1, 0)
	if err := a.Div(b); err != nil {
		t.Fatalf("Div: %v", err)
	}
	if a.Voxel(1, 1, 1) != 0 {
		t.Fatalf("expected epsilon guard to zero the voxel, got %v", a.Voxel(1, 1, 1))
	}

	mismatched := smallVol(t, 1, 1)
	mismatched.header.VoxelExtent.PixelWidth = 2
	if err := a.Mul(mismatched); !errors.Is(err, ErrVolMismatch) {
		t.Fatalf("expected ErrVolMismatch, got %v", err)
	}
}

func TestVolDataLineIntegrals(t *testing.T) {
	vol := smallVol(t, 1, 0)
	vol.SetVoxel(0, 0, 0, 2)
	vol.SetVoxel(1, 0, 0, 3)

	path := []PathElement{
		{Coord: 0, Length: 1.5},
		{Coord: 1, Length: 0.5},
		{Coord: PathEnd},
	}

	line := vol.ComputeLineIntegral(path)
	if math.Abs(float64(line)-4.5) > 1e-6 {
		t.Fatalf("expected 4.5, got %v", line)
	}

	target := smallVol(t, 1, 0)
	target.ProjectLineIntegral(path, 2)
	if target.Voxel(0, 0, 0) != 3 || target.Voxel(1, 0, 0) != 1 {
		t.Fatalf("projection wrote (%v, %v)", target.Voxel(0, 0, 0), target.Voxel(1, 0, 0))
	}
}

func TestAllocateAsMultiVol(t *testing.T) {
	template := smallVol(t, 1, 1)

	multi, err := AllocateAsMultiVol(template, 4)
	if err != nil {
		t.Fatalf("AllocateAsMultiVol: %v", err)
	}

	if multi.Header().NFrames != 4 {
		t.Fatalf("expected 4 frames, got %d", multi.Header().NFrames)
	}
	if multi.Geometry().NVoxelsTotal != 4*template.Geometry().NVoxelsPerFrame {
		t.Fatal("total voxel count does not cover all frames")
	}

	if _, err := AllocateAsMultiVol(template, 0); !errors.Is(err, ErrNFrames) {
		t.Fatalf("expected ErrNFrames, got %v", err)
	}
}

func TestVolDataAssign(t *testing.T) {
	src := smallVol(t, 2, 3)
	dst := smallVol(t, 2, 0)

	if err := dst.Assign(src); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if dst.Frame(1)[10] != 3 {
		t.Fatal("assign did not copy all frames")
	}

	shorter := smallVol(t, 1, 0)
	if err := shorter.Assign(src); !errors.Is(err, ErrVolMismatch) {
		t.Fatalf("expected ErrVolMismatch, got %v", err)
	}
}
