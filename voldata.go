package fir

import (
	"errors"
	"fmt"
)

// VolData owns the voxel buffer of a reconstruction volume. All frames are
// contiguous in memory; frames[f] is a non-overlapping subslice of data.
// Single-frame operations act on the active frame only.
type VolData struct {
	header   VolHeader
	geometry VolGeometry

	activeFrame int

	data   []VoxelValue
	frames [][]VoxelValue
}

// NewVolData validates the header and builds a volume with the requested
// construction mode.
func NewVolData(header VolHeader, mode ConstructionMode, initValue VoxelValue) (*VolData, error) {
	if err := header.Check(); err != nil {
		return nil, err
	}

	v := &VolData{header: header}
	v.geometry.Fill(&v.header)
	v.allocate()

	if mode == Initialize || mode == CopyDataIfAllocated {
		v.SetAllVoxelsAllFrames(initValue)
	}

	return v, nil
}

// NewVolDataWithVoxels validates the header and attaches a loaded voxel
// buffer, which must hold exactly NVoxelsTotal values, frames contiguous.
func NewVolDataWithVoxels(header VolHeader, voxels []VoxelValue) (*VolData, error) {
	if err := header.Check(); err != nil {
		return nil, err
	}

	v := &VolData{header: header}
	v.geometry.Fill(&v.header)

	if len(voxels) != v.geometry.NVoxelsTotal {
		return nil, errors.Join(
			ErrVolHeader,
			fmt.Errorf(
				"voxel buffer holds %d values but the header describes %d voxels",
				len(voxels), v.geometry.NVoxelsTotal))
	}

	v.data = voxels
	v.sliceFrames()

	return v, nil
}

// NewVolDataFrom builds an empty or copied volume with the same dimensions
// as an existing one.
func NewVolDataFrom(vol *VolData, mode ConstructionMode, initValue VoxelValue) *VolData {
	v := &VolData{header: vol.header, geometry: vol.geometry}
	v.allocate()

	switch mode {
	case Initialize:
		v.SetAllVoxelsAllFrames(initValue)
	case CopyData, CopyDataIfAllocated:
		if vol.Allocated() {
			copy(v.data, vol.data)
		} else {
			v.SetAllVoxelsAllFrames(initValue)
		}
	}

	return v
}

// AllocateAsMultiVol builds a multi-frame volume sharing the grid of a
// template volume. Used for per-subset sensitivity and back-projection
// targets.
func AllocateAsMultiVol(template *VolData, nFrames int) (*VolData, error) {
	if nFrames <= 0 {
		return nil, errors.Join(ErrNFrames, errors.New("number of frames must be greater than zero"))
	}

	v := &VolData{header: template.header, geometry: template.geometry}
	v.header.NFrames = nFrames
	v.geometry.NVoxelsTotal = v.geometry.NVoxelsPerFrame * nFrames
	v.allocate()

	return v, nil
}

// allocateSingleFrameFrom builds a one-frame scratch volume on the grid of
// a possibly multi-frame template.
func allocateSingleFrameFrom(template *VolData) *VolData {
	v := &VolData{header: template.header, geometry: template.geometry}
	v.header.NFrames = 1
	v.geometry.NVoxelsTotal = v.geometry.NVoxelsPerFrame
	v.allocate()

	return v
}

func (v *VolData) allocate() {
	v.data = make([]VoxelValue, v.geometry.NVoxelsTotal)
	v.sliceFrames()
	v.activeFrame = 0
}

func (v *VolData) sliceFrames() {
	v.frames = make([][]VoxelValue, v.header.NFrames)
	for frame := 0; frame < v.header.NFrames; frame++ {
		lo := frame * v.geometry.NVoxelsPerFrame
		hi := lo + v.geometry.NVoxelsPerFrame
		v.frames[frame] = v.data[lo:hi:hi]
	}
}

// Allocated reports whether the volume owns voxel data.
func (v *VolData) Allocated() bool {
	return v.data != nil
}

// Header returns the validated volume header.
func (v *VolData) Header() *VolHeader {
	return &v.header
}

// Geometry returns the derived volume geometry.
func (v *VolData) Geometry() *VolGeometry {
	return &v.geometry
}

// Data returns the complete voxel buffer, frames contiguous.
func (v *VolData) Data() []VoxelValue {
	return v.data
}

// Frame returns the voxel buffer of one frame.
func (v *VolData) Frame(frame int) []VoxelValue {
	return v.frames[frame]
}

// ActiveData returns the voxel buffer of the active frame.
func (v *VolData) ActiveData() []VoxelValue {
	return v.frames[v.activeFrame]
}

// SetActiveFrame makes frame the target of single-frame operations.
func (v *VolData) SetActiveFrame(frame int) error {
	if frame < 0 || frame >= v.header.NFrames {
		return errors.Join(ErrActiveFrame, fmt.Errorf("frame %d of %d", frame, v.header.NFrames))
	}

	v.activeFrame = frame

	return nil
}

// ActiveFrame returns the index of the active frame.
func (v *VolData) ActiveFrame() int {
	return v.activeFrame
}

// CheckNFrames verifies the number of allocated frames.
func (v *VolData) CheckNFrames(nFrames int) error {
	if v.header.NFrames != nFrames {
		return errors.Join(ErrNFrames, fmt.Errorf("expected %d frames, have %d", nFrames, v.header.NFrames))
	}

	return nil
}

// Voxel returns the value at (i, j, k) on the active frame.
func (v *VolData) Voxel(i, j, k int) VoxelValue {
	return v.frames[v.activeFrame][i+j*v.header.VolSize.NPixelsX+k*v.header.VolSize.NPixelsX*v.header.VolSize.NPixelsY]
}

// SetVoxel sets the value at (i, j, k) on the active frame.
func (v *VolData) SetVoxel(i, j, k int, value VoxelValue) {
	v.frames[v.activeFrame][i+j*v.header.VolSize.NPixelsX+k*v.header.VolSize.NPixelsX*v.header.VolSize.NPixelsY] = value
}

// Assign copies all frames of another volume of identical dimensions.
func (v *VolData) Assign(vol *VolData) error {
	if !v.Allocated() {
		return ErrVolNotAllocated
	}
	if !v.header.SameGrid(vol.header) || v.header.NFrames != vol.header.NFrames {
		return ErrVolMismatch
	}

	runChunks(v.geometry.NVoxelsTotal, func(_, lo, hi int) {
		copy(v.data[lo:hi], vol.data[lo:hi])
	})

	return nil
}

// AssignFrame copies one frame of another volume into the active frame.
func (v *VolData) AssignFrame(vol *VolData, frame int) error {
	if !v.Allocated() {
		return ErrVolNotAllocated
	}
	if !v.header.SameGrid(vol.header) {
		return ErrVolMismatch
	}

	dst := v.frames[v.activeFrame]
	src := vol.frames[frame]
	runChunks(v.geometry.NVoxelsPerFrame, func(_, lo, hi int) {
		copy(dst[lo:hi], src[lo:hi])
	})

	return nil
}

// SetAllVoxels fills the active frame with the same value.
func (v *VolData) SetAllVoxels(value VoxelValue) {
	frame := v.frames[v.activeFrame]
	runChunks(len(frame), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			frame[i] = value
		}
	})
}

// SetAllVoxelsAllFrames fills every frame with the same value.
func (v *VolData) SetAllVoxelsAllFrames(value VoxelValue) {
	runChunks(len(v.data), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			v.data[i] = value
		}
	})
}

// Mul multiplies the active frame voxel-by-voxel with the active frame of
// another volume on the same grid. If either operand is <= EpsValue the
// result is zero.
func (v *VolData) Mul(input *VolData) error {
	if !v.Allocated() || !input.Allocated() {
		return ErrVolNotAllocated
	}
	if !v.header.SameGrid(input.header) {
		return ErrVolMismatch
	}

	dst := v.frames[v.activeFrame]
	src := input.frames[input.activeFrame]
	runChunks(len(dst), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			if dst[i] > EpsValue && src[i] > EpsValue {
				dst[i] *= src[i]
			} else {
				dst[i] = 0
			}
		}
	})

	return nil
}

// Div divides the active frame voxel-by-voxel by the active frame of
// another volume on the same grid. If either operand is <= EpsValue the
// result is zero, which suppresses division by near-empty sensitivity
// voxels.
func (v *VolData) Div(input *VolData) error {
	if !v.Allocated() || !input.Allocated() {
		return ErrVolNotAllocated
	}
	if !v.header.SameGrid(input.header) {
		return ErrVolMismatch
	}

	dst := v.frames[v.activeFrame]
	src := input.frames[input.activeFrame]
	runChunks(len(dst), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			if dst[i] > EpsValue && src[i] > EpsValue {
				dst[i] /= src[i]
			} else {
				dst[i] = 0
			}
		}
	})

	return nil
}

// ComputeLineIntegral sums length-weighted voxel values of the active frame
// along a path.
func (v *VolData) ComputeLineIntegral(path []PathElement) VoxelValue {
	frame := v.frames[v.activeFrame]

	var line VoxelValue
	for i := 0; path[i].Coord != PathEnd; i++ {
		line += path[i].Length * frame[path[i].Coord]
	}

	return line
}

// ProjectLineIntegral accumulates length*line into the voxels of the active
// frame along a path. Updates are atomic: many workers project into the
// same volume at once.
func (v *VolData) ProjectLineIntegral(path []PathElement, line VoxelValue) {
	frame := v.frames[v.activeFrame]

	for i := 0; path[i].Coord != PathEnd; i++ {
		atomicAddFloat32(&frame[path[i].Coord], path[i].Length*line)
	}
}
