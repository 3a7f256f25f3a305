package fir

import (
	"math"

	"github.com/samber/lo"
)

// fwhmToSigma converts a full width at half maximum to the standard
// deviation of the corresponding Gaussian.
const fwhmToSigma = 1 / 2.3548

func gaussianKernel(fwhm, voxelExtent float64) []float64 {
	sigma := fwhm * fwhmToSigma
	halfKernelSize := (int(6.0*sigma/voxelExtent) + 1) / 2

	kernel := make([]float64, 2*halfKernelSize+1)
	for ki := -halfKernelSize; ki <= halfKernelSize; ki++ {
		d := float64(ki) * voxelExtent
		kernel[halfKernelSize+ki] = math.Exp(-(d * d) / (2 * sigma * sigma))
	}

	return kernel
}

// Convolve applies a separable 3-D Gaussian blur with per-axis FWHM in mm
// to every frame of vol. The kernel is unnormalized; each output voxel is
// divided by the sum of the kernel values that fell inside the volume, so
// truncated kernels at the edges stay normalized. If cutRadius is positive,
// voxels whose transaxial distance from the volume center exceeds
// cutRadius - 5*max(fwhmX, fwhmY) are restored from the pre-blur copy to
// suppress artifacts at the cylindrical FOV boundary. The operation is
// skipped entirely if any FWHM is not positive.
func Convolve(vol *VolData, fwhmXYZ []float64, cutRadius float64) error {
	if len(fwhmXYZ) != 3 || fwhmXYZ[0] <= 0 || fwhmXYZ[1] <= 0 || fwhmXYZ[2] <= 0 {
		return nil
	}
	if !vol.Allocated() {
		return ErrVolNotAllocated
	}

	header := vol.Header()
	volSize := header.VolSize
	voxelExtent := header.VoxelExtent

	copyVol := allocateSingleFrameFrom(vol)
	image1 := allocateSingleFrameFrom(vol)
	image2 := allocateSingleFrameFrom(vol)

	kernelX := gaussianKernel(fwhmXYZ[0], voxelExtent.PixelWidth)
	kernelY := gaussianKernel(fwhmXYZ[1], voxelExtent.PixelHeight)
	kernelZ := gaussianKernel(fwhmXYZ[2], voxelExtent.SliceThickness)

	halfKernelSizeX := len(kernelX) / 2
	halfKernelSizeY := len(kernelY) / 2
	halfKernelSizeZ := len(kernelZ) / 2

	savedFrame := vol.ActiveFrame()

	for frame := 0; frame < header.NFrames; frame++ {
		if err := vol.SetActiveFrame(frame); err != nil {
			return err
		}
		if err := copyVol.AssignFrame(vol, frame); err != nil {
			return err
		}

		// Sweep in X
		runChunks(volSize.NSlices, func(_, lo, hi int) {
			for k := lo; k < hi; k++ {
				for j := 0; j < volSize.NPixelsY; j++ {
					for i := 0; i < volSize.NPixelsX; i++ {
						var sum, norm float64

						for ki := -halfKernelSizeX; ki <= halfKernelSizeX; ki++ {
							if i+ki >= 0 && i+ki < volSize.NPixelsX {
								kv := kernelX[halfKernelSizeX+ki]
								sum += kv * float64(vol.Voxel(i+ki, j, k))
								norm += kv
							}
						}

						if norm > 0 {
							image1.SetVoxel(i, j, k, VoxelValue(sum/norm))
						}
					}
				}
			}
		})

		// Sweep in Y
		runChunks(volSize.NSlices, func(_, lo, hi int) {
			for k := lo; k < hi; k++ {
				for j := 0; j < volSize.NPixelsY; j++ {
					for i := 0; i < volSize.NPixelsX; i++ {
						var sum, norm float64

						for ki := -halfKernelSizeY; ki <= halfKernelSizeY; ki++ {
							if j+ki >= 0 && j+ki < volSize.NPixelsY {
								kv := kernelY[halfKernelSizeY+ki]
								sum += kv * float64(image1.Voxel(i, j+ki, k))
								norm += kv
							}
						}

						if norm > 0 {
							image2.SetVoxel(i, j, k, VoxelValue(sum/norm))
						}
					}
				}
			}
		})

		// Sweep in Z
		runChunks(volSize.NSlices, func(_, lo, hi int) {
			for k := lo; k < hi; k++ {
				for j := 0; j < volSize.NPixelsY; j++ {
					for i := 0; i < volSize.NPixelsX; i++ {
						var sum, norm float64

						for ki := -halfKernelSizeZ; ki <= halfKernelSizeZ; ki++ {
							if k+ki >= 0 && k+ki < volSize.NSlices {
								kv := kernelZ[halfKernelSizeZ+ki]
								sum += kv * float64(image2.Voxel(i, j, k+ki))
								norm += kv
							}
						}

						if norm > 0 {
							vol.SetVoxel(i, j, k, VoxelValue(sum/norm))
						}
					}
				}
			}
		})

		// Restore voxels outside the cylindrical FOV from the original
		// values to suppress edge artifacts
		if cutRadius > 0 {
			fwhm := lo.Max([]float64{fwhmXYZ[0], fwhmXYZ[1]})
			volExtent := vol.Geometry().VolExtent
			restoreRadius := cutRadius - 5.0*fwhm

			runChunks(volSize.NSlices, func(_, lo, hi int) {
				for k := lo; k < hi; k++ {
					for j := 0; j < volSize.NPixelsY; j++ {
						py := float64(j)*voxelExtent.PixelHeight +
							voxelExtent.PixelHeight/2.0 -
							volExtent.SliceHeight/2.0

						for i := 0; i < volSize.NPixelsX; i++ {
							px := float64(i)*voxelExtent.PixelWidth +
								voxelExtent.PixelWidth/2.0 -
								volExtent.SliceWidth/2.0

							if math.Sqrt(px*px+py*py) >= restoreRadius {
								vol.SetVoxel(i, j, k, copyVol.Voxel(i, j, k))
							}
						}
					}
				}
			})
		}
	}

	return vol.SetActiveFrame(savedFrame)
}

// CutCircle zeros the voxels of the active frame whose transaxial distance
// from the volume center exceeds cutRadius. A non-positive radius is a
// no-op.
func CutCircle(vol *VolData, cutRadius float64) error {
	if cutRadius <= 0 {
		return nil
	}
	if !vol.Allocated() {
		return ErrVolNotAllocated
	}

	header := vol.Header()
	volSize := header.VolSize
	voxelExtent := header.VoxelExtent
	volExtent := vol.Geometry().VolExtent

	runChunks(volSize.NSlices, func(_, lo, hi int) {
		for k := lo; k < hi; k++ {
			for j := 0; j < volSize.NPixelsY; j++ {
				py := float64(j)*voxelExtent.PixelHeight +
					voxelExtent.PixelHeight/2.0 -
					volExtent.SliceHeight/2.0

				for i := 0; i < volSize.NPixelsX; i++ {
					px := float64(i)*voxelExtent.PixelWidth +
						voxelExtent.PixelWidth/2.0 -
						volExtent.SliceWidth/2.0

					if math.Sqrt(px*px+py*py) > cutRadius {
						vol.SetVoxel(i, j, k, 0)
					}
				}
			}
		}
	})

	return nil
}

// ApplyMask zeros the voxels of the active frame of vol wherever the
// same-sized mask is not positive.
func ApplyMask(vol, maskVol *VolData) error {
	if !vol.Allocated() || !maskVol.Allocated() {
		return ErrVolNotAllocated
	}
	if !vol.Header().SameGrid(*maskVol.Header()) {
		return ErrVolMismatch
	}

	data := vol.ActiveData()
	mask := maskVol.ActiveData()

	runChunks(len(data), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			if mask[i] <= 0 {
				data[i] = 0
			}
		}
	})

	return nil
}

// HounsfieldToMuMap converts a CT volume in Hounsfield units into linear
// attenuation coefficients in mm^-1, in place on the active frame.
//
// Bi-linear scaling:
//
//	HU <= -1000        => mu = 0
//	HU in (-1000, 0]   => mu in (0, 0.0096]
//	HU > 0             => mu = 0.0096 + 0.015*HU/1000
func HounsfieldToMuMap(vol *VolData) error {
	if !vol.Allocated() {
		return ErrVolNotAllocated
	}

	const waterMu = VoxelValue(0.0096)
	const thousandMu = VoxelValue(0.015)

	const scale1 = waterMu / 1000.0
	const scale2 = thousandMu / 1000.0

	data := vol.ActiveData()

	runChunks(len(data), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			switch {
			case data[i] <= -1000.0:
				data[i] = 0
			case data[i] <= 0:
				data[i] = data[i]*scale1 + waterMu
			default:
				data[i] = data[i]*scale2 + waterMu
			}
		}
	})

	return nil
}
