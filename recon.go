package fir

import (
	"errors"
	"fmt"
	"log"
)

// OSEMParams are the reconstruction parameters recognized by the OSEM
// drivers, with their defaults.
type OSEMParams struct {
	NIterations int // default 1
	NSubsets    int // default 1; must divide the number of views

	// 0 disables intermediate checkpoints
	SaveInterval int

	// Cylindrical mask radius in mm; 0 disables the mask
	CutRadius float64

	// Blur cadence in subiterations; 0 disables the blur
	ConvolutionInterval int

	// Per-axis FWHM in mm; the blur is disabled if any entry is <= 0
	FwhmXYZ []float64
}

// DefaultOSEMParams returns the parameter defaults.
func DefaultOSEMParams() OSEMParams {
	return OSEMParams{
		NIterations: 1,
		NSubsets:    1,
		FwhmXYZ:     []float64{0, 0, 0},
	}
}

func (p *OSEMParams) convolveEnabled() bool {
	return p.ConvolutionInterval > 0 &&
		len(p.FwhmXYZ) == 3 &&
		p.FwhmXYZ[0] > 0 && p.FwhmXYZ[1] > 0 && p.FwhmXYZ[2] > 0
}

// CheckpointFunc receives intermediate volumes when a save interval is set.
// The name carries the subiteration suffix.
type CheckpointFunc func(name string, vol *VolData) error

// getLine looks up a cached LOR, traces it and computes the line integral
// of the estimate along it. Empty paths found on the first iteration
// disable the LOR for all subsequent iterations.
func getLine(
	index int,
	cache *LORCache,
	siddon *Siddon,
	path []PathElement,
	firstIter bool,
	outputVol *VolData,
) (int, VoxelValue) {

	validSaved, binIndex,
		crystalAxialCoord1, crystalAngCoord1,
		crystalAxialCoord2, crystalAngCoord2 := cache.GetLOR(index)

	var line VoxelValue
	if validSaved {
		valid := siddon.ComputePathBetweenCrystals(
			crystalAxialCoord1,
			crystalAngCoord1,
			crystalAxialCoord2,
			crystalAngCoord2,
			path)

		if firstIter && !valid {
			cache.DisableLOR(index)
		}

		if valid {
			line = outputVol.ComputeLineIntegral(path)
		}
	} else {
		// The worker's buffer still holds the previous LOR; empty it so a
		// bias-lifted line cannot be projected along a stale path
		path[0].Coord = PathEnd
	}

	return binIndex, line
}

// OSEM reconstructs outputVol from inputProj by ordered-subsets
// expectation-maximization. The initial content of outputVol is the first
// estimate. sensitivityMap must hold one frame per subset (the backward
// projection of a uniform sinogram). biasProj, when non-nil, is added to
// every forward-projected line. checkpoint, when non-nil and a save
// interval is set, receives intermediate volumes named
// <outputVolName>_subiter_<n>.
func OSEM(
	inputProj *ProjData,
	scanner *ScannerData,
	outputVol *VolData,
	outputVolName string,
	params OSEMParams,
	sensitivityMap *VolData,
	biasProj *ProjData,
	checkpoint CheckpointFunc,
) error {

	log.Println("OSEM")

	if err := scanner.CheckProjData(inputProj); err != nil {
		return err
	}
	if err := inputProj.CheckNSubsets(params.NSubsets); err != nil {
		return err
	}

	convolve := params.convolveEnabled()

	backProj := NewVolDataFrom(outputVol, Initialize, 0)

	cache, err := NewLORCache(inputProj, params.NSubsets)
	if err != nil {
		return err
	}
	siddon := NewSiddon(outputVol, scanner)

	if err := CutCircle(outputVol, params.CutRadius); err != nil {
		return err
	}

	geometry := inputProj.Geometry()
	nSubiterations := params.NIterations * params.NSubsets

	for iter := 0; iter < params.NIterations; iter++ {
		log.Println("Iteration", iter+1, "of", params.NIterations)

		for subset := 0; subset < params.NSubsets; subset++ {
			subiter := iter*params.NSubsets + subset + 1

			if params.NSubsets > 1 {
				log.Println("  Sub-iteration", subset+1, "of", params.NSubsets)
			}

			for seg := -geometry.SegOffset; seg <= geometry.SegOffset; seg++ {
				nBins := cache.SetSubsetSegment(subset, seg)
				segData := inputProj.Segment(seg)

				var biasData []BinValue
				if biasProj != nil {
					biasData = biasProj.Segment(seg)
				}

				firstIter := iter == 0

				runChunks(nBins, func(worker, lo, hi int) {
					path := siddon.Path(worker)

					for index := lo; index < hi; index++ {
						binIndex, line := getLine(
							index, cache, siddon, path, firstIter, outputVol)

						if biasData != nil {
							line += biasData[binIndex]
						}

						// Ratio with the measured bin, smeared back along
						// the same path
						if line > EpsValue {
							backProj.ProjectLineIntegral(path, segData[binIndex]/line)
						}
					}
				})
			}

			// Divide backProj by the subset sensitivity
			if err := sensitivityMap.SetActiveFrame(subset); err != nil {
				return err
			}
			if err := backProj.Div(sensitivityMap); err != nil {
				return err
			}

			if err := outputVol.Mul(backProj); err != nil {
				return err
			}

			if convolve && subiter%params.ConvolutionInterval == 0 {
				if err := Convolve(outputVol, params.FwhmXYZ, params.CutRadius); err != nil {
					return err
				}
			}

			if err := CutCircle(outputVol, params.CutRadius); err != nil {
				return err
			}

			if subiter != nSubiterations {
				backProj.SetAllVoxels(0)
			}

			if err := saveIntermediate(
				params, subiter, nSubiterations, outputVolName, outputVol, checkpoint); err != nil {
				return err
			}
		}
	}

	return nil
}

// OSEMResoReco is the resolution-recovery variant of OSEM. It keeps the
// OSEM skeleton and adds two blur stages: the sensitivity map is blurred
// once at setup, and each subiteration blurs a running copy of the
// estimate as well as the fresh back-projection before the update. Unlike
// plain OSEM, the estimate itself is divided by the sensitivity; the two
// orders differ where the estimate holds zeros and each driver keeps its
// own.
func OSEMResoReco(
	inputProj *ProjData,
	scanner *ScannerData,
	outputVol *VolData,
	outputVolName string,
	params OSEMParams,
	sensitivityMap *VolData,
	biasProj *ProjData,
	checkpoint CheckpointFunc,
) error {

	log.Println("OSEM with resolution recovery")

	if err := scanner.CheckProjData(inputProj); err != nil {
		return err
	}
	if err := inputProj.CheckNSubsets(params.NSubsets); err != nil {
		return err
	}

	convolve := params.convolveEnabled()

	cache, err := NewLORCache(inputProj, params.NSubsets)
	if err != nil {
		return err
	}
	siddon := NewSiddon(outputVol, scanner)

	backProj := NewVolDataFrom(outputVol, Initialize, 0)

	if err := CutCircle(outputVol, params.CutRadius); err != nil {
		return err
	}

	if err := Convolve(sensitivityMap, params.FwhmXYZ, params.CutRadius); err != nil {
		return err
	}

	blur := NewVolDataFrom(outputVol, CopyData, 0)

	geometry := inputProj.Geometry()
	nSubiterations := params.NIterations * params.NSubsets

	for iter := 0; iter < params.NIterations; iter++ {
		log.Println("Iteration", iter+1, "of", params.NIterations)

		for subset := 0; subset < params.NSubsets; subset++ {
			subiter := iter*params.NSubsets + subset + 1

			if params.NSubsets > 1 {
				log.Println("  Sub-iteration", subset+1, "of", params.NSubsets)
			}

			if err := Convolve(blur, params.FwhmXYZ, params.CutRadius); err != nil {
				return err
			}

			for seg := -geometry.SegOffset; seg <= geometry.SegOffset; seg++ {
				nBins := cache.SetSubsetSegment(subset, seg)
				segData := inputProj.Segment(seg)

				var biasData []BinValue
				if biasProj != nil {
					biasData = biasProj.Segment(seg)
				}

				firstIter := iter == 0

				runChunks(nBins, func(worker, lo, hi int) {
					path := siddon.Path(worker)

					for index := lo; index < hi; index++ {
						binIndex, line := getLine(
							index, cache, siddon, path, firstIter, outputVol)

						if biasData != nil {
							line += biasData[binIndex]
						}

						if line > EpsValue {
							backProj.ProjectLineIntegral(path, segData[binIndex]/line)
						}
					}
				})
			}

			if err := Convolve(backProj, params.FwhmXYZ, params.CutRadius); err != nil {
				return err
			}

			if err := sensitivityMap.SetActiveFrame(subset); err != nil {
				return err
			}
			if err := outputVol.Div(sensitivityMap); err != nil {
				return err
			}

			if err := outputVol.Mul(backProj); err != nil {
				return err
			}

			if subiter != nSubiterations {
				backProj.SetAllVoxels(0)
			}

			if convolve && subiter%params.ConvolutionInterval == 0 {
				if err := Convolve(outputVol, params.FwhmXYZ, params.CutRadius); err != nil {
					return err
				}
			}

			if err := CutCircle(outputVol, params.CutRadius); err != nil {
				return err
			}

			if subiter != nSubiterations {
				if err := blur.Assign(outputVol); err != nil {
					return err
				}
			}

			if err := saveIntermediate(
				params, subiter, nSubiterations, outputVolName, outputVol, checkpoint); err != nil {
				return err
			}
		}
	}

	return nil
}

func saveIntermediate(
	params OSEMParams,
	subiter, nSubiterations int,
	outputVolName string,
	outputVol *VolData,
	checkpoint CheckpointFunc,
) error {

	if checkpoint == nil ||
		params.SaveInterval <= 0 ||
		subiter%params.SaveInterval != 0 ||
		subiter == nSubiterations {
		return nil
	}

	name := fmt.Sprintf("%s_subiter_%d", outputVolName, subiter)
	if err := checkpoint(name, outputVol); err != nil {
		return errors.Join(ErrCheckpoint, err)
	}

	return nil
}
