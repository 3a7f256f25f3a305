package fir

import (
	"log"
)

// Forward projects a volume into a sinogram: for every bin, the line
// integral of the input volume along the LOR joining the bin's crystal
// pair. Segments are processed sequentially so progress is observable;
// views are spread across the pool. A forward projection always traverses
// all bins, with no subset partitioning.
func Forward(inputVol *VolData, scanner *ScannerData, outputProj *ProjData) error {
	if err := scanner.CheckProjData(outputProj); err != nil {
		return err
	}
	if !inputVol.Allocated() {
		return ErrVolNotAllocated
	}
	if !outputProj.Allocated() {
		return ErrProjNotAllocated
	}

	siddon := NewSiddon(inputVol, scanner)

	geometry := outputProj.Geometry()
	header := outputProj.Header()

	for seg := -geometry.SegOffset; seg <= geometry.SegOffset; seg++ {
		log.Println("Computing segment", seg)

		nBinsPerView := geometry.NAxialCoordsFor(seg) * header.NTangCoords
		segData := outputProj.Segment(seg)

		runChunks(geometry.NViews, func(worker, lo, hi int) {
			path := siddon.Path(worker)

			for view := lo; view < hi; view++ {
				binIndex := view * nBinsPerView

				for axialCoord := 0; axialCoord < geometry.NAxialCoordsFor(seg); axialCoord++ {
					crystalAxialCoord1, crystalAxialCoord2 :=
						outputProj.CrystalAxialCoords(seg, axialCoord)

					for tangCoord := -geometry.TangCoordOffset; tangCoord < -geometry.TangCoordOffset+header.NTangCoords; tangCoord++ {
						crystalAngCoord1, crystalAngCoord2 :=
							outputProj.CrystalAngCoords(view, tangCoord)

						siddon.ComputePathBetweenCrystals(
							crystalAxialCoord1,
							crystalAngCoord1,
							crystalAxialCoord2,
							crystalAngCoord2,
							path)

						segData[binIndex] = inputVol.ComputeLineIntegral(path)
						binIndex++
					}
				}
			}
		})
	}

	return nil
}

// Backward projects a sinogram into a multi-frame volume, one frame per
// subset: every bin value is smeared along its LOR with the intersection
// lengths as weights. Voxel updates are atomic since bins of a subset are
// processed concurrently.
func Backward(inputProj *ProjData, scanner *ScannerData, outputVol *VolData, nSubsets int) error {
	if err := scanner.CheckProjData(inputProj); err != nil {
		return err
	}
	if err := inputProj.CheckNSubsets(nSubsets); err != nil {
		return err
	}
	if err := outputVol.CheckNFrames(nSubsets); err != nil {
		return err
	}
	if !inputProj.Allocated() {
		return ErrProjNotAllocated
	}

	siddon := NewSiddon(outputVol, scanner)

	cache, err := NewLORCache(inputProj, nSubsets)
	if err != nil {
		return err
	}

	log.Println("Back-projection")

	outputVol.SetAllVoxelsAllFrames(0)

	geometry := inputProj.Geometry()

	for subset := 0; subset < nSubsets; subset++ {
		if nSubsets > 1 {
			log.Println("Subset", subset+1, "of", nSubsets)
		}

		if err := outputVol.SetActiveFrame(subset); err != nil {
			return err
		}

		for seg := -geometry.SegOffset; seg <= geometry.SegOffset; seg++ {
			nBins := cache.SetSubsetSegment(subset, seg)
			segData := inputProj.Segment(seg)

			runChunks(nBins, func(worker, lo, hi int) {
				path := siddon.Path(worker)

				for index := lo; index < hi; index++ {
					valid, binIndex,
						crystalAxialCoord1, crystalAngCoord1,
						crystalAxialCoord2, crystalAngCoord2 := cache.GetLOR(index)

					if !valid {
						continue
					}

					if !siddon.ComputePathBetweenCrystals(
						crystalAxialCoord1,
						crystalAngCoord1,
						crystalAxialCoord2,
						crystalAngCoord2,
						path) {
						continue
					}

					outputVol.ProjectLineIntegral(path, segData[binIndex])
				}
			})
		}
	}

	return nil
}

// ComputeSensitivityVol back-projects a uniform sinogram shaped like proj
// into outputSensitivityVol: the per-voxel normalization used as the OSEM
// denominator, one frame per subset.
func ComputeSensitivityVol(
	proj *ProjData,
	scanner *ScannerData,
	outputSensitivityVol *VolData,
	nSubsets int,
) error {

	ones := NewProjDataFrom(proj, Initialize, 1)

	return Backward(ones, scanner, outputSensitivityVol, nSubsets)
}
