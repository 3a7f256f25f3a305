package fir

import (
	"errors"
	"fmt"
)

// ScannerHeader holds the parsed description of a cylindrical scanner as a
// hierarchy of crystals grouped into modules grouped into rSectors. It is
// populated once from the scanner parameter file and immutable afterwards.
type ScannerHeader struct {
	// Crystals
	CrystalDimsXYZ         []float64
	CrystalRepeatNumbersYZ []int
	InterCrystalDistanceYZ []float64

	// Modules
	ModuleDimsXYZ         []float64
	ModuleRepeatNumbersYZ []int
	InterModuleDistanceYZ []float64

	// rSectors
	RSectorDimsXYZ      []float64
	RSectorRepeatNumber int
	RSectorInnerRadius  float64
}

// SetDefaults fills the header with default values. Must be called before
// setting specific values. RSectorRepeatNumber and RSectorInnerRadius are
// the only mandatory parameters and are left at values that fail Check.
func (h *ScannerHeader) SetDefaults() {
	h.CrystalDimsXYZ = []float64{0, 0, 0}
	h.CrystalRepeatNumbersYZ = []int{1, 1}
	h.InterCrystalDistanceYZ = []float64{0, 0}

	h.ModuleDimsXYZ = []float64{0, 0, 0} // 0: tight fit on crystals
	h.ModuleRepeatNumbersYZ = []int{1, 1}
	h.InterModuleDistanceYZ = []float64{0, 0}

	h.RSectorDimsXYZ = []float64{0, 0, 0} // 0: tight fit on modules
	h.RSectorRepeatNumber = 0
	h.RSectorInnerRadius = 0.0
}

func scannerErr(format string, args ...any) error {
	return errors.Join(ErrScannerHeader, fmt.Errorf(format, args...))
}

// Check validates the header and substitutes tight-fit defaults for zero
// module and rSector dimensions. Must be called after setting values and
// before deriving the geometry.
func (h *ScannerHeader) Check() error {
	if len(h.CrystalDimsXYZ) != 3 {
		return scannerErr("\"crystal dimensions XYZ in mm\" must contain three elements")
	}
	if h.CrystalDimsXYZ[0] < 0 || h.CrystalDimsXYZ[1] < 0 || h.CrystalDimsXYZ[2] < 0 {
		return scannerErr("elements of \"crystal dimensions XYZ in mm\" must not be negative")
	}

	if len(h.CrystalRepeatNumbersYZ) != 2 {
		return scannerErr("\"crystal repeat numbers YZ\" must contain two elements")
	}
	if h.CrystalRepeatNumbersYZ[0] <= 0 || h.CrystalRepeatNumbersYZ[1] <= 0 {
		return scannerErr("elements of \"crystal repeat numbers YZ\" must be > 0")
	}

	if len(h.InterCrystalDistanceYZ) != 2 {
		return scannerErr("\"inter-crystal distance YZ in mm\" must contain two elements")
	}
	if h.InterCrystalDistanceYZ[0] < 0 || h.InterCrystalDistanceYZ[1] < 0 {
		return scannerErr("elements of \"inter-crystal distance YZ in mm\" must not be negative")
	}

	if len(h.ModuleDimsXYZ) != 3 {
		return scannerErr("\"module dimensions XYZ in mm\" must contain three elements")
	}
	if h.ModuleDimsXYZ[0] < 0 || h.ModuleDimsXYZ[1] < 0 || h.ModuleDimsXYZ[2] < 0 {
		return scannerErr("elements of \"module dimensions XYZ in mm\" must not be negative")
	}

	if len(h.ModuleRepeatNumbersYZ) != 2 {
		return scannerErr("\"module repeat numbers YZ\" must contain two elements")
	}
	if h.ModuleRepeatNumbersYZ[0] <= 0 || h.ModuleRepeatNumbersYZ[1] <= 0 {
		return scannerErr("elements of \"module repeat numbers YZ\" must be > 0")
	}

	if len(h.InterModuleDistanceYZ) != 2 {
		return scannerErr("\"inter-module distance YZ in mm\" must contain two elements")
	}
	if h.InterModuleDistanceYZ[0] < 0 || h.InterModuleDistanceYZ[1] < 0 {
		return scannerErr("elements of \"inter-module distance YZ in mm\" must not be negative")
	}

	if len(h.RSectorDimsXYZ) != 3 {
		return scannerErr("\"rSector dimensions XYZ in mm\" must contain three elements")
	}
	if h.RSectorDimsXYZ[0] < 0 || h.RSectorDimsXYZ[1] < 0 || h.RSectorDimsXYZ[2] < 0 {
		return scannerErr("elements of \"rSector dimensions XYZ in mm\" must not be negative")
	}

	if h.RSectorRepeatNumber <= 0 {
		return scannerErr("\"rSector repeat number\" must be present and > 0")
	}
	if h.RSectorInnerRadius <= 0 {
		return scannerErr("\"rSector inner radius in mm\" must be present and > 0")
	}

	// A repeat count > 1 along an axis requires a nonzero extent along it
	if h.CrystalRepeatNumbersYZ[0] > 1 && h.CrystalDimsXYZ[1] == 0 {
		return scannerErr("crystal repeat number in Y cannot be > 1 if crystal dimension in Y is zero")
	}
	if h.CrystalRepeatNumbersYZ[1] > 1 && h.CrystalDimsXYZ[2] == 0 {
		return scannerErr("crystal repeat number in Z cannot be > 1 if crystal dimension in Z is zero")
	}

	// Default and minimum module size: fits tightly on crystals

	minModuleDimsX := h.CrystalDimsXYZ[0]
	if h.ModuleDimsXYZ[0] == 0 {
		h.ModuleDimsXYZ[0] = minModuleDimsX
	} else if h.ModuleDimsXYZ[0] < minModuleDimsX {
		return scannerErr("module dimension in X must be >= %v", minModuleDimsX)
	}

	minModuleDimsY := h.CrystalDimsXYZ[1]*float64(h.CrystalRepeatNumbersYZ[0]) +
		h.InterCrystalDistanceYZ[0]*float64(h.CrystalRepeatNumbersYZ[0]-1)
	if h.ModuleDimsXYZ[1] == 0 {
		h.ModuleDimsXYZ[1] = minModuleDimsY
	} else if h.ModuleDimsXYZ[1] < minModuleDimsY {
		return scannerErr("module dimension in Y must be >= %v", minModuleDimsY)
	}

	minModuleDimsZ := h.CrystalDimsXYZ[2]*float64(h.CrystalRepeatNumbersYZ[1]) +
		h.InterCrystalDistanceYZ[1]*float64(h.CrystalRepeatNumbersYZ[1]-1)
	if h.ModuleDimsXYZ[2] == 0 {
		h.ModuleDimsXYZ[2] = minModuleDimsZ
	} else if h.ModuleDimsXYZ[2] < minModuleDimsZ {
		return scannerErr("module dimension in Z must be >= %v", minModuleDimsZ)
	}

	if h.ModuleRepeatNumbersYZ[0] > 1 && h.ModuleDimsXYZ[1] == 0 {
		return scannerErr("module repeat number in Y cannot be > 1 if module dimension in Y is zero")
	}
	if h.ModuleRepeatNumbersYZ[1] > 1 && h.ModuleDimsXYZ[2] == 0 {
		return scannerErr("module repeat number in Z cannot be > 1 if module dimension in Z is zero")
	}

	// Default and minimum rSector size: fits tightly on modules

	minRSectorDimsX := h.ModuleDimsXYZ[0]
	if h.RSectorDimsXYZ[0] == 0 {
		h.RSectorDimsXYZ[0] = minRSectorDimsX
	} else if h.RSectorDimsXYZ[0] < minRSectorDimsX {
		return scannerErr("rSector dimension in X must be >= %v", minRSectorDimsX)
	}

	minRSectorDimsY := h.ModuleDimsXYZ[1]*float64(h.ModuleRepeatNumbersYZ[0]) +
		h.InterModuleDistanceYZ[0]*float64(h.ModuleRepeatNumbersYZ[0]-1)
	if h.RSectorDimsXYZ[1] == 0 {
		h.RSectorDimsXYZ[1] = minRSectorDimsY
	} else if h.RSectorDimsXYZ[1] < minRSectorDimsY {
		return scannerErr("rSector dimension in Y must be >= %v", minRSectorDimsY)
	}

	minRSectorDimsZ := h.ModuleDimsXYZ[2]*float64(h.ModuleRepeatNumbersYZ[1]) +
		h.InterModuleDistanceYZ[1]*float64(h.ModuleRepeatNumbersYZ[1]-1)
	if h.RSectorDimsXYZ[2] == 0 {
		h.RSectorDimsXYZ[2] = minRSectorDimsZ
	} else if h.RSectorDimsXYZ[2] < minRSectorDimsZ {
		return scannerErr("rSector dimension in Z must be >= %v", minRSectorDimsZ)
	}

	return nil
}

// ScannerGeometry holds the parameters derived from a validated header.
type ScannerGeometry struct {
	// Spacing between neighbouring crystals and modules along Y and Z
	CrystalRepeatVectorYZ []float64
	ModuleRepeatVectorYZ  []float64

	// Translation of the reference rSector from the origin along X
	RSectorTranslationX float64

	NCrystalsPerRing int
	NRings           int
	NCrystals        int

	// Slices are twice as dense as rings: ring-aligned plus half-offset
	NSlices int

	// Index shift such that crystal 0 is the middle crystal of the first
	// rSector, on or next to the +X axis
	CrystalOffset int
}

// Fill derives the geometry from a validated header.
func (g *ScannerGeometry) Fill(h *ScannerHeader) {
	g.CrystalRepeatVectorYZ = []float64{
		h.CrystalDimsXYZ[1] + h.InterCrystalDistanceYZ[0],
		h.CrystalDimsXYZ[2] + h.InterCrystalDistanceYZ[1],
	}

	g.ModuleRepeatVectorYZ = []float64{
		h.ModuleDimsXYZ[1] + h.InterModuleDistanceYZ[0],
		h.ModuleDimsXYZ[2] + h.InterModuleDistanceYZ[1],
	}

	g.RSectorTranslationX = h.RSectorInnerRadius + h.RSectorDimsXYZ[0]/2

	g.NCrystalsPerRing = h.CrystalRepeatNumbersYZ[0] *
		h.ModuleRepeatNumbersYZ[0] *
		h.RSectorRepeatNumber
	g.NRings = h.CrystalRepeatNumbersYZ[1] * h.ModuleRepeatNumbersYZ[1]
	g.NCrystals = g.NRings * g.NCrystalsPerRing

	g.NSlices = 2*g.NRings - 1

	g.CrystalOffset = h.ModuleRepeatNumbersYZ[0] * h.CrystalRepeatNumbersYZ[0] / 2
}
