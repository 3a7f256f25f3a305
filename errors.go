package fir

import (
	"errors"
)

var ErrScannerHeader = errors.New("Error Validating Scanner Header")
var ErrProjHeader = errors.New("Error Validating Projection Header")
var ErrVolHeader = errors.New("Error Validating Volume Header")
var ErrScannerProjMismatch = errors.New("Error Projection Incompatible With Scanner")
var ErrVolMismatch = errors.New("Error Volume Headers Do Not Match")
var ErrProjMismatch = errors.New("Error Projection Headers Do Not Match")
var ErrNSubsets = errors.New("Error Number Of Subsets Must Divide Number Of Views")
var ErrNFrames = errors.New("Error Wrong Number Of Frames")
var ErrVolNotAllocated = errors.New("Error Volume Not Allocated")
var ErrProjNotAllocated = errors.New("Error Projection Not Allocated")
var ErrActiveFrame = errors.New("Error Invalid Active Frame")
var ErrCrystalPacking = errors.New("Error Crystal Index Exceeds 16 Bit Packing")
var ErrCreateVolTdb = errors.New("Error Creating Volume TileDB Array")
var ErrWriteVolTdb = errors.New("Error Writing Volume TileDB Array")
var ErrCreateProjTdb = errors.New("Error Creating Projection TileDB Array")
var ErrWriteProjTdb = errors.New("Error Writing Projection TileDB Array")
var ErrCreateAttrTdb = errors.New("Error Creating Attribute for TileDB Array")
var ErrCheckpoint = errors.New("Error Writing Intermediate Volume")
