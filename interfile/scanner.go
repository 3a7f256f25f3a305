package interfile

import (
	fir "github.com/sixy6e/go-fir"
)

// ReadScannerHeader parses a scanner parameter file, locally or on an
// object store. Validation of the values happens when the header is
// handed to fir.NewScannerData.
func ReadScannerHeader(headerFileName, config_uri string) (fir.ScannerHeader, error) {
	var header fir.ScannerHeader
	header.SetDefaults()

	kp := &KeyParser{}

	kp.AddStartKey("!SCANNER PARAMETERS")

	kp.AddKey("crystal dimensions XYZ in mm", &header.CrystalDimsXYZ)
	kp.AddKey("crystal repeat numbers YZ", &header.CrystalRepeatNumbersYZ)
	kp.AddKey("inter-crystal distance YZ in mm", &header.InterCrystalDistanceYZ)

	kp.AddKey("module dimensions XYZ in mm", &header.ModuleDimsXYZ)
	kp.AddKey("module repeat numbers YZ", &header.ModuleRepeatNumbersYZ)
	kp.AddKey("inter-module distance YZ in mm", &header.InterModuleDistanceYZ)

	kp.AddKey("rSector dimensions XYZ in mm", &header.RSectorDimsXYZ)
	kp.AddKey("rSector repeat number", &header.RSectorRepeatNumber)
	kp.AddKey("rSector inner radius in mm", &header.RSectorInnerRadius)

	kp.AddStopKey("!END OF SCANNER PARAMETERS")

	if err := kp.Parse(headerFileName, config_uri); err != nil {
		return header, err
	}

	return header, nil
}

// ReadScanner parses a scanner parameter file and builds the derived
// position tables.
func ReadScanner(headerFileName, config_uri string) (*fir.ScannerData, error) {
	header, err := ReadScannerHeader(headerFileName, config_uri)
	if err != nil {
		return nil, err
	}

	return fir.NewScannerData(header)
}
