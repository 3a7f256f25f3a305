package interfile

import (
	"errors"

	fir "github.com/sixy6e/go-fir"
)

// OSEMFileParams bundles the reconstruction parameters with the file names
// of an OSEM run, as read from an OSEM parameter file.
//
// The main files are mandatory. If the output volume header links to a
// data file, that data seeds the first estimate; otherwise the estimate
// starts at one everywhere. The optional sensitivity, bias and attenuation
// files select the corresponding corrections.
type OSEMFileParams struct {
	// Main files (mandatory)
	InputProjFile     string
	ScannerFile       string
	OutputVolHeader   string
	OutputVolFileName string

	// Core parameters (optional with default values)
	AlgoParams fir.OSEMParams

	// Sensitivity
	SensVolFile string

	// Bias
	BiasProjFile string

	// Attenuation
	AttenVolHUFile       string
	AttenCorrFactorsFile string
}

// ReadOSEMParams parses an OSEM parameter file, locally or on an object
// store.
func ReadOSEMParams(paramFile, config_uri string) (OSEMFileParams, error) {
	params := OSEMFileParams{AlgoParams: fir.DefaultOSEMParams()}

	kp := &KeyParser{}

	kp.AddStartKey("!OSEM PARAMETERS")

	kp.AddKey("input projection file", &params.InputProjFile)
	kp.AddKey("scanner file", &params.ScannerFile)
	kp.AddKey("output volume header", &params.OutputVolHeader)
	kp.AddKey("output volume file name", &params.OutputVolFileName)

	kp.AddKey("number of iterations", &params.AlgoParams.NIterations)
	kp.AddKey("number of subsets", &params.AlgoParams.NSubsets)

	kp.AddKey("save interval", &params.AlgoParams.SaveInterval)

	kp.AddKey("cut radius in mm", &params.AlgoParams.CutRadius)
	kp.AddKey("convolution interval", &params.AlgoParams.ConvolutionInterval)
	kp.AddKey("convolution FHWM XYZ in mm", &params.AlgoParams.FwhmXYZ)

	kp.AddKey("sensitivity map volume", &params.SensVolFile)

	kp.AddKey("bias projection", &params.BiasProjFile)

	kp.AddKey("attenuation volume in HU", &params.AttenVolHUFile)
	kp.AddKey("attenuation correction factors", &params.AttenCorrFactorsFile)

	kp.AddStopKey("!END OF OSEM PARAMETERS")

	if err := kp.Parse(paramFile, config_uri); err != nil {
		return params, err
	}

	if params.InputProjFile == "" {
		return params, errors.Join(ErrParse, errors.New("no input projection file provided"))
	}
	if params.ScannerFile == "" {
		return params, errors.Join(ErrParse, errors.New("no scanner file provided"))
	}
	if params.OutputVolHeader == "" {
		return params, errors.Join(ErrParse, errors.New("no output volume header provided"))
	}
	if params.OutputVolFileName == "" {
		return params, errors.Join(ErrParse, errors.New("no output volume file name provided"))
	}

	return params, nil
}
