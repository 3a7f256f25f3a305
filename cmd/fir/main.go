package main

import (
	"errors"
	"log"
	"os"
	"strconv"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/urfave/cli/v2"

	fir "github.com/sixy6e/go-fir"
	"github.com/sixy6e/go-fir/interfile"
)

// run_osem handles the whole reconstruction pipeline for a parameter file:
// inputs, sensitivity, bias, attenuation, iterations, output.
func run_osem(param_uri, config_uri string, recompute_sens, recompute_atten, reso_reco bool) error {
	log.Println("Number of workers:", fir.NWorkers())

	params, err := interfile.ReadOSEMParams(param_uri, config_uri)
	if err != nil {
		return err
	}

	log.Println("Reading input projection:", params.InputProjFile)
	inputProj, err := interfile.ReadProj(params.InputProjFile, config_uri, fir.CopyData, 0)
	if err != nil {
		return err
	}
	if err := inputProj.CheckNSubsets(params.AlgoParams.NSubsets); err != nil {
		return err
	}

	log.Println("Reading scanner:", params.ScannerFile)
	scanner, err := interfile.ReadScanner(params.ScannerFile, config_uri)
	if err != nil {
		return err
	}

	// First estimate: the header's data file if linked, ones otherwise
	outputVol, err := interfile.ReadVol(params.OutputVolHeader, config_uri, fir.CopyDataIfAllocated, 1.0)
	if err != nil {
		return err
	}

	// Sensitivity is recomputed unless a usable file exists and reuse was
	// requested
	sens_provided := params.SensVolFile != ""
	if !recompute_sens {
		recompute_sens = !sens_provided || !fir.FileExists(params.SensVolFile, config_uri)
	}

	var sensVol *fir.VolData
	if recompute_sens {
		log.Println("Computing sensitivity map")

		sensVol, err = fir.AllocateAsMultiVol(outputVol, params.AlgoParams.NSubsets)
		if err != nil {
			return err
		}

		err = fir.ComputeSensitivityVol(inputProj, scanner, sensVol, params.AlgoParams.NSubsets)
		if err != nil {
			return err
		}

		if sens_provided {
			log.Println("Saving sensitivity map to:", params.SensVolFile)
			if err := interfile.WriteVol(params.SensVolFile, config_uri, sensVol); err != nil {
				return err
			}
		}
	} else {
		log.Println("Reading sensitivity map from:", params.SensVolFile)

		sensVol, err = interfile.ReadVol(params.SensVolFile, config_uri, fir.CopyData, 0)
		if err != nil {
			return err
		}

		if !sensVol.Header().SameGrid(*outputVol.Header()) {
			return errors.New("sensitivity volume provided doesn't fit with output volume provided")
		}
		if err := sensVol.CheckNFrames(params.AlgoParams.NSubsets); err != nil {
			return err
		}
	}

	var biasProj *fir.ProjData
	if params.BiasProjFile != "" {
		log.Println("Reading bias projection from:", params.BiasProjFile)

		biasProj, err = interfile.ReadProj(params.BiasProjFile, config_uri, fir.CopyData, 0)
		if err != nil {
			return err
		}
	}

	if err := applyAttenuation(params, config_uri, scanner, inputProj, recompute_atten); err != nil {
		return err
	}

	checkpoint := func(name string, vol *fir.VolData) error {
		return interfile.WriteVol(name, config_uri, vol)
	}

	if reso_reco {
		err = fir.OSEMResoReco(
			inputProj, scanner, outputVol, params.OutputVolFileName,
			params.AlgoParams, sensVol, biasProj, checkpoint)
	} else {
		err = fir.OSEM(
			inputProj, scanner, outputVol, params.OutputVolFileName,
			params.AlgoParams, sensVol, biasProj, checkpoint)
	}
	if err != nil {
		return err
	}

	log.Println("Saving reconstructed volume to:", params.OutputVolFileName)

	return interfile.WriteVol(params.OutputVolFileName, config_uri, outputVol)
}

// applyAttenuation multiplies the input projection by attenuation
// correction factors, recomputing them from a HU volume or reusing a
// factors file depending on what is available.
func applyAttenuation(
	params interfile.OSEMFileParams,
	config_uri string,
	scanner *fir.ScannerData,
	inputProj *fir.ProjData,
	recompute bool,
) error {

	hu_provided := params.AttenVolHUFile != ""
	factors_exist := params.AttenCorrFactorsFile != "" &&
		fir.FileExists(params.AttenCorrFactorsFile, config_uri)

	if !hu_provided && !factors_exist {
		return nil
	}

	// Fall back to whichever input actually exists
	if !recompute && hu_provided && !factors_exist {
		recompute = true
	}
	if recompute && !hu_provided && factors_exist {
		recompute = false
	}

	var attenCorrFactors *fir.ProjData
	if recompute {
		log.Println("Computing attenuation correction factors")

		muMap, err := interfile.ReadVol(params.AttenVolHUFile, config_uri, fir.CopyData, 0)
		if err != nil {
			return err
		}

		if err := fir.HounsfieldToMuMap(muMap); err != nil {
			return err
		}
		if err := fir.CutCircle(muMap, params.AlgoParams.CutRadius); err != nil {
			return err
		}

		// The correction factors are the inverse of the attenuation
		// factors, exp(+lineIntegralOfMu)
		attenCorrFactors = fir.NewProjDataFrom(inputProj, fir.Initialize, 0)
		if err := fir.Forward(muMap, scanner, attenCorrFactors); err != nil {
			return err
		}
		attenCorrFactors.Exponential()

		if params.AttenCorrFactorsFile != "" {
			log.Println("Saving attenuation correction factors to:", params.AttenCorrFactorsFile)
			if err := interfile.WriteProj(params.AttenCorrFactorsFile, config_uri, attenCorrFactors); err != nil {
				return err
			}
		}
	} else {
		log.Println("Reading attenuation correction factors from:", params.AttenCorrFactorsFile)

		var err error
		attenCorrFactors, err = interfile.ReadProj(params.AttenCorrFactorsFile, config_uri, fir.CopyData, 0)
		if err != nil {
			return err
		}
	}

	return inputProj.Mul(attenCorrFactors)
}

// run_forward forward-projects frames of a volume into projection files.
func run_forward(vol_uri, scanner_uri, proj_header_uri, out_uri, mask_uri, config_uri string, frames []int) error {
	inputVol, err := interfile.ReadVol(vol_uri, config_uri, fir.CopyData, 0)
	if err != nil {
		return err
	}

	var maskVol *fir.VolData
	if mask_uri != "" {
		maskVol, err = interfile.ReadVol(mask_uri, config_uri, fir.CopyData, 0)
		if err != nil {
			return err
		}
	}

	scanner, err := interfile.ReadScanner(scanner_uri, config_uri)
	if err != nil {
		return err
	}

	outputProj, err := interfile.ReadProj(proj_header_uri, config_uri, fir.Allocate, 0)
	if err != nil {
		return err
	}

	nFrames := inputVol.Header().NFrames

	single_frame := len(frames) == 0 && nFrames == 1
	if len(frames) == 0 {
		for frame := 0; frame < nFrames; frame++ {
			frames = append(frames, frame)
		}
	}

	for _, frame := range frames {
		if err := inputVol.SetActiveFrame(frame); err != nil {
			return err
		}

		if maskVol != nil {
			if err := fir.ApplyMask(inputVol, maskVol); err != nil {
				return err
			}
		}

		if err := fir.Forward(inputVol, scanner, outputProj); err != nil {
			return err
		}

		name := out_uri
		if !single_frame {
			name = out_uri + "_frame_" + strconv.Itoa(frame)
		}

		if err := interfile.WriteProj(name, config_uri, outputProj); err != nil {
			return err
		}
	}

	return nil
}

// run_backward back-projects a projection into a volume file.
func run_backward(proj_uri, scanner_uri, vol_header_uri, out_uri, config_uri string, nSubsets int, rebin_weight bool) error {
	inputProj, err := interfile.ReadProj(proj_uri, config_uri, fir.CopyData, 0)
	if err != nil {
		return err
	}

	// Ring-pair normalization is an explicit opt-in for span > 1
	if rebin_weight {
		inputProj.RebinWeight()
	}

	scanner, err := interfile.ReadScanner(scanner_uri, config_uri)
	if err != nil {
		return err
	}

	template, err := interfile.ReadVol(vol_header_uri, config_uri, fir.Allocate, 0)
	if err != nil {
		return err
	}

	outputVol, err := fir.AllocateAsMultiVol(template, nSubsets)
	if err != nil {
		return err
	}

	if err := fir.Backward(inputProj, scanner, outputVol, nSubsets); err != nil {
		return err
	}

	return interfile.WriteVol(out_uri, config_uri, outputVol)
}

// run_export writes a reconstructed volume to a dense TileDB array plus a
// JSON metadata file alongside.
func run_export(vol_uri, out_uri, config_uri string) error {
	vol, err := interfile.ReadVol(vol_uri, config_uri, fir.CopyData, 0)
	if err != nil {
		return err
	}

	var config *tiledb.Config
	if config_uri == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(config_uri)
	}
	if err != nil {
		return err
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return err
	}
	defer ctx.Free()

	log.Println("Writing volume to TileDB array:", out_uri)

	if err := vol.ToTileDB(out_uri, ctx); err != nil {
		return err
	}

	log.Println("Writing volume metadata")
	_, err = fir.WriteMetadataJson(out_uri+"-metadata.json", config_uri, vol.Metadata())

	return err
}

func main() {
	app := &cli.App{
		Commands: []*cli.Command{
			&cli.Command{
				Name: "osem",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "params-uri",
						Usage: "URI or pathname to an OSEM parameter file.",
					},
					&cli.StringFlag{
						Name:  "config-uri",
						Usage: "URI or pathname to a TileDB config file.",
					},
					&cli.BoolFlag{
						Name:  "reuse-sensitivity",
						Usage: "Reuse the sensitivity map file when it exists.",
					},
					&cli.BoolFlag{
						Name:  "reuse-attenuation",
						Usage: "Reuse the attenuation correction factors file when it exists.",
					},
					&cli.BoolFlag{
						Name:  "reso-reco",
						Usage: "Run the resolution recovery variant.",
					},
				},
				Action: func(cCtx *cli.Context) error {
					err := run_osem(
						cCtx.String("params-uri"),
						cCtx.String("config-uri"),
						!cCtx.Bool("reuse-sensitivity"),
						!cCtx.Bool("reuse-attenuation"),
						cCtx.Bool("reso-reco"))
					return err
				},
			},
			&cli.Command{
				Name: "forward",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "vol-uri",
						Usage: "URI or pathname to the input volume header.",
					},
					&cli.StringFlag{
						Name:  "scanner-uri",
						Usage: "URI or pathname to the scanner parameter file.",
					},
					&cli.StringFlag{
						Name:  "proj-header-uri",
						Usage: "URI or pathname to the output projection template header.",
					},
					&cli.StringFlag{
						Name:  "out-uri",
						Usage: "Output projection file name, no extension.",
					},
					&cli.StringFlag{
						Name:  "mask-uri",
						Usage: "Optional mask volume applied before projecting.",
					},
					&cli.StringFlag{
						Name:  "config-uri",
						Usage: "URI or pathname to a TileDB config file.",
					},
					&cli.IntSliceFlag{
						Name:  "frames",
						Usage: "Frames to project. Default is all frames.",
					},
				},
				Action: func(cCtx *cli.Context) error {
					err := run_forward(
						cCtx.String("vol-uri"),
						cCtx.String("scanner-uri"),
						cCtx.String("proj-header-uri"),
						cCtx.String("out-uri"),
						cCtx.String("mask-uri"),
						cCtx.String("config-uri"),
						cCtx.IntSlice("frames"))
					return err
				},
			},
			&cli.Command{
				Name: "backward",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "proj-uri",
						Usage: "URI or pathname to the input projection header.",
					},
					&cli.StringFlag{
						Name:  "scanner-uri",
						Usage: "URI or pathname to the scanner parameter file.",
					},
					&cli.StringFlag{
						Name:  "vol-header-uri",
						Usage: "URI or pathname to the output volume template header.",
					},
					&cli.StringFlag{
						Name:  "out-uri",
						Usage: "Output volume file name, no extension.",
					},
					&cli.StringFlag{
						Name:  "config-uri",
						Usage: "URI or pathname to a TileDB config file.",
					},
					&cli.IntFlag{
						Name:  "subsets",
						Value: 1,
						Usage: "Number of subsets; the output gets one frame per subset.",
					},
					&cli.BoolFlag{
						Name:  "rebin-weight",
						Usage: "Divide each bin by the number of collapsed ring pairs first.",
					},
				},
				Action: func(cCtx *cli.Context) error {
					err := run_backward(
						cCtx.String("proj-uri"),
						cCtx.String("scanner-uri"),
						cCtx.String("vol-header-uri"),
						cCtx.String("out-uri"),
						cCtx.String("config-uri"),
						cCtx.Int("subsets"),
						cCtx.Bool("rebin-weight"))
					return err
				},
			},
			&cli.Command{
				Name: "export",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "vol-uri",
						Usage: "URI or pathname to the volume header to export.",
					},
					&cli.StringFlag{
						Name:  "out-uri",
						Usage: "URI or pathname of the TileDB array to create.",
					},
					&cli.StringFlag{
						Name:  "config-uri",
						Usage: "URI or pathname to a TileDB config file.",
					},
				},
				Action: func(cCtx *cli.Context) error {
					err := run_export(
						cCtx.String("vol-uri"),
						cCtx.String("out-uri"),
						cCtx.String("config-uri"))
					return err
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
