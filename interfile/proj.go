package interfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"

	fir "github.com/sixy6e/go-fir"
)

// ProjReader parses a projection header file and gives access to its bin
// data. Bins are stored as four byte floats, segment-major from -segOffset
// to +segOffset, view-major within a segment.
type ProjReader struct {
	dataFileName string
	configUri    string
	header       fir.ProjHeader
	geometry     fir.ProjGeometry
}

// NewProjReader parses and validates a projection header file, locally or
// on an object store.
func NewProjReader(headerFileName, config_uri string) (*ProjReader, error) {
	r := &ProjReader{configUri: config_uri}
	r.header.SetDefaults()

	kp := &KeyParser{}

	kp.AddStartKey("PROJECTION DATA PARAMETERS")

	kp.AddKey("name of data file", &r.dataFileName)

	kp.AddKey("number of rings", &r.header.NRings)
	kp.AddKey("number of crystals per ring", &r.header.NCrystalsPerRing)
	kp.AddKey("segment span", &r.header.SegmentSpan)
	kp.AddKey("number of segments", &r.header.NSegments)
	kp.AddKey("number of tangential coordinates", &r.header.NTangCoords)

	kp.AddStopKey("END OF PROJECTION DATA PARAMETERS")

	if err := kp.Parse(headerFileName, config_uri); err != nil {
		return nil, err
	}

	r.dataFileName = addPath(headerFileName, r.dataFileName)

	if err := r.header.Check(); err != nil {
		return nil, err
	}

	r.geometry.Fill(&r.header)

	return r, nil
}

// Header returns the parsed projection header.
func (r *ProjReader) Header() fir.ProjHeader {
	return r.header
}

// ReadData reads the bin payload into a freshly allocated buffer.
func (r *ProjReader) ReadData() ([]fir.BinValue, error) {
	stream, err := fir.OpenDataFile(r.dataFileName, r.configUri, false)
	if err != nil {
		return nil, errors.Join(ErrOpenFile, err)
	}
	defer stream.Close()

	if stream.Size() < uint64(r.geometry.NBins)*4 {
		return nil, errors.Join(
			ErrShortRead,
			fmt.Errorf(
				"data file holds %d bytes, expected %d bins",
				stream.Size(), r.geometry.NBins))
	}

	raw := make([]byte, r.geometry.NBins*4)
	if n, err := io.ReadFull(bufio.NewReader(stream), raw); err != nil {
		return nil, errors.Join(
			ErrShortRead,
			fmt.Errorf(
				"read %d bytes from the data file, expected %d bins",
				n, r.geometry.NBins))
	}

	bins := make([]fir.BinValue, r.geometry.NBins)
	for i := range bins {
		bins[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return bins, nil
}

// ReadProj builds a projection from a header file with the given
// construction mode: CopyData reads the bin data file, Allocate and
// Initialize only shape the projection.
func ReadProj(headerFileName, config_uri string, mode fir.ConstructionMode, initValue fir.BinValue) (*fir.ProjData, error) {
	reader, err := NewProjReader(headerFileName, config_uri)
	if err != nil {
		return nil, err
	}

	if mode != fir.CopyData {
		return fir.NewProjData(reader.Header(), mode, initValue)
	}

	bins, err := reader.ReadData()
	if err != nil {
		return nil, err
	}

	return fir.NewProjDataWithBins(reader.Header(), bins)
}

// WriteProj writes a projection as a .hs header plus .s data file pair,
// locally or on an object store.
func WriteProj(outputProjFile, config_uri string, proj *fir.ProjData) error {
	if !proj.Allocated() {
		return fir.ErrProjNotAllocated
	}

	headerFile := replaceExtension(outputProjFile, ".hs")
	dataFile := replaceExtension(outputProjFile, ".s")

	header := proj.Header()

	stream, err := fir.CreateDataFile(headerFile, config_uri)
	if err != nil {
		return errors.Join(ErrCreateFile, err)
	}
	defer stream.Close()

	w := bufio.NewWriter(stream)

	WriteKey(w, "PROJECTION DATA PARAMETERS")

	WriteKeyValue(w, "name of data file", filepath.Base(dataFile))

	WriteKeyValue(w, "number of rings", header.NRings)
	WriteKeyValue(w, "number of crystals per ring", header.NCrystalsPerRing)
	WriteKeyValue(w, "segment span", header.SegmentSpan)
	WriteKeyValue(w, "number of segments", header.NSegments)
	WriteKeyValue(w, "number of tangential coordinates", header.NTangCoords)

	WriteKey(w, "END OF PROJECTION DATA PARAMETERS")

	if err := w.Flush(); err != nil {
		return errors.Join(ErrCreateFile, err)
	}

	return writeFloat32File(dataFile, config_uri, proj.Data())
}
