package interfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"
	"strings"

	fir "github.com/sixy6e/go-fir"
)

// Number format names recognized by the volume header.
const (
	shortFloat      = "SHORT FLOAT"
	longFloat       = "LONG FLOAT"
	plainFloat      = "FLOAT"
	unsignedInteger = "UNSIGNED INTEGER"
	signedInteger   = "SIGNED INTEGER"

	littleEndianName = "LITTLEENDIAN"
	bigEndianName    = "BIGENDIAN"
)

type dataType int

const (
	dataTypeNone dataType = iota
	dataTypeFloat
	dataTypeUnsignedInteger
	dataTypeSignedInteger
)

// VolReaderParams are the data-file parameters of a volume header.
type VolReaderParams struct {
	DataFileName  string
	DataOffset    int
	DataTypeStr   string
	BytesPerPixel int
	ByteOrderStr  string

	dtype dataType
	order binary.ByteOrder
}

// SetDefaults fills the parameters with default values.
func (p *VolReaderParams) SetDefaults() {
	p.DataFileName = ""
	p.DataOffset = 0
	p.DataTypeStr = ""
	p.BytesPerPixel = 0
	p.ByteOrderStr = ""
}

// Check validates the parameters, substituting per-type defaults for
// invalid pixel sizes and the little-endian default for an omitted byte
// order.
func (p *VolReaderParams) Check() error {
	if p.DataOffset < 0 {
		return errors.Join(ErrParse, errors.New("data offset must not be negative"))
	}

	p.DataTypeStr = strings.ToUpper(p.DataTypeStr)
	p.ByteOrderStr = strings.ToUpper(p.ByteOrderStr)

	fallback := 0
	switch p.DataTypeStr {
	case shortFloat:
		p.dtype = dataTypeFloat
		if p.BytesPerPixel != 4 {
			fallback = 4
		}
	case longFloat:
		p.dtype = dataTypeFloat
		if p.BytesPerPixel != 8 {
			fallback = 8
		}
	case plainFloat:
		p.dtype = dataTypeFloat
		if p.BytesPerPixel != 4 && p.BytesPerPixel != 8 {
			fallback = 4
		}
	case unsignedInteger:
		p.dtype = dataTypeUnsignedInteger
		if !validIntWidth(p.BytesPerPixel) {
			fallback = 4
		}
	case signedInteger:
		p.dtype = dataTypeSignedInteger
		if !validIntWidth(p.BytesPerPixel) {
			fallback = 4
		}
	default:
		return errors.Join(ErrDataType, fmt.Errorf("number format %q", p.DataTypeStr))
	}

	if fallback != 0 {
		p.BytesPerPixel = fallback
		log.Println("WARNING: invalid value for bytes per pixel; using default for datatype",
			p.DataTypeStr, "which is", p.BytesPerPixel)
	}

	switch p.ByteOrderStr {
	case bigEndianName:
		p.order = binary.BigEndian
	case littleEndianName:
		p.order = binary.LittleEndian
	case "":
		p.ByteOrderStr = littleEndianName
		p.order = binary.LittleEndian
	default:
		return errors.Join(ErrByteOrder, fmt.Errorf("imagedata byte order %q", p.ByteOrderStr))
	}

	return nil
}

func validIntWidth(n int) bool {
	return n == 1 || n == 2 || n == 4 || n == 8
}

// VolReader parses a volume header file and gives access to its voxel
// data.
type VolReader struct {
	params    VolReaderParams
	configUri string
	header    fir.VolHeader
	geometry  fir.VolGeometry
}

// NewVolReader parses and validates a volume header file, locally or on an
// object store.
func NewVolReader(headerFileName, config_uri string) (*VolReader, error) {
	r := &VolReader{configUri: config_uri}
	r.params.SetDefaults()
	r.header.SetDefaults()

	kp := &KeyParser{}

	kp.AddStartKey("!INTERFILE")

	kp.AddKey("name of data file", &r.params.DataFileName)
	kp.AddKey("data offset in bytes", &r.params.DataOffset)
	kp.AddKey("number format", &r.params.DataTypeStr)
	kp.AddKey("number of bytes per pixel", &r.params.BytesPerPixel)
	kp.AddKey("imagedata byte order", &r.params.ByteOrderStr)

	// Volume size; the number of slices is the third dimension
	kp.AddKey("matrix size [1]", &r.header.VolSize.NPixelsX)
	kp.AddKey("matrix size [2]", &r.header.VolSize.NPixelsY)
	kp.AddKey("number of slices", &r.header.VolSize.NSlices)

	kp.AddKey("scaling factor (mm/pixel) [1]", &r.header.VoxelExtent.PixelWidth)
	kp.AddKey("scaling factor (mm/pixel) [2]", &r.header.VoxelExtent.PixelHeight)
	kp.AddKey("slice thickness (pixels)", &r.header.VoxelExtent.SliceThickness)

	kp.AddKey("first pixel offset (mm) [1]", &r.header.VolOffset.X)
	kp.AddKey("first pixel offset (mm) [2]", &r.header.VolOffset.Y)
	kp.AddKey("first pixel offset (mm) [3]", &r.header.VolOffset.Z)

	kp.AddKey("number of time frames", &r.header.NFrames)

	kp.AddStopKey("!END OF INTERFILE")

	if err := kp.Parse(headerFileName, config_uri); err != nil {
		return nil, err
	}

	// If the data file path is relative, resolve it against the header
	r.params.DataFileName = addPath(headerFileName, r.params.DataFileName)

	if r.params.DataFileName != "" {
		if err := r.params.Check(); err != nil {
			return nil, err
		}
	}

	if err := r.header.Check(); err != nil {
		return nil, err
	}

	r.geometry.Fill(&r.header)

	return r, nil
}

// Header returns the parsed volume header.
func (r *VolReader) Header() fir.VolHeader {
	return r.header
}

// HasDataFile reports whether the header names a data file.
func (r *VolReader) HasDataFile() bool {
	return r.params.DataFileName != ""
}

// ReadData reads the voxel payload into a freshly allocated buffer,
// converting from the file's number format and byte order.
func (r *VolReader) ReadData() ([]fir.VoxelValue, error) {
	stream, err := fir.OpenDataFile(r.params.DataFileName, r.configUri, false)
	if err != nil {
		return nil, errors.Join(ErrOpenFile, err)
	}
	defer stream.Close()

	expected := uint64(r.params.DataOffset) +
		uint64(r.geometry.NVoxelsTotal)*uint64(r.params.BytesPerPixel)
	if stream.Size() < expected {
		return nil, errors.Join(
			ErrShortRead,
			fmt.Errorf(
				"data file holds %d bytes, expected %d for %d voxels",
				stream.Size(), expected, r.geometry.NVoxelsTotal))
	}

	if _, err := stream.Seek(int64(r.params.DataOffset), io.SeekStart); err != nil {
		return nil, errors.Join(ErrShortRead, err)
	}

	voxels := make([]fir.VoxelValue, r.geometry.NVoxelsTotal)

	buffered := bufio.NewReader(stream)

	// Frame by frame to bound the raw buffer size
	raw := make([]byte, r.geometry.NVoxelsPerFrame*r.params.BytesPerPixel)
	for frame := 0; frame < r.header.NFrames; frame++ {
		n, err := io.ReadFull(buffered, raw)
		if err != nil {
			return nil, errors.Join(
				ErrShortRead,
				fmt.Errorf(
					"read %d bytes of frame %d, expected %d (%d voxels in total)",
					n, frame, len(raw), r.geometry.NVoxelsTotal))
		}

		out := voxels[frame*r.geometry.NVoxelsPerFrame : (frame+1)*r.geometry.NVoxelsPerFrame]
		decodeVoxels(raw, out, r.params.dtype, r.params.BytesPerPixel, r.params.order)
	}

	return voxels, nil
}

// ReadVol builds a volume from a header file with the given construction
// mode: Allocate and Initialize ignore any data file, CopyData requires
// one, CopyDataIfAllocated reads it when present and initializes
// otherwise.
func ReadVol(headerFileName, config_uri string, mode fir.ConstructionMode, initValue fir.VoxelValue) (*fir.VolData, error) {
	reader, err := NewVolReader(headerFileName, config_uri)
	if err != nil {
		return nil, err
	}

	readData := mode == fir.CopyData ||
		(mode == fir.CopyDataIfAllocated && reader.HasDataFile())

	if !readData {
		return fir.NewVolData(reader.Header(), constructionModeNoData(mode), initValue)
	}

	voxels, err := reader.ReadData()
	if err != nil {
		return nil, err
	}

	return fir.NewVolDataWithVoxels(reader.Header(), voxels)
}

func constructionModeNoData(mode fir.ConstructionMode) fir.ConstructionMode {
	if mode == fir.Allocate {
		return fir.Allocate
	}
	return fir.Initialize
}

func decodeVoxels(raw []byte, out []fir.VoxelValue, dtype dataType, width int, order binary.ByteOrder) {
	switch dtype {
	case dataTypeFloat:
		switch width {
		case 4:
			for i := range out {
				out[i] = math.Float32frombits(order.Uint32(raw[i*4:]))
			}
		case 8:
			for i := range out {
				out[i] = fir.VoxelValue(math.Float64frombits(order.Uint64(raw[i*8:])))
			}
		}

	case dataTypeUnsignedInteger:
		switch width {
		case 1:
			for i := range out {
				out[i] = fir.VoxelValue(raw[i])
			}
		case 2:
			for i := range out {
				out[i] = fir.VoxelValue(order.Uint16(raw[i*2:]))
			}
		case 4:
			for i := range out {
				out[i] = fir.VoxelValue(order.Uint32(raw[i*4:]))
			}
		case 8:
			for i := range out {
				out[i] = fir.VoxelValue(order.Uint64(raw[i*8:]))
			}
		}

	case dataTypeSignedInteger:
		switch width {
		case 1:
			for i := range out {
				out[i] = fir.VoxelValue(int8(raw[i]))
			}
		case 2:
			for i := range out {
				out[i] = fir.VoxelValue(int16(order.Uint16(raw[i*2:])))
			}
		case 4:
			for i := range out {
				out[i] = fir.VoxelValue(int32(order.Uint32(raw[i*4:])))
			}
		case 8:
			for i := range out {
				out[i] = fir.VoxelValue(int64(order.Uint64(raw[i*8:])))
			}
		}
	}
}

// WriteVol writes a volume as a .h33 header plus .i33 data file pair,
// locally or on an object store. The data is written as little-endian
// four byte floats.
func WriteVol(outputVolFile, config_uri string, vol *fir.VolData) error {
	if !vol.Allocated() {
		return fir.ErrVolNotAllocated
	}

	headerFile := replaceExtension(outputVolFile, ".h33")
	dataFile := replaceExtension(outputVolFile, ".i33")

	header := vol.Header()

	stream, err := fir.CreateDataFile(headerFile, config_uri)
	if err != nil {
		return errors.Join(ErrCreateFile, err)
	}
	defer stream.Close()

	w := bufio.NewWriter(stream)

	WriteKey(w, "!INTERFILE")

	fmt.Fprintln(w)
	WriteKeyValue(w, "name of data file", filepath.Base(dataFile))
	WriteKeyValue(w, "data offset in bytes", 0)
	WriteKeyValue(w, "number format", plainFloat)
	WriteKeyValue(w, "number of bytes per pixel", 4)
	WriteKeyValue(w, "imagedata byte order", littleEndianName)

	fmt.Fprintln(w)
	WriteKeyValue(w, "number of dimensions", 3)

	fmt.Fprintln(w)
	WriteKeyValue(w, "matrix size [1]", header.VolSize.NPixelsX)
	WriteKeyValue(w, "matrix size [2]", header.VolSize.NPixelsY)
	WriteKeyValue(w, "matrix size [3]", header.VolSize.NSlices)
	WriteKeyValue(w, "number of slices", header.VolSize.NSlices)

	fmt.Fprintln(w)
	WriteKeyValue(w, "scaling factor (mm/pixel) [1]", header.VoxelExtent.PixelWidth)
	WriteKeyValue(w, "scaling factor (mm/pixel) [2]", header.VoxelExtent.PixelHeight)
	WriteKeyValue(w, "scaling factor (mm/pixel) [3]", header.VoxelExtent.SliceThickness)
	WriteKeyValue(w, "slice thickness (pixels)", header.VoxelExtent.SliceThickness)

	fmt.Fprintln(w)
	WriteKeyValue(w, "first pixel offset (mm) [1]", header.VolOffset.X)
	WriteKeyValue(w, "first pixel offset (mm) [2]", header.VolOffset.Y)
	WriteKeyValue(w, "first pixel offset (mm) [3]", header.VolOffset.Z)

	fmt.Fprintln(w)
	WriteKeyValue(w, "number of time frames", header.NFrames)

	fmt.Fprintln(w)
	WriteKey(w, "!END OF INTERFILE")

	if err := w.Flush(); err != nil {
		return errors.Join(ErrCreateFile, err)
	}

	return writeFloat32File(dataFile, config_uri, vol.Data())
}

func writeFloat32File(file_uri, config_uri string, values []float32) error {
	stream, err := fir.CreateDataFile(file_uri, config_uri)
	if err != nil {
		return errors.Join(ErrCreateFile, err)
	}
	defer stream.Close()

	w := bufio.NewWriter(stream)

	var scratch [4]byte
	for _, value := range values {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(value))
		if _, err := w.Write(scratch[:]); err != nil {
			return errors.Join(ErrCreateFile, err)
		}
	}

	return w.Flush()
}

// addPath prepends the directory of headerFile to dataFile when the latter
// is relative. Full URIs (anything carrying a scheme) pass through.
func addPath(headerFile, dataFile string) string {
	if dataFile == "" || filepath.IsAbs(dataFile) || strings.Contains(dataFile, "://") {
		return dataFile
	}

	return filepath.Join(filepath.Dir(headerFile), dataFile)
}

func replaceExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
