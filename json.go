package fir

import (
	"encoding/json"
	"errors"

	"github.com/samber/lo"
)

// VolMetadata is the JSON-serialisable description of a volume: the parsed
// header plus the derived geometry, written next to exported arrays.
type VolMetadata struct {
	Header   VolHeader
	Geometry VolGeometry
}

// Metadata builds the serialisable description of the volume.
func (v *VolData) Metadata() VolMetadata {
	return VolMetadata{Header: v.header, Geometry: v.geometry}
}

// ProjMetadata is the JSON-serialisable description of a sinogram: header,
// derived geometry and the size of each segment slice, enough to address
// bins in the flat segment-major export layout.
type ProjMetadata struct {
	Header       ProjHeader
	Geometry     ProjGeometry
	SegmentSizes []int
}

// Metadata builds the serialisable description of the sinogram.
func (p *ProjData) Metadata() ProjMetadata {
	return ProjMetadata{
		Header:   p.header,
		Geometry: p.geometry,
		SegmentSizes: lo.Map(p.segs, func(seg []BinValue, _ int) int {
			return len(seg)
		}),
	}
}

// JsonDumps constructs a JSON string of the supplied data.
func JsonDumps(data any) (string, error) {
	jsn, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return string(jsn), nil
}

// WriteMetadataJson serialises volume or projection metadata to a JSON
// file, locally or on an object store.
func WriteMetadataJson(file_uri, config_uri string, md any) (int, error) {
	stream, err := CreateDataFile(file_uri, config_uri)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	jsn, err := json.MarshalIndent(md, "", "    ")
	if err != nil {
		return 0, errors.Join(errors.New("Error serialising metadata to JSON"), err)
	}

	bytes_written, err := stream.Write(jsn)
	if err != nil {
		return 0, err
	}

	return bytes_written, nil
}
