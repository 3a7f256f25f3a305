package fir

import (
	"errors"
	"reflect"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/samber/lo"
	stgpsr "github.com/yuin/stagparser"
)

// volumeArray describes the TileDB serialisation of a volume. The tags
// drive attribute creation; dimension fields carry ftype=dim and are
// skipped by schemaAttrs.
type volumeArray struct {
	Voxels []float32 `tiledb:"dtype=float32,ftype=attr" filters:"bysh,zstd(level=16)"`
}

// projArray describes the TileDB serialisation of a sinogram as a flat run
// of bins in segment-major order; the segment layout goes into the array
// metadata.
type projArray struct {
	Bins []float32 `tiledb:"dtype=float32,ftype=attr" filters:"bysh,zstd(level=16)"`
}

// ArrayOpen is a helper func for opening a tiledb array.
func ArrayOpen(ctx *tiledb.Context, uri string, mode tiledb.QueryType) (*tiledb.Array, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, err
	}

	err = array.Open(mode)
	if err != nil {
		array.Free()
		return nil, err
	}

	return array, nil
}

// AddFilters sequentially appends compression filters to the filter
// pipeline list.
func AddFilters(filter_list *tiledb.FilterList, filter ...*tiledb.Filter) error {
	for _, filt := range filter {
		err := filter_list.AddFilter(filt)
		if err != nil {
			return err
		}
	}

	return nil
}

// ZstdFilter initialises the Zstandard compression filter and sets the
// compression level.
func ZstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return nil, err
	}

	err = filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level)
	if err != nil {
		filt.Free()
		return nil, err
	}

	return filt, nil
}

// AttachFilters acts as a helper for when setting the same pipeline filter
// list to a bunch of attributes.
func AttachFilters(filter_list *tiledb.FilterList, attrs ...*tiledb.Attribute) error {
	for _, attr := range attrs {
		err := attr.SetFilterList(filter_list)
		if err != nil {
			return err
		}
	}

	return nil
}

// CreateAttr creates a tiledb attribute along with the compression filter
// pipeline. The configuration is specified by the tags attached to the
// struct type.
// Tags for tiledb include dtype and ftype, where dtype is the datatype and
// ftype is the fieldtype (dim or attr); dim fields are skipped upstream.
// Supported datatype values are uint16, int32, float32 and float64.
// Tags for filters include zstd(level=16), bysh and bish, set in the order
// they appear in the tag.
func CreateAttr(
	field_name string,
	filter_defs []stgpsr.Definition,
	tiledb_defs map[string]stgpsr.Definition,
	schema *tiledb.ArraySchema,
	ctx *tiledb.Context,
) error {

	def, status := tiledb_defs["dtype"]
	if !status {
		return errors.Join(ErrCreateAttrTdb, errors.New("dtype tag not found"))
	}
	dtype, _ := def.Attribute("dtype")

	var tdb_dtype tiledb.Datatype
	switch dtype {
	case "uint16":
		tdb_dtype = tiledb.TILEDB_UINT16
	case "int32":
		tdb_dtype = tiledb.TILEDB_INT32
	case "float32":
		tdb_dtype = tiledb.TILEDB_FLOAT32
	case "float64":
		tdb_dtype = tiledb.TILEDB_FLOAT64
	default:
		return errors.Join(ErrCreateAttrTdb, errors.New("unsupported dtype "+field_name))
	}

	attr_filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateAttrTdb, err)
	}
	defer attr_filts.Free()

	for _, filter := range filter_defs {
		switch filter.Name() {
		case "zstd":
			level, status := filter.Attribute("level")
			if !status {
				return errors.Join(ErrCreateAttrTdb, errors.New("zstd level not defined"))
			}
			filt, err := ZstdFilter(ctx, int32(level.(int64)))
			if err != nil {
				return errors.Join(ErrCreateAttrTdb, err)
			}
			defer filt.Free()
			err = attr_filts.AddFilter(filt)
			if err != nil {
				return errors.Join(ErrCreateAttrTdb, err)
			}
		case "bysh":
			filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BYTESHUFFLE)
			if err != nil {
				return errors.Join(ErrCreateAttrTdb, err)
			}
			defer filt.Free()
			err = attr_filts.AddFilter(filt)
			if err != nil {
				return errors.Join(ErrCreateAttrTdb, err)
			}
		case "bish":
			filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BITSHUFFLE)
			if err != nil {
				return errors.Join(ErrCreateAttrTdb, err)
			}
			defer filt.Free()
			err = attr_filts.AddFilter(filt)
			if err != nil {
				return errors.Join(ErrCreateAttrTdb, err)
			}
		}
	}

	attr, err := tiledb.NewAttribute(ctx, field_name, tdb_dtype)
	if err != nil {
		return errors.Join(ErrCreateAttrTdb, err)
	}
	defer attr.Free()

	err = AttachFilters(attr_filts, attr)
	if err != nil {
		return errors.Join(ErrCreateAttrTdb, err)
	}

	err = schema.AddAttributes(attr)
	if err != nil {
		return errors.Join(ErrCreateAttrTdb, err)
	}

	return nil
}

// schemaAttrs adds every exported attr field of a descriptor struct to the
// schema, driven by the struct tags.
func schemaAttrs(t any, schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	values := reflect.ValueOf(t).Elem()
	types := values.Type()
	filt_defs, _ := stgpsr.ParseStruct(t, "filters")
	tdb_defs, _ := stgpsr.ParseStruct(t, "tiledb")

	for i := 0; i < values.NumField(); i++ {
		if !types.Field(i).IsExported() {
			continue
		}
		name := types.Field(i).Name

		field_filt_defs := filt_defs[name]

		field_tdb_defs := make(map[string]stgpsr.Definition)
		for _, v := range tdb_defs[name] {
			field_tdb_defs[v.Name()] = v
		}

		def, status := field_tdb_defs["ftype"]
		if !status {
			return errors.Join(ErrCreateAttrTdb, errors.New("ftype tag not found"))
		}
		ftype, _ := def.Attribute("ftype")
		if ftype == "dim" {
			continue
		}

		err := CreateAttr(name, field_filt_defs, field_tdb_defs, schema, ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteArrayMetadata is a helper for attaching/writing metadata to a TileDB
// array. The metadata is converted to JSON before writing.
func WriteArrayMetadata(ctx *tiledb.Context, array_uri, key string, md any) error {
	array, err := ArrayOpen(ctx, array_uri, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(err, errors.New("Error opening (w) TileDB array: "+array_uri))
	}
	defer array.Free()
	defer array.Close()

	jsn, err := JsonDumps(md)
	if err != nil {
		return errors.Join(err, errors.New("Error serialising metadata to JSON"))
	}

	err = array.PutMetadata(key, jsn)
	if err != nil {
		return errors.Join(err, errors.New("Error writing metadata to array: "+array_uri))
	}

	return nil
}

// denseRowMajorSchema builds a dense row-major schema over the provided
// dimensions, with dimension filters of positive-delta plus zstandard.
func denseRowMajorSchema(
	ctx *tiledb.Context,
	descriptor any,
	dim_names []string,
	dim_sizes []uint64,
	tile_sizes []uint64,
) (*tiledb.ArraySchema, error) {

	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, err
	}
	defer domain.Free()

	// ascending dimensions compress well with delta plus zstandard
	dim_filters, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, err
	}
	defer dim_filters.Free()

	dim_f1, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
	if err != nil {
		return nil, err
	}
	defer dim_f1.Free()

	dim_f2, err := ZstdFilter(ctx, int32(16))
	if err != nil {
		return nil, err
	}
	defer dim_f2.Free()

	err = AddFilters(dim_filters, dim_f1, dim_f2)
	if err != nil {
		return nil, err
	}

	for i, name := range dim_names {
		dim, err := tiledb.NewDimension(
			ctx, name, tiledb.TILEDB_UINT64,
			[]uint64{0, dim_sizes[i] - 1}, tile_sizes[i])
		if err != nil {
			return nil, err
		}
		defer dim.Free()

		err = dim.SetFilterList(dim_filters)
		if err != nil {
			return nil, err
		}

		err = domain.AddDimensions(dim)
		if err != nil {
			return nil, err
		}
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, err
	}

	err = schema.SetDomain(domain)
	if err != nil {
		schema.Free()
		return nil, err
	}

	err = schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR)
	if err != nil {
		schema.Free()
		return nil, err
	}

	err = schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR)
	if err != nil {
		schema.Free()
		return nil, err
	}

	err = schemaAttrs(descriptor, schema, ctx)
	if err != nil {
		schema.Free()
		return nil, err
	}

	return schema, nil
}

// ToTileDB serialises the volume as a dense TileDB array with dimensions
// (Frame, Z, Y, X) and the volume metadata attached as JSON.
func (v *VolData) ToTileDB(file_uri string, ctx *tiledb.Context) error {
	if !v.Allocated() {
		return ErrVolNotAllocated
	}

	volSize := v.header.VolSize

	dim_names := []string{"Frame", "Z", "Y", "X"}
	dim_sizes := []uint64{
		uint64(v.header.NFrames),
		uint64(volSize.NSlices),
		uint64(volSize.NPixelsY),
		uint64(volSize.NPixelsX),
	}

	// one tile per slice row block; frames and slices tile singly
	tile_sizes := []uint64{1, 1, dim_sizes[2], dim_sizes[3]}

	schema, err := denseRowMajorSchema(
		ctx, &volumeArray{}, dim_names, dim_sizes, tile_sizes)
	if err != nil {
		return errors.Join(ErrCreateVolTdb, err)
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, file_uri)
	if err != nil {
		return errors.Join(ErrCreateVolTdb, err)
	}
	defer array.Free()

	err = array.Create(schema)
	if err != nil {
		return errors.Join(ErrCreateVolTdb, err)
	}

	err = array.Open(tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(ErrWriteVolTdb, err)
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWriteVolTdb, err)
	}
	defer query.Free()

	err = query.SetLayout(tiledb.TILEDB_ROW_MAJOR)
	if err != nil {
		return errors.Join(ErrWriteVolTdb, err)
	}

	// frames are contiguous and x-fastest, which is exactly the row-major
	// cell order of the (Frame, Z, Y, X) domain
	serial := volumeArray{Voxels: lo.Flatten(v.frames)}
	_, err = query.SetDataBuffer("Voxels", serial.Voxels)
	if err != nil {
		return errors.Join(ErrWriteVolTdb, err)
	}

	err = query.Submit()
	if err != nil {
		return errors.Join(ErrWriteVolTdb, err)
	}

	err = query.Finalize()
	if err != nil {
		return errors.Join(ErrWriteVolTdb, err)
	}

	return WriteArrayMetadata(ctx, file_uri, "Volume-Header", v.Metadata())
}

// ToTileDB serialises the sinogram as a dense 1-D TileDB array of bins in
// segment-major order, with the header, derived geometry and per-segment
// sizes attached as JSON metadata.
func (p *ProjData) ToTileDB(file_uri string, ctx *tiledb.Context) error {
	if !p.Allocated() {
		return ErrProjNotAllocated
	}

	nBins := uint64(p.geometry.NBins)

	tile_sz := uint64(p.geometry.NViews * p.header.NTangCoords)
	if tile_sz > nBins {
		tile_sz = nBins
	}

	schema, err := denseRowMajorSchema(
		ctx, &projArray{}, []string{"Bin"}, []uint64{nBins}, []uint64{tile_sz})
	if err != nil {
		return errors.Join(ErrCreateProjTdb, err)
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, file_uri)
	if err != nil {
		return errors.Join(ErrCreateProjTdb, err)
	}
	defer array.Free()

	err = array.Create(schema)
	if err != nil {
		return errors.Join(ErrCreateProjTdb, err)
	}

	err = array.Open(tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(ErrWriteProjTdb, err)
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWriteProjTdb, err)
	}
	defer query.Free()

	err = query.SetLayout(tiledb.TILEDB_ROW_MAJOR)
	if err != nil {
		return errors.Join(ErrWriteProjTdb, err)
	}

	serial := projArray{Bins: p.data}
	_, err = query.SetDataBuffer("Bins", serial.Bins)
	if err != nil {
		return errors.Join(ErrWriteProjTdb, err)
	}

	err = query.Submit()
	if err != nil {
		return errors.Join(ErrWriteProjTdb, err)
	}

	err = query.Finalize()
	if err != nil {
		return errors.Join(ErrWriteProjTdb, err)
	}

	return WriteArrayMetadata(ctx, file_uri, "Projection-Layout", p.Metadata())
}
