package fir

import (
	"bytes"
	"encoding/binary"
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

var ErrOpenDataFile = errors.New("Error Opening Data File")
var ErrCreateDataFile = errors.New("Error Creating Data File")

// Stream caters for a generic reader type so that we can handle both
// a stream of data from a file on disk or object store, as well as
// an in-memory byte stream.
// This module deals with either a *tiledb.VFSfh or *bytes.Reader,
// and all we care about are two methods, Read and Seek,
// which both implement.
type Stream interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// GenericStream handles whether we build an in-memory byte stream or leave
// it as a stream handled by *tiledb.VFSfh.
func GenericStream(stream *tiledb.VFSfh, size uint64, inmem bool) (Stream, error) {
	if inmem {
		buffer := make([]byte, size)
		err := binary.Read(stream, binary.BigEndian, &buffer)
		if err != nil {
			return nil, err
		}
		reader := bytes.NewReader(buffer)
		return reader, nil
	} else {
		return stream, nil
	}
}

// newVFS builds the config/context/vfs triple behind a file handle. An
// empty config_uri selects a generic config.
func newVFS(config_uri string) (*tiledb.Config, *tiledb.Context, *tiledb.VFS, error) {
	var (
		config *tiledb.Config
		err    error
	)

	if config_uri == "" {
		config, err = tiledb.NewConfig()
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		config, err = tiledb.LoadConfig(config_uri)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		config.Free()
		return nil, nil, nil, err
	}

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		ctx.Free()
		config.Free()
		return nil, nil, nil, err
	}

	return config, ctx, vfs, nil
}

// DataFile contains the relevant information for an opened header or raw
// data file to enable streamed IO. The location can be local or an object
// store such as s3; the TileDB VFS handles either.
type DataFile struct {
	Uri      string
	filesize uint64
	config   *tiledb.Config
	ctx      *tiledb.Context
	vfs      *tiledb.VFS
	handler  *tiledb.VFSfh
	Stream
}

// OpenDataFile opens a file for streamed reading. With in_memory set, the
// whole payload is pulled into an in-memory byte stream up front.
func OpenDataFile(file_uri, config_uri string, in_memory bool) (*DataFile, error) {
	f := &DataFile{Uri: file_uri}

	config, ctx, vfs, err := newVFS(config_uri)
	if err != nil {
		return nil, errors.Join(ErrOpenDataFile, err)
	}
	f.config = config
	f.ctx = ctx
	f.vfs = vfs

	handler, err := vfs.Open(file_uri, tiledb.TILEDB_VFS_READ)
	if err != nil {
		vfs.Free()
		ctx.Free()
		config.Free()
		return nil, errors.Join(ErrOpenDataFile, errors.New(file_uri), err)
	}
	f.handler = handler

	filesize, _ := vfs.FileSize(file_uri)
	f.filesize = filesize

	stream, err := GenericStream(handler, filesize, in_memory)
	if err != nil {
		f.Close()
		return nil, errors.Join(ErrOpenDataFile, err)
	}
	f.Stream = stream

	return f, nil
}

// CreateDataFile opens a file for writing. The vfs api auto checks for a
// file's existence and removes it if we are wanting to write.
func CreateDataFile(file_uri, config_uri string) (*DataFile, error) {
	f := &DataFile{Uri: file_uri}

	config, ctx, vfs, err := newVFS(config_uri)
	if err != nil {
		return nil, errors.Join(ErrCreateDataFile, err)
	}
	f.config = config
	f.ctx = ctx
	f.vfs = vfs

	handler, err := vfs.Open(file_uri, tiledb.TILEDB_VFS_WRITE)
	if err != nil {
		vfs.Free()
		ctx.Free()
		config.Free()
		return nil, errors.Join(ErrCreateDataFile, errors.New(file_uri), err)
	}
	f.handler = handler
	f.Stream = handler

	return f, nil
}

// Write delegates to the underlying handler. Only meaningful for files
// opened with CreateDataFile.
func (f *DataFile) Write(p []byte) (int, error) {
	return f.handler.Write(p)
}

// Size returns the size in bytes of a file opened for reading.
func (f *DataFile) Size() uint64 {
	return f.filesize
}

// Close releases the open tiledb file handler connections.
func (f *DataFile) Close() {
	f.handler.Close()
	f.vfs.Free()
	f.ctx.Free()
	f.config.Free()
}

// FileExists reports whether a file exists, locally or on an object store.
func FileExists(file_uri, config_uri string) bool {
	config, ctx, vfs, err := newVFS(config_uri)
	if err != nil {
		return false
	}
	defer config.Free()
	defer ctx.Free()
	defer vfs.Free()

	isFile, err := vfs.IsFile(file_uri)

	return err == nil && isFile
}
