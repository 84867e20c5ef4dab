package input

import (
	"context"
	"os"
	"path/filepath"
)

// File is a lazy compose over a local path. Creation is cheap but touches the
// filesystem, so it runs on a blocking worker.
type File struct {
	Path string
}

// NewFile creates a file compose.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Create() (*AudioStream, error) {
	handle, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	return &AudioStream{
		Source: NewReaderSource(handle),
		Hint:   Hint{Extension: filepath.Ext(f.Path)},
	}, nil
}

func (f *File) CreateAsync(context.Context) (*AudioStream, error) {
	return f.Create()
}

func (f *File) ShouldCreateAsync() bool { return false }

func (f *File) AuxMetadata() (*Metadata, error) {
	return nil, ErrNoMetadata
}
