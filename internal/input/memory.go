package input

import (
	"bytes"
	"context"
)

// Memory is a compose over an in-memory byte slice. Mainly useful for cached
// audio and tests.
type Memory struct {
	Data []byte
	Hint Hint
	Meta *Metadata
}

// NewMemory creates a compose over data with a format hint extension.
func NewMemory(data []byte, extension string) *Memory {
	return &Memory{Data: data, Hint: Hint{Extension: extension}}
}

func (m *Memory) Create() (*AudioStream, error) {
	return &AudioStream{
		Source: NewReaderSource(bytes.NewReader(m.Data)),
		Hint:   m.Hint,
	}, nil
}

func (m *Memory) CreateAsync(context.Context) (*AudioStream, error) {
	return m.Create()
}

func (m *Memory) ShouldCreateAsync() bool { return false }

func (m *Memory) AuxMetadata() (*Metadata, error) {
	if m.Meta == nil {
		return nil, ErrNoMetadata
	}
	return m.Meta, nil
}
