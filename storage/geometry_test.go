package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeometry(t *testing.T) {
	tests := []struct {
		name       string
		size       uint32
		sectorSize uint32
		wantErr    bool
	}{
		{name: "power of two dividing size", size: 8192, sectorSize: 1024},
		{name: "single sector", size: 1024, sectorSize: 1024},
		{name: "sector size not a power of two", size: 8192, sectorSize: 1000, wantErr: true},
		{name: "sector size does not divide size", size: 8000, sectorSize: 1024, wantErr: true},
		{name: "zero sector size", size: 8192, sectorSize: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGeometry(tt.size, tt.sectorSize)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadGeometry)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, g.Size())
			assert.Equal(t, tt.sectorSize, g.SectorSize())
			assert.Equal(t, tt.size/tt.sectorSize, g.SectorCount())
		})
	}
}

func TestGeometryAddressHelpers(t *testing.T) {
	g, err := NewGeometry(8192, 1024)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), g.SectorAddress(0))
	assert.Equal(t, uint32(0), g.SectorAddress(1023))
	assert.Equal(t, uint32(1024), g.SectorAddress(1024))
	assert.Equal(t, uint32(1024), g.SectorAddress(2000))

	assert.True(t, g.IsSameSector(0, 1023))
	assert.False(t, g.IsSameSector(0, 1024))

	assert.Equal(t, uint32(1024), g.SectorRemaining(0))
	assert.Equal(t, uint32(1), g.SectorRemaining(1023))
	assert.Equal(t, uint32(1024), g.SectorRemaining(1024))

	assert.True(t, g.InRange(0, 8192))
	assert.False(t, g.InRange(0, 8193))
	assert.False(t, g.InRange(8192, 1))
	assert.True(t, g.InRange(8192, 0))
}

func TestGeometrySectorSizeBits(t *testing.T) {
	g, err := NewGeometry(8192, 1024)
	require.NoError(t, err)
	assert.Equal(t, uint(10), g.SectorSizeBits())
	assert.Equal(t, uint32(1024), uint32(1)<<g.SectorSizeBits())
}
