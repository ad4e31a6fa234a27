package common

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aligned[T any](s []T) bool {
	return alignOffset(unsafe.Pointer(unsafe.SliceData(s))) == 0
}

func TestAlignedAllocation(t *testing.T) {
	for _, n := range []int{1, 3, 32, 63, 128, 1000} {
		b := AlignedInt8(n)
		require.Len(t, b, n)
		assert.Equal(t, n, cap(b))
		assert.True(t, aligned(b), "int8[%d]", n)

		w := AlignedInt32(n)
		require.Len(t, w, n)
		assert.True(t, aligned(w), "int32[%d]", n)
		for _, v := range w {
			require.Zero(t, v)
		}
	}
}

func TestCeilToMultiple(t *testing.T) {
	assert.Equal(t, 0, CeilToMultiple(0, 32))
	assert.Equal(t, 32, CeilToMultiple(1, 32))
	assert.Equal(t, 64, CeilToMultiple(64, 32))
	assert.Equal(t, 152768, CeilToMultiple(152724, 64))
}

func TestLittleEndianSlices(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff, 0x80})

	values := make([]int32, 2)
	require.NoError(t, ReadLittleEndianSlice(&buf, values))
	assert.Equal(t, []int32{1, -2}, values)

	b := make([]int8, 1)
	require.NoError(t, ReadLittleEndianSlice(&buf, b))
	assert.Equal(t, int8(-128), b[0])

	require.Error(t, ReadLittleEndianSlice(&buf, values))

	var out bytes.Buffer
	require.NoError(t, binary.Write(&out, binary.LittleEndian, []int32{1, -2}))
	assert.Equal(t, []byte{1, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff}, out.Bytes())
}
