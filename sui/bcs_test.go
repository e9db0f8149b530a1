package sui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULEB128(t *testing.T) {
	cases := map[uint64][]byte{
		0:       {0x00},
		127:     {0x7f},
		128:     {0x80, 0x01},
		300:     {0xac, 0x02},
		1 << 21: {0x80, 0x80, 0x80, 0x01},
	}
	for v, want := range cases {
		var e Encoder
		e.ULEB128(v)
		assert.Equal(t, want, e.Result(), "encode %d", v)

		d := NewDecoder(want)
		assert.Equal(t, v, d.ULEB128())
		require.NoError(t, d.Done())
	}
}

func TestDecoderRejectsTruncatedInput(t *testing.T) {
	d := NewDecoder([]byte{0x01, 0x02})
	d.U64()
	require.Error(t, d.Err())

	// Further reads keep the first error.
	first := d.Err()
	d.U8()
	assert.Equal(t, first, d.Err())
}

func TestDecoderRejectsTrailingBytes(t *testing.T) {
	d := NewDecoder([]byte{0x01, 0xff})
	assert.Equal(t, uint8(1), d.U8())
	assert.Error(t, d.Done())
}

func TestDecoderRejectsInvalidBool(t *testing.T) {
	d := NewDecoder([]byte{0x02})
	d.Bool()
	assert.Error(t, d.Err())
}

func TestEncoderPrimitives(t *testing.T) {
	var e Encoder
	e.U8(1)
	e.Bool(true)
	e.U16(0x0203)
	e.U64(0x0405060708090a0b)
	e.Str("hi")
	assert.Equal(t, []byte{
		0x01,
		0x01,
		0x03, 0x02,
		0x0b, 0x0a, 0x09, 0x08, 0x07, 0x06, 0x05, 0x04,
		0x02, 'h', 'i',
	}, e.Result())

	d := NewDecoder(e.Result())
	assert.Equal(t, uint8(1), d.U8())
	assert.True(t, d.Bool())
	assert.Equal(t, uint16(0x0203), d.U16())
	assert.Equal(t, uint64(0x0405060708090a0b), d.U64())
	assert.Equal(t, "hi", d.Str())
	require.NoError(t, d.Done())
}
