package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	// EncodingZstdU16 is little-endian uint16 palette ids, zstd-compressed, base64.
	EncodingZstdU16 = "zstd+u16le"
	// EncodingRLE is base64 of (id, run length) uvarint pairs.
	EncodingRLE = "rle+uvarint"
)

var (
	chunkEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	chunkDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<20))
)

func EncodeBlocks(blocks []uint16) (string, error) {
	raw := make([]byte, 2*len(blocks))
	for i, v := range blocks {
		binary.LittleEndian.PutUint16(raw[2*i:], v)
	}
	return base64.StdEncoding.EncodeToString(chunkEncoder.EncodeAll(raw, nil)), nil
}

// DecodeBlocks reverses EncodeBlocks and checks the id count.
func DecodeBlocks(data string, want int) ([]uint16, error) {
	comp, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	raw, err := chunkDecoder.DecodeAll(comp, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if len(raw) != 2*want {
		return nil, fmt.Errorf("%w: got %d bytes want %d", ErrEncoding, len(raw), 2*want)
	}
	out := make([]uint16, want)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return out, nil
}

func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(ids); {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. Runs must add up to exactly want ids.
func DecodeRLE(data string, want int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	out := make([]uint16, 0, want)
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad varint at %d", ErrEncoding, i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad varint at %d", ErrEncoding, i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("%w: block id too large: %d", ErrEncoding, b)
		}
		if run == 0 || run > uint64(want-len(out)) {
			return nil, fmt.Errorf("%w: run of %d overflows the section", ErrEncoding, run)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: got %d ids want %d", ErrEncoding, len(out), want)
	}
	return out, nil
}
