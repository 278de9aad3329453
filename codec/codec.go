/*
	Package codec compresses and text-encodes raw byte payloads so they
	survive a text-frame message transport.  Compressed payloads are
	self-describing: the first byte records the compression format, so the
	decode side needs no out-of-band configuration.
*/
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// Compression is the format of compression for wire payloads.
type Compression uint8

const (
	Uncompressed Compression = 0
	Zlib         Compression = 1
	Snappy       Compression = 2
)

func (compress Compression) String() string {
	switch compress {
	case Uncompressed:
		return "No compression"
	case Zlib:
		return "Zlib compression"
	case Snappy:
		return "Go Snappy compression"
	default:
		return "Unknown compression"
	}
}

// ParseCompression converts a configuration string into a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "zlib":
		return Zlib, nil
	case "snappy":
		return Snappy, nil
	case "none", "uncompressed":
		return Uncompressed, nil
	default:
		return Uncompressed, fmt.Errorf("unknown compression format %q", s)
	}
}

// Codec compresses with a fixed format and decompresses any self-described
// payload.
type Codec struct {
	compression Compression
}

// New returns a Codec that compresses using the given format.
func New(compression Compression) Codec {
	return Codec{compression: compression}
}

// Compress returns the payload compressed per the codec's format, prefixed
// with a format byte.
func (c Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(c.compression))
	switch c.compression {
	case Uncompressed:
		buf.Write(data)
	case Zlib:
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, &voxelsync.CodecError{Op: "compress", Err: err}
		}
		if err := w.Close(); err != nil {
			return nil, &voxelsync.CodecError{Op: "compress", Err: err}
		}
	case Snappy:
		buf.Write(snappy.Encode(nil, data))
	default:
		return nil, &voxelsync.CodecError{Op: "compress",
			Err: fmt.Errorf("illegal compression format (%d)", c.compression)}
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress for any payload produced by any Codec.
// Malformed input surfaces a CodecError, never a panic.
func (c Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &voxelsync.CodecError{Op: "decompress",
			Err: fmt.Errorf("payload too short to carry format byte")}
	}
	format := Compression(data[0])
	cdata := data[1:]
	switch format {
	case Uncompressed:
		out := make([]byte, len(cdata))
		copy(out, cdata)
		return out, nil
	case Zlib:
		r, err := zlib.NewReader(bytes.NewReader(cdata))
		if err != nil {
			return nil, &voxelsync.CodecError{Op: "decompress", Err: err}
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, &voxelsync.CodecError{Op: "decompress", Err: err}
		}
		return out, nil
	case Snappy:
		out, err := snappy.Decode(nil, cdata)
		if err != nil {
			return nil, &voxelsync.CodecError{Op: "decompress", Err: err}
		}
		return out, nil
	default:
		return nil, &voxelsync.CodecError{Op: "decompress",
			Err: fmt.Errorf("illegal compression format (%d)", format)}
	}
}

// EncodeForTransport converts binary payload bytes to text safe for a
// text-frame transport.
func EncodeForTransport(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeFromTransport is the exact inverse of EncodeForTransport.
func DecodeFromTransport(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &voxelsync.CodecError{Op: "decode", Err: err}
	}
	return data, nil
}
