package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

func TestCompressRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{},
		{0},
		[]byte("hi there"),
		bytes.Repeat([]byte{0}, 4096),
	}
	random := make([]byte, 10000)
	rand.New(rand.NewSource(7)).Read(random)
	payloads = append(payloads, random)

	for _, compression := range []Compression{Uncompressed, Zlib, Snappy} {
		c := New(compression)
		for _, payload := range payloads {
			compressed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("%s: compress error: %v\n", compression, err)
			}
			out, err := c.Decompress(compressed)
			if err != nil {
				t.Fatalf("%s: decompress error: %v\n", compression, err)
			}
			if !bytes.Equal(out, payload) {
				t.Errorf("%s: round trip altered %d-byte payload\n", compression, len(payload))
			}
		}
	}
}

func TestDecompressCrossFormat(t *testing.T) {
	// The format byte makes payloads self-describing, so a zlib-configured
	// codec must decode a snappy payload produced by a differently
	// configured peer.
	payload := []byte("cross-format payload")
	compressed, err := New(Snappy).Compress(payload)
	if err != nil {
		t.Fatalf("Compress error: %v\n", err)
	}
	out, err := New(Zlib).Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress error: %v\n", err)
	}
	if !bytes.Equal(out, payload) {
		t.Errorf("Cross-format round trip altered payload\n")
	}
}

func TestDecompressMalformed(t *testing.T) {
	c := New(Zlib)
	var codecErr *voxelsync.CodecError

	if _, err := c.Decompress(nil); err == nil || !errors.As(err, &codecErr) {
		t.Errorf("Empty payload should surface a CodecError, got %v\n", err)
	}
	if _, err := c.Decompress([]byte{byte(Zlib), 0xde, 0xad, 0xbe, 0xef}); err == nil || !errors.As(err, &codecErr) {
		t.Errorf("Corrupt zlib payload should surface a CodecError, got %v\n", err)
	}
	if _, err := c.Decompress([]byte{0x7f, 1, 2, 3}); err == nil || !errors.As(err, &codecErr) {
		t.Errorf("Unknown format byte should surface a CodecError, got %v\n", err)
	}
}

func TestTransportEncoding(t *testing.T) {
	payloads := [][]byte{
		{},
		{0, 1, 2, 255},
		bytes.Repeat([]byte{0xab}, 1000),
	}
	for _, payload := range payloads {
		text := EncodeForTransport(payload)
		out, err := DecodeFromTransport(text)
		if err != nil {
			t.Fatalf("Decode error: %v\n", err)
		}
		if !bytes.Equal(out, payload) {
			t.Errorf("Transport round trip altered %d-byte payload\n", len(payload))
		}
	}

	var codecErr *voxelsync.CodecError
	if _, err := DecodeFromTransport("not base64 !!!"); err == nil || !errors.As(err, &codecErr) {
		t.Errorf("Malformed base64 should surface a CodecError, got %v\n", err)
	}
}

func TestParseCompression(t *testing.T) {
	for s, want := range map[string]Compression{
		"":       Zlib,
		"zlib":   Zlib,
		"snappy": Snappy,
		"none":   Uncompressed,
	} {
		got, err := ParseCompression(s)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q): got %s, %v\n", s, got, err)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Errorf("Expected error for unsupported compression\n")
	}
}
