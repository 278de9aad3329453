package message

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/janelia-flyem/voxelsync/codec"
	"github.com/janelia-flyem/voxelsync/volume"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// DeltaData is the data field of a delta message.  Indices travel as
// little-endian uint16 (z, y, x) triples, values as little-endian elements
// of the declared dataType; both are compressed then base64-encoded.
type DeltaData struct {
	Indices    string     `json:"indices"`
	Values     string     `json:"values"`
	NumChanges int        `json:"numChanges"`
	Dimensions [3]int32   `json:"dimensions"`
	Spacing    [3]float64 `json:"spacing"`
	Origin     [3]float64 `json:"origin"`
	DataType   string     `json:"dataType"`
}

// SnapshotData is the data field of a full_snapshot message.  The segments
// table is optional; receivers merge rather than replace their own.
type SnapshotData struct {
	ImageData  string            `json:"imageData"`
	Dimensions [3]int32          `json:"dimensions"`
	Spacing    [3]float64        `json:"spacing"`
	Origin     [3]float64        `json:"origin"`
	DataType   string            `json:"dataType"`
	Segments   map[string]string `json:"segments,omitempty"`
}

// MaxDeltaDim is the largest per-axis dimension encodable in the uint16
// index wire format.  Larger volumes fall back to full snapshots.
const MaxDeltaDim = math.MaxUint16

// labelTypeBytes maps a wire dataType tag to its element size.
var labelTypeBytes = map[string]int{
	"uint8":  1,
	"uint16": 2,
	"uint32": 4,
	"uint64": 8,
}

// labelTypeFor returns the smallest unsigned wire type holding maxLabel.
func labelTypeFor(maxLabel uint64) string {
	switch {
	case maxLabel <= math.MaxUint8:
		return "uint8"
	case maxLabel <= math.MaxUint16:
		return "uint16"
	case maxLabel <= math.MaxUint32:
		return "uint32"
	default:
		return "uint64"
	}
}

func encodeLabels(labels []uint64, dataType string) []byte {
	width := labelTypeBytes[dataType]
	out := make([]byte, len(labels)*width)
	for i, label := range labels {
		off := i * width
		switch width {
		case 1:
			out[off] = byte(label)
		case 2:
			binary.LittleEndian.PutUint16(out[off:], uint16(label))
		case 4:
			binary.LittleEndian.PutUint32(out[off:], uint32(label))
		case 8:
			binary.LittleEndian.PutUint64(out[off:], label)
		}
	}
	return out
}

func decodeLabels(raw []byte, dataType string) ([]uint64, error) {
	width, found := labelTypeBytes[dataType]
	if !found {
		return nil, &voxelsync.ProtocolError{Reason: fmt.Sprintf("unsupported dataType %q", dataType)}
	}
	if len(raw)%width != 0 {
		return nil, &voxelsync.ProtocolError{
			Reason: fmt.Sprintf("%d payload bytes not divisible by %s element size", len(raw), dataType)}
	}
	labels := make([]uint64, len(raw)/width)
	for i := range labels {
		off := i * width
		switch width {
		case 1:
			labels[i] = uint64(raw[off])
		case 2:
			labels[i] = uint64(binary.LittleEndian.Uint16(raw[off:]))
		case 4:
			labels[i] = uint64(binary.LittleEndian.Uint32(raw[off:]))
		case 8:
			labels[i] = binary.LittleEndian.Uint64(raw[off:])
		}
	}
	return labels, nil
}

func maxOf(values []uint64) uint64 {
	var max uint64
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}

// EncodeDelta converts a delta plus its owning buffer's geometry metadata
// into wire form.
func EncodeDelta(d *volume.Delta, spacing, origin [3]float64, c codec.Codec) (*DeltaData, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	for dim := uint8(0); dim < 3; dim++ {
		if d.SourceDims[dim] > MaxDeltaDim {
			return nil, fmt.Errorf("dimension %d of %s exceeds delta wire format limit %d",
				dim, d.SourceDims, MaxDeltaDim)
		}
	}

	idxRaw := make([]byte, len(d.Indices)*6)
	for i, pt := range d.Indices {
		off := i * 6
		binary.LittleEndian.PutUint16(idxRaw[off:], uint16(pt[0]))
		binary.LittleEndian.PutUint16(idxRaw[off+2:], uint16(pt[1]))
		binary.LittleEndian.PutUint16(idxRaw[off+4:], uint16(pt[2]))
	}
	idxCompressed, err := c.Compress(idxRaw)
	if err != nil {
		return nil, err
	}

	dataType := labelTypeFor(maxOf(d.Values))
	valCompressed, err := c.Compress(encodeLabels(d.Values, dataType))
	if err != nil {
		return nil, err
	}

	return &DeltaData{
		Indices:    codec.EncodeForTransport(idxCompressed),
		Values:     codec.EncodeForTransport(valCompressed),
		NumChanges: len(d.Indices),
		Dimensions: d.SourceDims,
		Spacing:    spacing,
		Origin:     origin,
		DataType:   dataType,
	}, nil
}

// DecodeDelta reverses EncodeDelta.
func DecodeDelta(data *DeltaData, c codec.Codec) (*volume.Delta, error) {
	idxCompressed, err := codec.DecodeFromTransport(data.Indices)
	if err != nil {
		return nil, err
	}
	idxRaw, err := c.Decompress(idxCompressed)
	if err != nil {
		return nil, err
	}
	if len(idxRaw)%6 != 0 {
		return nil, &voxelsync.ProtocolError{
			Reason: fmt.Sprintf("%d index bytes not divisible by triple size", len(idxRaw))}
	}

	valCompressed, err := codec.DecodeFromTransport(data.Values)
	if err != nil {
		return nil, err
	}
	valRaw, err := c.Decompress(valCompressed)
	if err != nil {
		return nil, err
	}
	values, err := decodeLabels(valRaw, data.DataType)
	if err != nil {
		return nil, err
	}

	numIndices := len(idxRaw) / 6
	if numIndices != len(values) {
		return nil, &voxelsync.ProtocolError{
			Reason: fmt.Sprintf("delta has %d indices but %d values", numIndices, len(values))}
	}
	if data.NumChanges != numIndices {
		voxelsync.Warningf("delta numChanges %d disagrees with payload count %d; using payload\n",
			data.NumChanges, numIndices)
	}

	indices := make([]voxelsync.Point3d, numIndices)
	for i := range indices {
		off := i * 6
		indices[i] = voxelsync.Point3d{
			int32(binary.LittleEndian.Uint16(idxRaw[off:])),
			int32(binary.LittleEndian.Uint16(idxRaw[off+2:])),
			int32(binary.LittleEndian.Uint16(idxRaw[off+4:])),
		}
	}

	return &volume.Delta{
		Indices:    indices,
		Values:     values,
		SourceDims: data.Dimensions,
	}, nil
}

// EncodeSnapshot converts a full buffer into wire form.
func EncodeSnapshot(b *volume.Buffer, c codec.Codec) (*SnapshotData, error) {
	dataType := labelTypeFor(b.MaxLabel())
	compressed, err := c.Compress(encodeLabels(b.Labels, dataType))
	if err != nil {
		return nil, err
	}

	var segments map[string]string
	if len(b.SegmentNames) > 0 {
		segments = make(map[string]string, len(b.SegmentNames))
		for label, name := range b.SegmentNames {
			segments[strconv.FormatUint(label, 10)] = name
		}
	}

	return &SnapshotData{
		ImageData:  codec.EncodeForTransport(compressed),
		Dimensions: b.Dims,
		Spacing:    b.Spacing,
		Origin:     b.Origin,
		DataType:   dataType,
		Segments:   segments,
	}, nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(data *SnapshotData, c codec.Codec) (*volume.Buffer, error) {
	compressed, err := codec.DecodeFromTransport(data.ImageData)
	if err != nil {
		return nil, err
	}
	raw, err := c.Decompress(compressed)
	if err != nil {
		return nil, err
	}
	labels, err := decodeLabels(raw, data.DataType)
	if err != nil {
		return nil, err
	}

	dims := voxelsync.Point3d(data.Dimensions)
	b, err := volume.NewFromLabels(dims, data.Spacing, data.Origin, labels)
	if err != nil {
		return nil, &voxelsync.ProtocolError{Reason: err.Error()}
	}

	if len(data.Segments) > 0 {
		names := make(map[uint64]string, len(data.Segments))
		for key, name := range data.Segments {
			label, err := strconv.ParseUint(key, 10, 64)
			if err != nil {
				voxelsync.Warningf("ignoring bad segment label %q in snapshot\n", key)
				continue
			}
			names[label] = name
		}
		b.MergeSegmentNames(names)
	}
	return b, nil
}

// DecodeDeltaPayload extracts and decodes delta data from an envelope.
func (env *Envelope) DecodeDeltaPayload(c codec.Codec) (*volume.Delta, error) {
	if len(env.Data) == 0 {
		return nil, &voxelsync.ProtocolError{Reason: "delta message missing data"}
	}
	var data DeltaData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &voxelsync.ProtocolError{Reason: fmt.Sprintf("bad delta data: %v", err)}
	}
	return DecodeDelta(&data, c)
}

// DecodeSnapshotPayload extracts and decodes snapshot data from an envelope.
func (env *Envelope) DecodeSnapshotPayload(c codec.Codec) (*volume.Buffer, error) {
	if len(env.Data) == 0 {
		return nil, &voxelsync.ProtocolError{Reason: "full_snapshot message missing data"}
	}
	var data SnapshotData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &voxelsync.ProtocolError{Reason: fmt.Sprintf("bad snapshot data: %v", err)}
	}
	return DecodeSnapshot(&data, c)
}
