// ABOUTME: Binary stream data frame codec
// ABOUTME: Frames carry a sequence number, the stream id and raw samples
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// DataFrameType is the binary message type byte for stream data
	DataFrameType = 0x01

	// DataFrameHeaderSize is type + sequence + id length
	DataFrameHeaderSize = 1 + 8 + 1

	// MaxStreamIDLen is the longest stream id a frame can carry
	MaxStreamIDLen = 255
)

var (
	// ErrShortFrame is returned for frames shorter than their header
	ErrShortFrame = errors.New("binary frame too short")
	// ErrUnknownFrame is returned for unrecognized frame types
	ErrUnknownFrame = errors.New("unknown binary frame type")
	// ErrStreamIDTooLong is returned when encoding an oversized stream id
	ErrStreamIDTooLong = errors.New("stream id too long")
)

// DataFrame is one audio-stream-data message
type DataFrame struct {
	StreamID string
	Sequence uint64
	Samples  []byte
}

// EncodeDataFrame builds the binary wire form of a data frame
func EncodeDataFrame(f DataFrame) ([]byte, error) {
	if len(f.StreamID) > MaxStreamIDLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrStreamIDTooLong, len(f.StreamID))
	}

	buf := make([]byte, DataFrameHeaderSize+len(f.StreamID)+len(f.Samples))
	buf[0] = DataFrameType
	binary.BigEndian.PutUint64(buf[1:9], f.Sequence)
	buf[9] = byte(len(f.StreamID))
	n := copy(buf[DataFrameHeaderSize:], f.StreamID)
	copy(buf[DataFrameHeaderSize+n:], f.Samples)

	return buf, nil
}

// DecodeDataFrame parses a binary data frame. Samples aliases data.
func DecodeDataFrame(data []byte) (DataFrame, error) {
	if len(data) < DataFrameHeaderSize {
		return DataFrame{}, ErrShortFrame
	}
	if data[0] != DataFrameType {
		return DataFrame{}, fmt.Errorf("%w: %d", ErrUnknownFrame, data[0])
	}

	idLen := int(data[9])
	if len(data) < DataFrameHeaderSize+idLen {
		return DataFrame{}, ErrShortFrame
	}

	return DataFrame{
		Sequence: binary.BigEndian.Uint64(data[1:9]),
		StreamID: string(data[DataFrameHeaderSize : DataFrameHeaderSize+idLen]),
		Samples:  data[DataFrameHeaderSize+idLen:],
	}, nil
}
