// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ava-labs/vmsync/utils/compression"
	"github.com/ava-labs/vmsync/utils/constants"
)

// Field numbers of a Frame.
const (
	frameRequestIDField   protowire.Number = 1
	frameResponseField    protowire.Number = 2
	frameMessageField     protowire.Number = 3
	frameCompressionField protowire.Number = 4

	// Upper bound on the bytes a frame adds to its message.
	maxFrameOverhead = 32
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnsupportedMessage = errors.New("unsupported message")
	ErrMessageTooLarge    = errors.New("message too large")

	errNilMessage         = errors.New("nil message")
	errNoMessage          = errors.New("envelope has no message")
	errMultipleMessages   = errors.New("envelope has more than one message")
	errUnknownCompression = errors.New("unknown compression type")
	errInvalidMaxSize     = errors.New("max message size must be > 0")

	defaultCodec = &Codec{
		maxMessageSize: constants.DefaultMaxMessageSize,
	}
)

type Config struct {
	// Largest encoded message. Larger messages are neither sent nor accepted.
	MaxMessageSize int
	// Compression applied to frame payloads of at least
	// [CompressionThreshold] bytes.
	CompressionType      compression.Type
	CompressionThreshold int
}

func DefaultConfig() Config {
	return Config{
		MaxMessageSize:       constants.DefaultMaxMessageSize,
		CompressionType:      compression.TypeNone,
		CompressionThreshold: constants.DefaultCompressionThreshold,
	}
}

// Codec encodes messages into envelopes and envelopes into frames. A Codec
// decodes frames compressed with any supported compression type, regardless
// of the compression it uses itself.
type Codec struct {
	maxMessageSize       int
	compressionType      compression.Type
	compressionThreshold int
	compressors          map[compression.Type]compression.Compressor
}

func NewCodec(config Config) (*Codec, error) {
	if config.MaxMessageSize <= 0 {
		return nil, errInvalidMaxSize
	}
	if config.CompressionType == 0 {
		config.CompressionType = compression.TypeNone
	}

	c := &Codec{
		maxMessageSize:       config.MaxMessageSize,
		compressionType:      config.CompressionType,
		compressionThreshold: config.CompressionThreshold,
		compressors:          make(map[compression.Type]compression.Compressor, 2),
	}
	for _, t := range []compression.Type{compression.TypeGzip, compression.TypeZstd} {
		compressor, err := compression.NewCompressor(t, int64(config.MaxMessageSize))
		if err != nil {
			return nil, err
		}
		c.compressors[t] = compressor
	}
	if c.compressionType != compression.TypeNone {
		if _, ok := c.compressors[c.compressionType]; !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownCompression, c.compressionType)
		}
	}
	return c, nil
}

// Encode returns the envelope of [msg] using the default codec.
func Encode(msg Message) ([]byte, error) {
	return defaultCodec.Encode(msg)
}

// Decode parses an envelope using the default codec.
func Decode(b []byte) (Message, error) {
	return defaultCodec.Decode(b)
}

// Encode returns the envelope of [msg]: [msg] as the only field of a message
// whose field number is [msg.Op()].
func (c *Codec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errNilMessage
	}
	if v, ok := msg.(verifier); ok {
		if err := v.verify(); err != nil {
			return nil, fmt.Errorf("couldn't encode %s: %w", msg.Op(), err)
		}
	}

	b := appendBytes(nil, protowire.Number(msg.Op()), msg.appendTo(nil))
	if len(b) > c.maxMessageSize {
		return nil, fmt.Errorf("%w: %s is %d bytes > %d", ErrMessageTooLarge, msg.Op(), len(b), c.maxMessageSize)
	}
	return b, nil
}

// Decode parses an envelope. Exactly one message must be present.
func (c *Codec) Decode(b []byte) (Message, error) {
	if len(b) > c.maxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrMalformedMessage, len(b), c.maxMessageSize)
	}

	var (
		op       Op
		body     []byte
		numField int
	)
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		numField++
		op = Op(num)
		if typ != protowire.BytesType {
			// An unsupported message may use any wire type.
			if _, ok := newMessage(op); ok {
				return wrongType(typ)
			}
			return nil
		}
		body = v
		return nil
	})
	switch {
	case err != nil:
		return nil, err
	case numField == 0:
		return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, errNoMessage)
	case numField > 1:
		return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, errMultipleMessages)
	}

	msg, ok := newMessage(op)
	if !ok {
		return nil, fmt.Errorf("%w: field %d", ErrUnsupportedMessage, op)
	}
	msgBytes, err := readBytes(protowire.BytesType, body)
	if err != nil {
		return nil, err
	}
	if err := msg.unmarshal(msgBytes); err != nil {
		return nil, fmt.Errorf("couldn't decode %s: %w", op, err)
	}
	return msg, nil
}

// Frame is the unit sent over a session. Responses carry the request ID of
// the request they answer.
type Frame struct {
	RequestID uint32
	Response  bool
	Message   Message

	// Number of bytes saved by compressing the message. Only set by
	// DecodeFrame.
	BytesSavedCompression int
}

// EncodeFrame returns the encoding of [f]. The message is compressed if the
// codec uses compression and the message is at least as large as the
// compression threshold.
func (c *Codec) EncodeFrame(f *Frame) ([]byte, error) {
	msgBytes, err := c.Encode(f.Message)
	if err != nil {
		return nil, err
	}

	compressionType := compression.TypeNone
	if c.compressionType != compression.TypeNone && len(msgBytes) >= c.compressionThreshold {
		compressed, err := c.compressors[c.compressionType].Compress(msgBytes)
		if err != nil {
			return nil, fmt.Errorf("couldn't compress %s: %w", f.Message.Op(), err)
		}
		if len(compressed) < len(msgBytes) {
			msgBytes = compressed
			compressionType = c.compressionType
		}
	}

	b := make([]byte, 0, len(msgBytes)+maxFrameOverhead)
	b = appendUint64(b, frameRequestIDField, uint64(f.RequestID))
	b = appendBool(b, frameResponseField, f.Response)
	b = appendBytes(b, frameMessageField, msgBytes)
	if compressionType != compression.TypeNone {
		b = appendUint64(b, frameCompressionField, uint64(compressionType))
	}
	return b, nil
}

// DecodeFrame parses a frame and the message it holds.
func (c *Codec) DecodeFrame(b []byte) (*Frame, error) {
	if len(b) > c.maxMessageSize+maxFrameOverhead {
		return nil, fmt.Errorf("%w: frame is %d bytes > %d", ErrMalformedMessage, len(b), c.maxMessageSize+maxFrameOverhead)
	}

	var (
		f               Frame
		msgBytes        []byte
		compressionType = compression.TypeNone
	)
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case frameRequestIDField:
			f.RequestID, err = readUint32(typ, v)
		case frameResponseField:
			f.Response, err = readBool(typ, v)
		case frameMessageField:
			msgBytes, err = readBytes(typ, v)
		case frameCompressionField:
			var t uint32
			t, err = readUint32(typ, v)
			compressionType = compression.Type(t)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if compressionType != compression.TypeNone {
		compressor, ok := c.compressors[compressionType]
		if !ok {
			return nil, fmt.Errorf("%w: %s %d", ErrMalformedMessage, errUnknownCompression, compressionType)
		}
		compressedLen := len(msgBytes)
		msgBytes, err = compressor.Decompress(msgBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, err)
		}
		f.BytesSavedCompression = len(msgBytes) - compressedLen
	}

	f.Message, err = c.Decode(msgBytes)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
