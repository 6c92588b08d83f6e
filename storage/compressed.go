package storage

import (
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

// Record format: [compression uint8][uncompressed size uint32][payload]
const recordHeaderSize = 5

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return CompressionNone, errors.Errorf("Unknown compression '%s'", name)
}

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// Compressed wraps a store and compresses all records before they are saved. Each record carries its own compression
// type, so records written with a different setting can still be read.
type Compressed struct {
	Store
	compression Compression
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	closeOnce   sync.Once
}

func NewCompressed(store Store, compression Compression) (*Compressed, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create zstd encoder")
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create zstd decoder")
	}

	return &Compressed{
		Store:       store,
		compression: compression,
		encoder:     encoder,
		decoder:     decoder,
	}, nil
}

func (c *Compressed) Load(table string, id uint64) ([]byte, bool, error) {
	data, ok, err := c.Store.Load(table, id)
	if err != nil || !ok {
		return nil, ok, err
	}

	data, err = c.decompress(data)
	if err != nil {
		return nil, false, errors.Wrapf(err, "Unable to decompress record %d of table %s", id, table)
	}
	return data, true, nil
}

func (c *Compressed) Save(table string, id uint64, data []byte) error {
	compressed, err := c.compress(data)
	if err != nil {
		return errors.Wrapf(err, "Unable to compress record %d of table %s", id, table)
	}
	return c.Store.Save(table, id, compressed)
}

func (c *Compressed) Close() error {
	c.closeOnce.Do(func() {
		c.encoder.Close()
		c.decoder.Close()
	})
	return c.Store.Close()
}

func (c *Compressed) compress(data []byte) ([]byte, error) {
	var payload []byte
	compression := c.compression

	switch compression {
	case CompressionLZ4:
		buffer := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buffer, nil)
		if err != nil {
			return nil, err
		}
		payload = buffer[:n]
	case CompressionZSTD:
		payload = c.encoder.EncodeAll(data, nil)
	}

	// Incompressible data is stored as it is
	if compression == CompressionNone || len(payload) == 0 || len(payload) >= len(data) {
		compression = CompressionNone
		payload = data
	}

	result := make([]byte, recordHeaderSize, recordHeaderSize+len(payload))
	result[0] = byte(compression)
	binary.LittleEndian.PutUint32(result[1:], uint32(len(data)))
	return append(result, payload...), nil
}

func (c *Compressed) decompress(data []byte) ([]byte, error) {
	if len(data) < recordHeaderSize {
		return nil, errors.Errorf("Record of %d bytes is too small for header", len(data))
	}

	compression := Compression(data[0])
	size := binary.LittleEndian.Uint32(data[1:])
	payload := data[recordHeaderSize:]

	switch compression {
	case CompressionNone:
		if uint32(len(payload)) != size {
			return nil, errors.Errorf("Expected %d uncompressed bytes but found %d", size, len(payload))
		}
		return payload, nil
	case CompressionLZ4:
		result := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, result)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to decompress lz4 block")
		}
		return result[:n], nil
	case CompressionZSTD:
		result, err := c.decoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, errors.Wrap(err, "Unable to decompress zstd block")
		}
		return result, nil
	}

	return nil, errors.Errorf("Unknown compression type %d", compression)
}
