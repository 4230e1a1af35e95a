// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the algorithm applied to EncodedContent.Content.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression accepts "none", "zstd" and "lz4".
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q (expected none, zstd or lz4)", name)
	}
}

// Compress returns encoded with Content compressed by algorithm.
// Content that does not shrink is returned unchanged and uncompressed.
// Already compressed content is returned as is.
func Compress(encoded EncodedContent, algorithm Compression) (EncodedContent, error) {
	if algorithm == CompressionNone || encoded.Compression != CompressionNone || len(encoded.Content) == 0 {
		return encoded, nil
	}

	var compressed []byte
	switch algorithm {
	case CompressionZstd:
		compressed = zstdEncoder.EncodeAll(encoded.Content, nil)
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(encoded.Content)))
		written, err := lz4.CompressBlock(encoded.Content, destination, nil)
		if err != nil {
			return encoded, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 {
			return encoded, nil
		}
		compressed = destination[:written]
	default:
		return encoded, fmt.Errorf("unsupported compression %q", algorithm)
	}

	if len(compressed) >= len(encoded.Content) {
		return encoded, nil
	}
	encoded.UncompressedSize = len(encoded.Content)
	encoded.Content = compressed
	encoded.Compression = algorithm
	return encoded, nil
}

// Decompress returns encoded with Content restored to its original
// bytes. Uncompressed content is returned unchanged.
func Decompress(encoded EncodedContent) (EncodedContent, error) {
	switch encoded.Compression {
	case CompressionNone:
		return encoded, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(encoded.Content, make([]byte, 0, encoded.UncompressedSize))
		if err != nil {
			return encoded, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != encoded.UncompressedSize {
			return encoded, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), encoded.UncompressedSize)
		}
		encoded.Content = result

	case CompressionLZ4:
		if encoded.UncompressedSize <= 0 {
			return encoded, fmt.Errorf("lz4 decompress: invalid uncompressed size %d", encoded.UncompressedSize)
		}
		destination := make([]byte, encoded.UncompressedSize)
		read, err := lz4.UncompressBlock(encoded.Content, destination)
		if err != nil {
			return encoded, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != encoded.UncompressedSize {
			return encoded, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, encoded.UncompressedSize)
		}
		encoded.Content = destination

	default:
		return encoded, fmt.Errorf("unsupported compression %q", encoded.Compression)
	}

	encoded.Compression = CompressionNone
	encoded.UncompressedSize = 0
	return encoded, nil
}

// Shared coders. zstd.Encoder and zstd.Decoder are safe for concurrent
// use through EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("protocol: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("protocol: zstd decoder initialization failed: " + err.Error())
	}
}
