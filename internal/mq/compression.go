package mq

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// compressionThreshold is the payload size below which compression is skipped.
const compressionThreshold = 1024

// CompressPayload compresses payload with algo. Small payloads are sent
// uncompressed, and the algorithm actually applied is returned.
func CompressPayload(algo domain.CompressionAlgorithm, payload []byte) ([]byte, domain.CompressionAlgorithm, error) {
	if algo == domain.CompressionNone || len(payload) < compressionThreshold {
		return payload, domain.CompressionNone, nil
	}

	switch algo {
	case domain.CompressionZlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, algo, fmt.Errorf("failed to compress payload: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, algo, fmt.Errorf("failed to compress payload: %w", err)
		}
		return buf.Bytes(), algo, nil
	default:
		return nil, algo, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}

// DecompressPayload reverses CompressPayload.
func DecompressPayload(algo domain.CompressionAlgorithm, payload []byte) ([]byte, error) {
	switch algo {
	case domain.CompressionNone:
		return payload, nil
	case domain.CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}
