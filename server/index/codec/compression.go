package codec

import (
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
)

// Compression 页面帧负载的压缩方式
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionSnappy
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCompression 解析配置中的压缩名称，空串视为 none
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return CompressionNone, errors.Wrapf(basic.ErrUnknownCompression, "compression %q", name)
}

// compress 返回实际采用的压缩方式；压缩后不比原文短时退回 none
func compress(c Compression, raw []byte) (Compression, []byte, error) {
	switch c {
	case CompressionNone:
		return CompressionNone, raw, nil
	case CompressionSnappy:
		out := snappy.Encode(nil, raw)
		if len(out) >= len(raw) {
			return CompressionNone, raw, nil
		}
		return CompressionSnappy, out, nil
	case CompressionLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, out, nil)
		if err != nil {
			return CompressionNone, nil, errors.Wrap(err, "lz4 compress")
		}
		if n == 0 || n >= len(raw) {
			return CompressionNone, raw, nil
		}
		return CompressionLZ4, out[:n], nil
	}
	return CompressionNone, nil, errors.Wrapf(basic.ErrUnknownCompression, "compression %d", c)
}

func decompress(c Compression, payload []byte, rawLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionSnappy:
		n, err := snappy.DecodedLen(payload)
		if err != nil || n != rawLen {
			return nil, errors.Wrapf(basic.ErrPageCorrupted, "snappy payload declares %d bytes, frame %d", n, rawLen)
		}
		raw, err := snappy.Decode(make([]byte, rawLen), payload)
		if err != nil {
			return nil, errors.Wrapf(basic.ErrPageCorrupted, "snappy: %v", err)
		}
		return raw, nil
	case CompressionLZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil || n != rawLen {
			return nil, errors.Wrapf(basic.ErrPageCorrupted, "lz4 payload expands to %d bytes, frame %d", n, rawLen)
		}
		return raw, nil
	}
	return nil, errors.Wrapf(basic.ErrUnknownCompression, "compression %d", c)
}
