package codec

import (
	gxbytes "github.com/dubbogo/gost/bytes"
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
	"github.com/zhukovaskychina/xmysql-index/util"
)

// FrameHeaderSize 帧头长度：kind(1) compression(1) rawLen(4) payloadLen(4) checksum(8)
const FrameHeaderSize = 18

// MaxFrameBody 单个帧负载的上限，超过时认为帧头已损坏
const MaxFrameBody = 64 << 20

// FrameHeader 每个页面帧的固定头部，checksum 是未压缩内容的 xxhash64
type FrameHeader struct {
	Kind        page.Kind
	Compression Compression
	RawLen      uint32
	PayloadLen  uint32
	Checksum    uint64
}

// FrameLen 帧在流中占用的总字节数
func (h FrameHeader) FrameLen() int {
	return FrameHeaderSize + int(h.PayloadLen)
}

// ParseFrameHeader 解析帧头，只检查字段取值范围
func ParseFrameHeader(b []byte) (FrameHeader, error) {
	var h FrameHeader
	cursor, kind, err := util.ReadByte(b, 0)
	if err != nil {
		return h, errors.Wrap(basic.ErrPageCorrupted, err.Error())
	}
	cursor, c, err := util.ReadByte(b, cursor)
	if err != nil {
		return h, errors.Wrap(basic.ErrPageCorrupted, err.Error())
	}
	cursor, rawLen, err := util.ReadUB4(b, cursor)
	if err != nil {
		return h, errors.Wrap(basic.ErrPageCorrupted, err.Error())
	}
	cursor, payloadLen, err := util.ReadUB4(b, cursor)
	if err != nil {
		return h, errors.Wrap(basic.ErrPageCorrupted, err.Error())
	}
	_, checksum, err := util.ReadUB8(b, cursor)
	if err != nil {
		return h, errors.Wrap(basic.ErrPageCorrupted, err.Error())
	}
	h = FrameHeader{
		Kind:        page.Kind(kind),
		Compression: Compression(c),
		RawLen:      rawLen,
		PayloadLen:  payloadLen,
		Checksum:    checksum,
	}
	switch h.Kind {
	case page.KindDescriptor, page.KindInner, page.KindLeaf:
	default:
		return h, errors.Wrapf(basic.ErrPageCorrupted, "frame kind %d", kind)
	}
	if h.Compression > CompressionLZ4 {
		return h, errors.Wrapf(basic.ErrUnknownCompression, "frame compression %d", c)
	}
	if rawLen > MaxFrameBody || payloadLen > MaxFrameBody {
		return h, errors.Wrapf(basic.ErrPageCorrupted, "frame lengths %d/%d", rawLen, payloadLen)
	}
	return h, nil
}

// EncodeFrame 压缩并封装页面内容
func EncodeFrame(kind page.Kind, raw []byte, c Compression) ([]byte, error) {
	if len(raw) > MaxFrameBody {
		return nil, errors.Errorf("%s page body of %d bytes exceeds frame limit", kind, len(raw))
	}
	used, payload, err := compress(c, raw)
	if err != nil {
		return nil, err
	}

	buf := gxbytes.GetBytesBuffer()
	defer gxbytes.PutBytesBuffer(buf)

	head := make([]byte, 0, FrameHeaderSize)
	head = util.WriteByte(head, byte(kind))
	head = util.WriteByte(head, byte(used))
	head = util.WriteUB4(head, uint32(len(raw)))
	head = util.WriteUB4(head, uint32(len(payload)))
	head = util.WriteUB8(head, util.HashCode(raw))
	buf.Write(head)
	buf.Write(payload)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeFrame 校验并解压完整的帧，返回未压缩内容
func DecodeFrame(frame []byte) (FrameHeader, []byte, error) {
	h, err := ParseFrameHeader(frame)
	if err != nil {
		return h, nil, err
	}
	if len(frame) < h.FrameLen() {
		return h, nil, errors.Wrapf(basic.ErrPageCorrupted, "frame truncated: %d of %d bytes", len(frame), h.FrameLen())
	}
	raw, err := decompress(h.Compression, frame[FrameHeaderSize:h.FrameLen()], int(h.RawLen))
	if err != nil {
		return h, nil, err
	}
	if len(raw) != int(h.RawLen) {
		return h, nil, errors.Wrapf(basic.ErrPageCorrupted, "frame body %d bytes, header says %d", len(raw), h.RawLen)
	}
	if sum := util.HashCode(raw); sum != h.Checksum {
		return h, nil, errors.Wrapf(basic.ErrChecksumMismatch, "%s frame checksum %x, computed %x", h.Kind, h.Checksum, sum)
	}
	return h, raw, nil
}
