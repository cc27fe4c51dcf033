package provider

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/util"
)

// 文件头固定位于偏移 0：magic(4) format(4) descriptor(8) flushes(8) checksum(8)
const (
	FileHeaderSize = 32
	FormatVersion  = 1
)

var fileMagic = []byte("XIDX")

type fileHeader struct {
	descriptorOffset int64
	flushes          uint64
}

func (h fileHeader) encode() []byte {
	buf := make([]byte, 0, FileHeaderSize)
	buf = util.WriteBytes(buf, fileMagic)
	buf = util.WriteUB4(buf, FormatVersion)
	buf = util.WriteUB8Long(buf, h.descriptorOffset)
	buf = util.WriteUB8(buf, h.flushes)
	return util.WriteUB8(buf, util.HashCode(buf))
}

func decodeFileHeader(b []byte) (fileHeader, error) {
	var h fileHeader
	if len(b) < FileHeaderSize {
		return h, errors.Wrapf(basic.ErrPageCorrupted, "file header has %d bytes", len(b))
	}
	if !bytes.Equal(b[:4], fileMagic) {
		return h, errors.Wrapf(basic.ErrPageCorrupted, "bad magic %q", b[:4])
	}
	cursor, format, _ := util.ReadUB4(b, 4)
	if format != FormatVersion {
		return h, errors.Wrapf(basic.ErrDescriptorMismatch, "format version %d, supported %d", format, FormatVersion)
	}
	cursor, offset, _ := util.ReadUB8Long(b, cursor)
	cursor, flushes, _ := util.ReadUB8(b, cursor)
	_, checksum, _ := util.ReadUB8(b, cursor)
	if sum := util.HashCode(b[:cursor]); sum != checksum {
		return h, errors.Wrapf(basic.ErrChecksumMismatch, "file header checksum %x, computed %x", checksum, sum)
	}
	if offset < FileHeaderSize {
		return h, errors.Wrapf(basic.ErrPageCorrupted, "descriptor offset %d", offset)
	}
	h.descriptorOffset = offset
	h.flushes = flushes
	return h, nil
}
