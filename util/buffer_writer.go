package util

import "encoding/binary"

// 定长整数均为小端序，长度前缀为 uvarint

func WriteByte(buf []byte, b byte) []byte {
	return append(buf, b)
}

func WriteBytes(buf []byte, from []byte) []byte {
	return append(buf, from...)
}

func WriteUB2(buf []byte, i uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, i)
}

func WriteUB4(buf []byte, i uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, i)
}

func WriteUB8(buf []byte, i uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, i)
}

func WriteUB8Long(buf []byte, i int64) []byte {
	return WriteUB8(buf, uint64(i))
}

func WriteLength(buf []byte, length int64) []byte {
	return binary.AppendUvarint(buf, uint64(length))
}

// WriteWithLength 长度前缀加内容
func WriteWithLength(buf []byte, from []byte) []byte {
	return WriteBytes(WriteLength(buf, int64(len(from))), from)
}

func ConvertBool2Byte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// GetLength WriteLength 写出的字节数
func GetLength(length int64) int {
	n := 1
	for v := uint64(length); v >= 0x80; v >>= 7 {
		n++
	}
	return n
}
