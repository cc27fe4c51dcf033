package util

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortBuffer 读取越过了缓冲区末尾，通常意味着数据被截断
var ErrShortBuffer = errors.New("buffer too short")

func need(buff []byte, cursor int, n int) error {
	if cursor < 0 || n < 0 || cursor+n > len(buff) {
		return errors.Wrapf(ErrShortBuffer, "need %d bytes at %d, have %d", n, cursor, len(buff))
	}
	return nil
}

func ReadBytes(buff []byte, cursor int, n int) (int, []byte, error) {
	if n == 0 {
		return cursor, nil, nil
	}
	if err := need(buff, cursor, n); err != nil {
		return cursor, nil, err
	}
	return cursor + n, buff[cursor : cursor+n], nil
}

func ReadByte(buff []byte, cursor int) (int, byte, error) {
	if err := need(buff, cursor, 1); err != nil {
		return cursor, 0, err
	}
	return cursor + 1, buff[cursor], nil
}

func ReadUB2(buff []byte, cursor int) (int, uint16, error) {
	if err := need(buff, cursor, 2); err != nil {
		return cursor, 0, err
	}
	return cursor + 2, binary.LittleEndian.Uint16(buff[cursor:]), nil
}

func ReadUB4(buff []byte, cursor int) (int, uint32, error) {
	if err := need(buff, cursor, 4); err != nil {
		return cursor, 0, err
	}
	return cursor + 4, binary.LittleEndian.Uint32(buff[cursor:]), nil
}

func ReadUB8(buff []byte, cursor int) (int, uint64, error) {
	if err := need(buff, cursor, 8); err != nil {
		return cursor, 0, err
	}
	return cursor + 8, binary.LittleEndian.Uint64(buff[cursor:]), nil
}

func ReadUB8Long(buff []byte, cursor int) (int, int64, error) {
	cursor, i, err := ReadUB8(buff, cursor)
	return cursor, int64(i), err
}

// ReadLength 读取 WriteLength 写出的 uvarint 长度
func ReadLength(buff []byte, cursor int) (int, uint64, error) {
	if cursor < 0 || cursor > len(buff) {
		return cursor, 0, errors.Wrapf(ErrShortBuffer, "length at %d, have %d", cursor, len(buff))
	}
	length, n := binary.Uvarint(buff[cursor:])
	switch {
	case n == 0:
		return cursor, 0, errors.Wrapf(ErrShortBuffer, "truncated length at %d", cursor)
	case n < 0:
		return cursor, 0, errors.Errorf("length at %d overflows 64 bits", cursor)
	}
	return cursor + n, length, nil
}

// ReadWithLength 读取 WriteWithLength 写出的内容，返回的切片与 buff 共享底层数组
func ReadWithLength(buff []byte, cursor int) (int, []byte, error) {
	cursor, length, err := ReadLength(buff, cursor)
	if err != nil {
		return cursor, nil, err
	}
	if length > uint64(len(buff)) {
		return cursor, nil, errors.Wrapf(ErrShortBuffer, "length %d exceeds buffer of %d", length, len(buff))
	}
	return ReadBytes(buff, cursor, int(length))
}

func ReadLengthString(buff []byte, cursor int) (int, string, error) {
	cursor, tmp, err := ReadWithLength(buff, cursor)
	return cursor, string(tmp), err
}
