package codec

import (
	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/util"
)

// Int64Serializer 定长 8 字节小端
type Int64Serializer struct{}

func (Int64Serializer) Encode(buf []byte, v int64) []byte {
	return util.WriteUB8Long(buf, v)
}

func (Int64Serializer) Decode(buf []byte, cursor int) (int, int64, error) {
	return util.ReadUB8Long(buf, cursor)
}

// StringSerializer 变长长度前缀加 UTF-8 内容
type StringSerializer struct{}

func (StringSerializer) Encode(buf []byte, v string) []byte {
	return util.WriteWithLength(buf, []byte(v))
}

func (StringSerializer) Decode(buf []byte, cursor int) (int, string, error) {
	return util.ReadLengthString(buf, cursor)
}

// BytesSerializer 解码结果不与输入共享内存
type BytesSerializer struct{}

func (BytesSerializer) Encode(buf []byte, v []byte) []byte {
	return util.WriteWithLength(buf, v)
}

func (BytesSerializer) Decode(buf []byte, cursor int) (int, []byte, error) {
	cursor, b, err := util.ReadWithLength(buf, cursor)
	if err != nil {
		return cursor, nil, err
	}
	return cursor, append([]byte(nil), b...), nil
}

var (
	_ basic.Serializer[int64]  = Int64Serializer{}
	_ basic.Serializer[string] = StringSerializer{}
	_ basic.Serializer[[]byte] = BytesSerializer{}
)
