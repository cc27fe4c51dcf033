package basic

// Comparer 定义键的全序，返回值语义同 bytes.Compare
type Comparer[K any] func(a, b K) int

// KeyExtractor 从记录中取出索引键
type KeyExtractor[I, K any] func(item I) K

// Serializer 负责键或记录在页面镜像中的编码
type Serializer[T any] interface {
	Encode(buf []byte, v T) []byte
	Decode(buf []byte, cursor int) (int, T, error)
}
