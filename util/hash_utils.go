package util

import (
	"github.com/OneOfOne/xxhash"
)

// 将一个键进行Hash，页面帧的校验和也用它
func HashCode(key []byte) uint64 {
	h := xxhash.New64()
	h.Write(key)
	return h.Sum64()
}
