package page

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
)

// RefKind 页面引用的变体
type RefKind uint8

const (
	RefNull RefKind = iota
	RefDescriptor
	RefUnassigned
	RefOffset
	RefSelf
)

func (k RefKind) String() string {
	switch k {
	case RefNull:
		return "null"
	case RefDescriptor:
		return "descriptor"
	case RefUnassigned:
		return "unassigned"
	case RefOffset:
		return "offset"
	case RefSelf:
		return "self"
	default:
		return "unknown"
	}
}

// 流上的保留编码
const (
	EncodedNull       int64 = -1
	EncodedDescriptor int64 = -2
	EncodedUnassigned int64 = math.MinInt64
)

// Reference 页面地址。偏移引用指向流中的字节位置，自引用是内存页面的身份，
// 其余三种是保留哨兵。值类型，可直接比较或作为 map 键。
type Reference struct {
	kind  RefKind
	value int64
}

// 哨兵引用，所有索引共享
var (
	NullReference       = Reference{kind: RefNull, value: EncodedNull}
	DescriptorReference = Reference{kind: RefDescriptor, value: EncodedDescriptor}
	UnassignedReference = Reference{kind: RefUnassigned, value: EncodedUnassigned}
)

var selfSequence atomic.Int64

// NewSelfReference 为内存页面分配进程内唯一的身份
func NewSelfReference() Reference {
	return Reference{kind: RefSelf, value: selfSequence.Add(1)}
}

// NewOffsetReference 由流偏移构造引用，负数属于保留区间
func NewOffsetReference(offset int64) (Reference, error) {
	if offset < 0 {
		return NullReference, errors.Wrapf(basic.ErrReservedReference, "offset %d", offset)
	}
	return Reference{kind: RefOffset, value: offset}, nil
}

// MustOffsetReference 同 NewOffsetReference，误用时直接 panic
func MustOffsetReference(offset int64) Reference {
	ref, err := NewOffsetReference(offset)
	if err != nil {
		panic(err)
	}
	return ref
}

// NewSentinelReference 只接受三个保留编码
func NewSentinelReference(value int64) (Reference, error) {
	switch value {
	case EncodedNull:
		return NullReference, nil
	case EncodedDescriptor:
		return DescriptorReference, nil
	case EncodedUnassigned:
		return UnassignedReference, nil
	}
	return NullReference, errors.Wrapf(basic.ErrNotSentinel, "value %d", value)
}

// MustSentinelReference 同 NewSentinelReference，误用时直接 panic
func MustSentinelReference(value int64) Reference {
	ref, err := NewSentinelReference(value)
	if err != nil {
		panic(err)
	}
	return ref
}

// DecodeReference 按流编码还原引用。不属于任何保留编码的负数只可能来自损坏的流。
func DecodeReference(value int64) (Reference, error) {
	if value >= 0 {
		return Reference{kind: RefOffset, value: value}, nil
	}
	ref, err := NewSentinelReference(value)
	if err != nil {
		return NullReference, errors.Wrapf(basic.ErrPageCorrupted, "reference value %d", value)
	}
	return ref, nil
}

// Encode 返回流编码，自引用没有流上的表示
func (r Reference) Encode() (int64, error) {
	if r.kind == RefSelf {
		return 0, errors.Wrapf(basic.ErrNotEncodable, "reference %s", r)
	}
	return r.value, nil
}

func (r Reference) Kind() RefKind { return r.kind }

// IsDefined 是否可解析到页面内容
func (r Reference) IsDefined() bool {
	return r.kind == RefOffset || r.kind == RefSelf
}

func (r Reference) IsNull() bool { return r.kind == RefNull }

// Offset 仅对偏移引用有效
func (r Reference) Offset() (int64, bool) {
	if r.kind != RefOffset {
		return 0, false
	}
	return r.value, true
}

func (r Reference) String() string {
	switch r.kind {
	case RefOffset:
		return fmt.Sprintf("@%d", r.value)
	case RefSelf:
		return fmt.Sprintf("self#%d", r.value)
	default:
		return r.kind.String()
	}
}
