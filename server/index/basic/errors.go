package basic

import "errors"

// 页面引用相关错误
var (
	ErrReservedReference = errors.New("offset collides with reserved reference range")
	ErrNotSentinel       = errors.New("value is not a reserved sentinel reference")
	ErrNotEncodable      = errors.New("self reference cannot be encoded")
	ErrUnassigned        = errors.New("page reference not assigned")
)

// 页面结构相关错误
var (
	ErrPageNotFound       = errors.New("page not found")
	ErrPageCorrupted      = errors.New("page corrupted")
	ErrPageFull           = errors.New("page full")
	ErrUnsortedKeys       = errors.New("keys out of order")
	ErrTreeCorrupted      = errors.New("tree corrupted")
	ErrIndexOutOfRange    = errors.New("slot index out of range")
	ErrIncompatibleKind   = errors.New("incompatible page kind")
	ErrForeignPage        = errors.New("page belongs to another index")
	ErrChecksumMismatch   = errors.New("page checksum mismatch")
	ErrUnknownCompression = errors.New("unknown page compression")
)

// 描述页相关错误
var (
	ErrDescriptorSealed   = errors.New("descriptor is sealed")
	ErrDescriptorMismatch = errors.New("descriptor does not match index configuration")
	ErrInvalidCapacity    = errors.New("invalid page capacity")
	ErrDuplicateMeasure   = errors.New("measure already declared")
	ErrMeasureNotFound    = errors.New("measure not found")
)

// 索引操作相关错误
var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrProviderClose = errors.New("provider is closed")
	ErrStaleIterator = errors.New("index modified during iteration")
)
