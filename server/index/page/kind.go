package page

// Kind 页面种类标签，树遍历代码按标签分派
type Kind uint8

const (
	KindDescriptor Kind = iota + 1
	KindInner
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindDescriptor:
		return "descriptor"
	case KindInner:
		return "inner"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// IsData 内部页或叶子页
func (k Kind) IsData() bool {
	return k == KindInner || k == KindLeaf
}
