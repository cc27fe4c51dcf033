package page

import (
	"github.com/shopspring/decimal"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
)

// testProvider 只在本包测试中使用的最小 Provider
type testProvider struct {
	descriptor *DescriptorPage[int64, int64]
	pages      map[Reference]*DataPage[int64, int64]
	released   int
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func identity(v int64) int64 { return v }

func asDecimal(v int64) decimal.Decimal { return decimal.New(v, 0) }

func newTestProvider(leafSize, innerSize int) *testProvider {
	d, err := NewDescriptorPage(Options[int64, int64]{
		Comparer:  compareInt64,
		Extractor: identity,
		LeafSize:  leafSize,
		InnerSize: innerSize,
		Measures: []measure.Measure[int64]{
			measure.NewCount[int64](),
			measure.NewSum("sum", asDecimal),
			measure.NewMin("min", asDecimal),
			measure.NewMax("max", asDecimal),
		},
	}, false)
	if err != nil {
		panic(err)
	}
	tp := &testProvider{descriptor: d, pages: make(map[Reference]*DataPage[int64, int64])}
	d.Bind(tp)
	return tp
}

func (tp *testProvider) CreatePage(kind Kind) (*DataPage[int64, int64], error) {
	return NewDataPage(tp.descriptor, kind)
}

func (tp *testProvider) AssignReference(p Page[int64, int64]) error {
	dp := p.AsDataPage()
	if dp == nil {
		return basic.ErrIncompatibleKind
	}
	ref := NewSelfReference()
	dp.SetReference(ref)
	tp.pages[ref] = dp
	return nil
}

func (tp *testProvider) Descriptor() *DescriptorPage[int64, int64] { return tp.descriptor }

func (tp *testProvider) Resolve(ref Reference) (Page[int64, int64], error) {
	if ref == DescriptorReference {
		return tp.descriptor, nil
	}
	p, ok := tp.pages[ref]
	if !ok {
		return nil, basic.ErrPageNotFound
	}
	return p, nil
}

func (tp *testProvider) MarkDirty(*DataPage[int64, int64]) error { return nil }

func (tp *testProvider) Release(p *DataPage[int64, int64]) error {
	delete(tp.pages, p.Ref())
	tp.released++
	return nil
}

func (tp *testProvider) Flush() error { return nil }
func (tp *testProvider) Close() error { return nil }

// leafWith 按顺序插入记录的叶子页
func (tp *testProvider) leafWith(items ...int64) *DataPage[int64, int64] {
	p, err := NewPage[int64, int64](tp, KindLeaf)
	if err != nil {
		panic(err)
	}
	for i, item := range items {
		if err := p.Insert(i, item); err != nil {
			panic(err)
		}
	}
	return p
}

func keysOf(p *DataPage[int64, int64]) []int64 {
	keys := make([]int64, p.CurrentSize())
	for i := range keys {
		keys[i] = p.KeyAt(i)
	}
	return keys
}
