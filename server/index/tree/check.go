package tree

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
)

// bound 子树键区间，nil 表示无界
type bound[K any] struct {
	lo, hi *K
}

// Check 遍历整棵树，检查有序性、容量、分隔键区间、叶子深度和度量一致性。
// 发现问题时返回包装了 ErrTreeCorrupted 的错误。
func (ix *Index[K, I]) Check() error {
	root, err := ix.root()
	if err != nil {
		return err
	}
	count, err := ix.check(root, 1, bound[K]{}, true)
	if err != nil {
		return err
	}
	if count != ix.d.ItemCount() {
		return errors.Wrapf(basic.ErrTreeCorrupted, "descriptor counts %d items, leaves hold %d", ix.d.ItemCount(), count)
	}
	return nil
}

func (ix *Index[K, I]) check(p *page.DataPage[K, I], depth int, b bound[K], isRoot bool) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	n := p.CurrentSize()
	if n == 0 && !isRoot {
		return 0, errors.Wrapf(basic.ErrTreeCorrupted, "empty %s page %s", p.Kind(), p.Ref())
	}
	if n > 0 {
		if b.lo != nil && ix.d.Compare(p.KeyAt(0), *b.lo) < 0 {
			return 0, errors.Wrapf(basic.ErrTreeCorrupted, "page %s starts below its separator", p.Ref())
		}
		if b.hi != nil && ix.d.Compare(p.KeyAt(n-1), *b.hi) >= 0 {
			return 0, errors.Wrapf(basic.ErrTreeCorrupted, "page %s reaches the next separator", p.Ref())
		}
	}
	if !p.ComputeMeasures().Equal(p.Measures()) {
		return 0, errors.Wrapf(basic.ErrTreeCorrupted, "page %s measures %s, recomputed %s", p.Ref(), p.Measures(), p.ComputeMeasures())
	}

	if p.IsLeaf() {
		if depth != ix.d.Height() {
			return 0, errors.Wrapf(basic.ErrTreeCorrupted, "leaf %s at depth %d, height %d", p.Ref(), depth, ix.d.Height())
		}
		return int64(n), nil
	}

	var total int64
	for i := 0; i < n; i++ {
		child, err := ix.resolve(p.ChildAt(i))
		if err != nil {
			return 0, err
		}
		if !child.Measures().Equal(p.ChildMeasuresAt(i)) {
			return 0, errors.Wrapf(basic.ErrTreeCorrupted, "page %s holds stale measures for child %s", p.Ref(), child.Ref())
		}
		lo := p.KeyAt(i)
		cb := bound[K]{lo: &lo, hi: b.hi}
		if i+1 < n {
			hi := p.KeyAt(i + 1)
			cb.hi = &hi
		}
		count, err := ix.check(child, depth+1, cb, false)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}
