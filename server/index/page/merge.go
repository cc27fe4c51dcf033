package page

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
)

// Merge 尝试把兄弟页并入本页，兄弟页可以在左侧也可以在右侧。
//
// 两页合计不超过本页容量时完全合并：兄弟页的全部槽位移入本页，度量合并，
// 兄弟页被清空，返回 true，调用方负责从父页删除并释放兄弟页。
// 否则部分合并：在两页间重新分配槽位，使两页占用之差不超过一（本页多得一个），
// 两页都重算度量，返回 false，兄弟页继续留在树中。
func (p *DataPage[K, I]) Merge(sibling *DataPage[K, I]) (bool, error) {
	if sibling == nil || sibling == p {
		return false, errors.New("merge requires a distinct sibling page")
	}
	if sibling.kind != p.kind {
		return false, errors.Wrapf(basic.ErrIncompatibleKind, "merge %s page into %s page", sibling.kind, p.kind)
	}
	if sibling.descriptor != p.descriptor {
		return false, errors.Wrapf(basic.ErrForeignPage, "merge page %s", sibling.Ref())
	}

	siblingOnRight, err := p.siblingOnRight(sibling)
	if err != nil {
		return false, err
	}

	n, m := p.CurrentSize(), sibling.CurrentSize()
	total := n + m
	if total <= p.size {
		moved := sibling.cut(0, m)
		if siblingOnRight {
			p.appendRange(moved)
		} else {
			p.prependRange(moved)
		}
		p.addResults(sibling.measures)
		sibling.clear()
		p.UpdateVersion()
		sibling.UpdateVersion()
		return true, nil
	}

	target := (total + 1) / 2
	if total-target > sibling.size {
		return false, errors.Wrapf(basic.ErrPageFull, "redistribute %d slots over pages of %d and %d", total, p.size, sibling.size)
	}
	switch {
	case n < target:
		k := target - n
		if siblingOnRight {
			p.appendRange(sibling.cut(0, k))
		} else {
			p.prependRange(sibling.cut(m-k, m))
		}
	case n > target:
		k := n - target
		if siblingOnRight {
			sibling.prependRange(p.cut(n-k, n))
		} else {
			sibling.appendRange(p.cut(0, k))
		}
	}
	p.recalculate()
	sibling.recalculate()
	p.UpdateVersion()
	sibling.UpdateVersion()
	return false, nil
}

// siblingOnRight 判断兄弟页的位置，并确认两页键区间不重叠
func (p *DataPage[K, I]) siblingOnRight(sibling *DataPage[K, I]) (bool, error) {
	n, m := p.CurrentSize(), sibling.CurrentSize()
	if n == 0 || m == 0 {
		return true, nil
	}
	if p.compare(sibling.KeyAt(0), p.KeyAt(0)) > 0 {
		if p.compare(p.KeyAt(n-1), sibling.KeyAt(0)) >= 0 {
			return false, errors.Wrapf(basic.ErrUnsortedKeys, "pages %s and %s overlap", p.Ref(), sibling.Ref())
		}
		return true, nil
	}
	if p.compare(sibling.KeyAt(m-1), p.KeyAt(0)) >= 0 {
		return false, errors.Wrapf(basic.ErrUnsortedKeys, "pages %s and %s overlap", sibling.Ref(), p.Ref())
	}
	return false, nil
}
