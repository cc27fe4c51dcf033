package tree

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zhukovaskychina/xmysql-index/logger"
	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
)

// Index 建立在 page.Provider 之上的有序索引。
//
// 内部页的分隔键是对应子树中所有键的下界，插入时满页先拆分再下降，
// 删除后自底向上处理下溢。每次修改都会沿路径刷新所有祖先的子树度量快照，
// 所以根页的度量始终是整个索引的聚合值。
//
// Index 不做内部同步，同一时刻只允许一个写者。
type Index[K, I any] struct {
	provider page.Provider[K, I]
	d        *page.DescriptorPage[K, I]
	log      *logrus.Entry
}

// step 下降路径上的一层：内部页及所选子页的槽位
type step[K, I any] struct {
	page  *page.DataPage[K, I]
	index int
}

// New 打开 provider 上的索引，描述页还没有根页时创建一个空叶子页作为根
func New[K, I any](provider page.Provider[K, I]) (*Index[K, I], error) {
	ix := &Index[K, I]{
		provider: provider,
		d:        provider.Descriptor(),
		log:      logger.WithComponent("tree"),
	}
	if ref, ok := ix.d.Root(); ok {
		if _, err := ix.resolve(ref); err != nil {
			return nil, errors.Wrap(err, "open root page")
		}
		return ix, nil
	}
	root, err := page.NewPage(provider, page.KindLeaf)
	if err != nil {
		return nil, errors.Wrap(err, "create root page")
	}
	if err := provider.MarkDirty(root); err != nil {
		return nil, err
	}
	ix.d.SetRoot(root.Ref())
	ix.d.SetHeight(1)
	return ix, nil
}

func (ix *Index[K, I]) Descriptor() *page.DescriptorPage[K, I] { return ix.d }

// Len 记录总数
func (ix *Index[K, I]) Len() int64 { return ix.d.ItemCount() }

// Height 从根到叶子的层数，只有一个叶子页时为 1
func (ix *Index[K, I]) Height() int { return ix.d.Height() }

func (ix *Index[K, I]) resolve(ref page.Reference) (*page.DataPage[K, I], error) {
	return page.ResolveData(ix.provider, ref)
}

func (ix *Index[K, I]) root() (*page.DataPage[K, I], error) {
	ref, ok := ix.d.Root()
	if !ok {
		return nil, errors.Wrap(basic.ErrTreeCorrupted, "index has no root page")
	}
	return ix.resolve(ref)
}

// Measures 整个索引的度量，直接取根页的值
func (ix *Index[K, I]) Measures() (*measure.ResultSet, error) {
	root, err := ix.root()
	if err != nil {
		return nil, err
	}
	return root.Measures(), nil
}

// Measure 按名称取整个索引的单个度量
func (ix *Index[K, I]) Measure(name string) (measure.Result, error) {
	rs, err := ix.Measures()
	if err != nil {
		return measure.Result{}, err
	}
	r, ok := rs.Get(name)
	if !ok {
		return measure.Result{}, errors.Wrapf(basic.ErrMeasureNotFound, "measure %q", name)
	}
	return r, nil
}

// descend 只读下降到负责 key 的叶子页
func (ix *Index[K, I]) descend(key K) (*page.DataPage[K, I], []step[K, I], error) {
	cur, err := ix.root()
	if err != nil {
		return nil, nil, err
	}
	path := make([]step[K, I], 0, ix.d.Height())
	for !cur.IsLeaf() {
		if cur.CurrentSize() == 0 {
			return nil, nil, errors.Wrapf(basic.ErrTreeCorrupted, "empty inner page %s", cur.Ref())
		}
		idx := cur.ChildIndexFor(key)
		child, err := ix.resolve(cur.ChildAt(idx))
		if err != nil {
			return nil, nil, err
		}
		path = append(path, step[K, I]{page: cur, index: idx})
		cur = child
	}
	return cur, path, nil
}

// Get 按键查找记录
func (ix *Index[K, I]) Get(key K) (I, bool, error) {
	var zero I
	leaf, _, err := ix.descend(key)
	if err != nil {
		return zero, false, err
	}
	r := leaf.Seek(key)
	if r.Type != page.SeekExact {
		return zero, false, nil
	}
	return leaf.ItemAt(r.Index), true, nil
}

func (ix *Index[K, I]) Contains(key K) (bool, error) {
	_, ok, err := ix.Get(key)
	return ok, err
}

// Insert 插入新记录，键已存在时返回 ErrDuplicateKey
func (ix *Index[K, I]) Insert(item I) error {
	_, err := ix.insert(item, false)
	return err
}

// Upsert 插入或替换同键记录，返回是否发生了替换
func (ix *Index[K, I]) Upsert(item I) (bool, error) {
	return ix.insert(item, true)
}

func (ix *Index[K, I]) insert(item I, replace bool) (bool, error) {
	key := ix.d.KeyOf(item)
	cur, err := ix.root()
	if err != nil {
		return false, err
	}
	if cur.IsFull() {
		if cur, err = ix.growRoot(cur); err != nil {
			return false, err
		}
	}

	path := make([]step[K, I], 0, ix.d.Height())
	for !cur.IsLeaf() {
		idx := cur.ChildIndexFor(key)
		if idx == 0 && ix.d.Compare(key, cur.KeyAt(0)) < 0 {
			if err := cur.SetKeyAt(0, key); err != nil {
				return false, err
			}
		}
		child, err := ix.resolve(cur.ChildAt(idx))
		if err != nil {
			return false, err
		}
		if child.IsFull() {
			sibling, err := ix.split(cur, idx, child)
			if err != nil {
				return false, err
			}
			if ix.d.Compare(key, sibling.KeyAt(0)) >= 0 {
				child, idx = sibling, idx+1
			}
		}
		path = append(path, step[K, I]{page: cur, index: idx})
		cur = child
	}

	var replaced bool
	r := cur.Seek(key)
	switch {
	case r.Type == page.SeekExact && !replace:
		err = errors.Wrapf(basic.ErrDuplicateKey, "key %v", key)
	case r.Type == page.SeekExact:
		err = cur.Replace(r.Index, item)
		replaced = err == nil
	default:
		if err = cur.Insert(r.Index, item); err == nil {
			ix.d.AddItemCount(1)
		}
	}
	// 拆分可能已经发生，即使插入失败也要刷新路径
	if perr := ix.propagate(cur, path); perr != nil {
		return false, perr
	}
	return replaced, err
}

// split 拆分 parent 中 idx 处的满子页，把新兄弟页插到 idx+1
func (ix *Index[K, I]) split(parent *page.DataPage[K, I], idx int, child *page.DataPage[K, I]) (*page.DataPage[K, I], error) {
	sibling, err := child.Split()
	if err != nil {
		return nil, err
	}
	if err := ix.provider.AssignReference(sibling); err != nil {
		return nil, err
	}
	if err := parent.RefreshChild(idx, child.Ref(), child.Measures()); err != nil {
		return nil, err
	}
	if err := parent.InsertChild(idx+1, sibling.KeyAt(0), sibling.Ref(), sibling.Measures()); err != nil {
		return nil, err
	}
	if err := ix.markDirty(child, sibling); err != nil {
		return nil, err
	}
	ix.log.WithFields(logrus.Fields{
		"kind":    child.Kind(),
		"page":    child.Ref(),
		"sibling": sibling.Ref(),
	}).Debug("page split")
	return sibling, nil
}

// growRoot 拆分满的根页，新根是一个有两个子页的内部页
func (ix *Index[K, I]) growRoot(root *page.DataPage[K, I]) (*page.DataPage[K, I], error) {
	sibling, err := root.Split()
	if err != nil {
		return nil, err
	}
	if err := ix.provider.AssignReference(sibling); err != nil {
		return nil, err
	}
	newRoot, err := page.NewPage(ix.provider, page.KindInner)
	if err != nil {
		return nil, err
	}
	if err := newRoot.InsertChild(0, root.KeyAt(0), root.Ref(), root.Measures()); err != nil {
		return nil, err
	}
	if err := newRoot.InsertChild(1, sibling.KeyAt(0), sibling.Ref(), sibling.Measures()); err != nil {
		return nil, err
	}
	if err := ix.markDirty(root, sibling, newRoot); err != nil {
		return nil, err
	}
	ix.d.SetRoot(newRoot.Ref())
	ix.d.SetHeight(ix.d.Height() + 1)
	ix.log.WithFields(logrus.Fields{
		"root":   newRoot.Ref(),
		"height": ix.d.Height(),
	}).Debug("root split")
	return newRoot, nil
}

// propagate 把叶子页的变化沿路径向上刷新到根
func (ix *Index[K, I]) propagate(leaf *page.DataPage[K, I], path []step[K, I]) error {
	if err := ix.provider.MarkDirty(leaf); err != nil {
		return err
	}
	child := leaf
	for i := len(path) - 1; i >= 0; i-- {
		parent := path[i].page
		if err := parent.RefreshChild(path[i].index, child.Ref(), child.Measures()); err != nil {
			return err
		}
		if err := ix.provider.MarkDirty(parent); err != nil {
			return err
		}
		child = parent
	}
	return nil
}

// Remove 删除并返回键对应的记录，键不存在时返回 ErrKeyNotFound 且索引不变
func (ix *Index[K, I]) Remove(key K) (I, error) {
	var zero I
	leaf, path, err := ix.descend(key)
	if err != nil {
		return zero, err
	}
	r := leaf.Seek(key)
	if r.Type != page.SeekExact {
		return zero, errors.Wrapf(basic.ErrKeyNotFound, "key %v", key)
	}
	item := leaf.ItemAt(r.Index)
	if err := leaf.Remove(r.Index); err != nil {
		return zero, err
	}
	ix.d.AddItemCount(-1)
	if err := ix.provider.MarkDirty(leaf); err != nil {
		return zero, err
	}

	child := leaf
	for i := len(path) - 1; i >= 0; i-- {
		parent := path[i].page
		if err := ix.rebalance(parent, path[i].index, child); err != nil {
			return zero, err
		}
		if err := ix.provider.MarkDirty(parent); err != nil {
			return zero, err
		}
		child = parent
	}
	if err := ix.collapseRoot(); err != nil {
		return zero, err
	}
	return item, nil
}

// minOccupancy 低于该值的非根页面需要与兄弟页合并
func minOccupancy[K, I any](p *page.DataPage[K, I]) int {
	return p.Size() / 2
}

// rebalance 处理 parent 中 idx 处子页的下溢，并刷新相关快照。
// 空子页直接摘除；其余下溢优先与左兄弟合并。
func (ix *Index[K, I]) rebalance(parent *page.DataPage[K, I], idx int, child *page.DataPage[K, I]) error {
	n := child.CurrentSize()
	switch {
	case n == 0:
		if err := parent.Remove(idx); err != nil {
			return err
		}
		ix.log.WithField("page", child.Ref()).Debug("empty page released")
		return ix.provider.Release(child)

	case n < minOccupancy(child) && parent.CurrentSize() > 1:
		li := idx - 1
		var left, right *page.DataPage[K, I]
		var err error
		if idx > 0 {
			right = child
			if left, err = ix.resolve(parent.ChildAt(li)); err != nil {
				return err
			}
		} else {
			li = 0
			left = child
			if right, err = ix.resolve(parent.ChildAt(1)); err != nil {
				return err
			}
		}

		full, err := left.Merge(right)
		if err != nil {
			return err
		}
		if err := parent.RefreshChild(li, left.Ref(), left.Measures()); err != nil {
			return err
		}
		if err := ix.provider.MarkDirty(left); err != nil {
			return err
		}
		if full {
			if err := parent.Remove(li + 1); err != nil {
				return err
			}
			ix.log.WithFields(logrus.Fields{
				"kind":     left.Kind(),
				"page":     left.Ref(),
				"released": right.Ref(),
			}).Debug("pages merged")
			return ix.provider.Release(right)
		}
		if err := parent.RefreshChild(li+1, right.Ref(), right.Measures()); err != nil {
			return err
		}
		if err := parent.SetKeyAt(li+1, right.KeyAt(0)); err != nil {
			return err
		}
		ix.log.WithFields(logrus.Fields{
			"kind":  left.Kind(),
			"left":  left.Ref(),
			"right": right.Ref(),
		}).Debug("pages redistributed")
		return ix.provider.MarkDirty(right)

	default:
		return parent.RefreshChild(idx, child.Ref(), child.Measures())
	}
}

// collapseRoot 根内部页只剩一个子页时由子页接替，没有子页时换成空叶子页
func (ix *Index[K, I]) collapseRoot() error {
	for {
		root, err := ix.root()
		if err != nil {
			return err
		}
		if root.IsLeaf() || root.CurrentSize() > 1 {
			return nil
		}
		var next *page.DataPage[K, I]
		if root.CurrentSize() == 1 {
			if next, err = ix.resolve(root.ChildAt(0)); err != nil {
				return err
			}
			ix.d.SetHeight(ix.d.Height() - 1)
		} else {
			if next, err = page.NewPage(ix.provider, page.KindLeaf); err != nil {
				return err
			}
			if err := ix.provider.MarkDirty(next); err != nil {
				return err
			}
			ix.d.SetHeight(1)
		}
		if err := ix.provider.Release(root); err != nil {
			return err
		}
		ix.d.SetRoot(next.Ref())
		ix.log.WithFields(logrus.Fields{
			"root":   next.Ref(),
			"height": ix.d.Height(),
		}).Debug("root collapsed")
	}
}

func (ix *Index[K, I]) markDirty(pages ...*page.DataPage[K, I]) error {
	for _, p := range pages {
		if err := ix.provider.MarkDirty(p); err != nil {
			return err
		}
	}
	return nil
}

// Flush 持久化全部修改
func (ix *Index[K, I]) Flush() error {
	return ix.provider.Flush()
}

func (ix *Index[K, I]) Close() error {
	return ix.provider.Close()
}
