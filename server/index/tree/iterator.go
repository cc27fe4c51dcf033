package tree

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
)

// Iterator 沿射线方向逐条遍历记录。索引在遍历期间被修改后 Next 返回 false，
// Err 返回 ErrStaleIterator。
type Iterator[K, I any] struct {
	ix      *Index[K, I]
	dir     page.Direction
	version uint64

	stack   []step[K, I]
	leaf    *page.DataPage[K, I]
	pos     int
	started bool

	item I
	err  error
	done bool
}

// Scan 从 ray.Point 开始沿 ray.Direction 遍历：正向从第一个 >= Point 的记录开始，
// 反向从最后一个 <= Point 的记录开始
func (ix *Index[K, I]) Scan(ray page.Ray[K]) *Iterator[K, I] {
	it := &Iterator[K, I]{ix: ix, dir: ray.Direction, version: ix.d.Version()}
	if it.dir != page.Backward {
		it.dir = page.Forward
	}
	cur, err := ix.root()
	if err != nil {
		it.fail(err)
		return it
	}
	for !cur.IsLeaf() {
		if cur.CurrentSize() == 0 {
			it.fail(errors.Wrapf(basic.ErrTreeCorrupted, "empty inner page %s", cur.Ref()))
			return it
		}
		idx := cur.ChildIndexFor(ray.Point)
		it.stack = append(it.stack, step[K, I]{page: cur, index: idx})
		if cur, err = ix.resolve(cur.ChildAt(idx)); err != nil {
			it.fail(err)
			return it
		}
	}
	it.leaf = cur
	r := cur.SeekRay(page.Ray[K]{Point: ray.Point, Direction: it.dir})
	switch {
	case r.Type != page.SeekNone:
		it.pos = r.Index
	case it.dir == page.Forward:
		it.pos = cur.CurrentSize()
	default:
		it.pos = -1
	}
	return it
}

// Next 前进到下一条记录
func (it *Iterator[K, I]) Next() bool {
	if it.done {
		return false
	}
	if it.ix.d.Version() != it.version {
		it.fail(basic.ErrStaleIterator)
		return false
	}
	if it.started {
		it.pos += int(it.dir)
	}
	it.started = true
	for it.pos < 0 || it.pos >= it.leaf.CurrentSize() {
		ok, err := it.nextLeaf()
		if err != nil {
			it.fail(err)
			return false
		}
		if !ok {
			it.done = true
			return false
		}
	}
	it.item = it.leaf.ItemAt(it.pos)
	return true
}

// nextLeaf 回溯到还有未访问子页的内部页，再下降到相邻叶子页的起始位置
func (it *Iterator[K, I]) nextLeaf() (bool, error) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		next := top.index + int(it.dir)
		if next < 0 || next >= top.page.CurrentSize() {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		top.index = next
		cur, err := it.ix.resolve(top.page.ChildAt(next))
		if err != nil {
			return false, err
		}
		for !cur.IsLeaf() {
			idx := 0
			if it.dir == page.Backward {
				idx = cur.CurrentSize() - 1
			}
			it.stack = append(it.stack, step[K, I]{page: cur, index: idx})
			if cur, err = it.ix.resolve(cur.ChildAt(idx)); err != nil {
				return false, err
			}
		}
		it.leaf = cur
		if it.dir == page.Forward {
			it.pos = 0
		} else {
			it.pos = cur.CurrentSize() - 1
		}
		return true, nil
	}
	return false, nil
}

func (it *Iterator[K, I]) fail(err error) {
	it.err = err
	it.done = true
}

// Item 当前记录，仅在 Next 返回 true 后有效
func (it *Iterator[K, I]) Item() I { return it.item }

// Key 当前记录的键
func (it *Iterator[K, I]) Key() K { return it.ix.d.KeyOf(it.item) }

func (it *Iterator[K, I]) Err() error { return it.err }

// Range 返回 from <= key <= to 的全部记录，按键升序
func (ix *Index[K, I]) Range(from, to K) ([]I, error) {
	var items []I
	if ix.d.Compare(from, to) > 0 {
		return items, nil
	}
	it := ix.Scan(page.Ray[K]{Point: from, Direction: page.Forward})
	for it.Next() {
		if ix.d.Compare(it.Key(), to) > 0 {
			break
		}
		items = append(items, it.Item())
	}
	return items, it.Err()
}

// Ascend 按升序对每条记录调用 fn，fn 返回 false 时停止
func (ix *Index[K, I]) Ascend(fn func(item I) bool) error {
	root, err := ix.first(page.Forward)
	if err != nil {
		return err
	}
	it := ix.Scan(page.Ray[K]{Point: root, Direction: page.Forward})
	for it.Next() {
		if !fn(it.Item()) {
			break
		}
	}
	return it.Err()
}

// Descend 按降序对每条记录调用 fn，fn 返回 false 时停止
func (ix *Index[K, I]) Descend(fn func(item I) bool) error {
	last, err := ix.first(page.Backward)
	if err != nil {
		return err
	}
	it := ix.Scan(page.Ray[K]{Point: last, Direction: page.Backward})
	for it.Next() {
		if !fn(it.Item()) {
			break
		}
	}
	return it.Err()
}

// first 全量遍历的起点：正向取根页的首键（内部页的首个分隔键是整棵树的下界），
// 反向沿最右路径取最大键
func (ix *Index[K, I]) first(dir page.Direction) (K, error) {
	var zero K
	cur, err := ix.root()
	if err != nil {
		return zero, err
	}
	if cur.CurrentSize() == 0 {
		return zero, nil
	}
	if dir == page.Forward {
		return cur.KeyAt(0), nil
	}
	for !cur.IsLeaf() {
		if cur, err = ix.resolve(cur.ChildAt(cur.CurrentSize() - 1)); err != nil {
			return zero, err
		}
	}
	if cur.CurrentSize() == 0 {
		return zero, nil
	}
	return cur.KeyAt(cur.CurrentSize() - 1), nil
}
