package page

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
)

func measureOf(t *testing.T, rs *measure.ResultSet, name string) int64 {
	t.Helper()
	r, ok := rs.Get(name)
	require.True(t, ok, "measure %s", name)
	require.True(t, r.Valid, "measure %s", name)
	return r.Value.IntPart()
}

func requireConsistent(t *testing.T, p *DataPage[int64, int64]) {
	t.Helper()
	fresh := p.ComputeMeasures()
	require.True(t, fresh.Equal(p.Measures()), "incremental %s, folded %s", p.Measures(), fresh)
}

func TestSeek(t *testing.T) {
	tp := newTestProvider(8, 8)
	p := tp.leafWith(10, 20, 30)

	t.Run("精确匹配", func(t *testing.T) {
		assert.Equal(t, SeekResult{Type: SeekExact, Index: 1}, p.Seek(20))
		assert.Equal(t, SeekResult{Type: SeekExact, Index: 0}, p.Seek(10))
	})

	t.Run("最近插入位置", func(t *testing.T) {
		assert.Equal(t, SeekResult{Type: SeekNearest, Index: 2}, p.Seek(25))
		assert.Equal(t, SeekResult{Type: SeekNearest, Index: 0}, p.Seek(5))
		assert.Equal(t, SeekResult{Type: SeekNearest, Index: 3}, p.Seek(99))
	})

	t.Run("空页", func(t *testing.T) {
		empty := tp.leafWith()
		assert.Equal(t, SeekNone, empty.Seek(1).Type)
		assert.Equal(t, SeekNone, empty.SeekRay(Ray[int64]{Point: 1, Direction: Forward}).Type)
	})

	t.Run("查找不改变版本", func(t *testing.T) {
		v := p.Version()
		p.Seek(20)
		p.SeekRay(Ray[int64]{Point: 15, Direction: Backward})
		assert.Equal(t, v, p.Version())
	})
}

func TestSeekRay(t *testing.T) {
	tp := newTestProvider(8, 8)
	p := tp.leafWith(10, 20, 30)

	cases := []struct {
		name string
		ray  Ray[int64]
		want SeekResult
	}{
		{"正向落在两键之间", Ray[int64]{15, Forward}, SeekResult{SeekNearest, 1}},
		{"正向命中", Ray[int64]{20, Forward}, SeekResult{SeekExact, 1}},
		{"正向越过末尾", Ray[int64]{35, Forward}, SeekResult{Type: SeekNone}},
		{"正向在首键之前", Ray[int64]{1, Forward}, SeekResult{SeekNearest, 0}},
		{"反向落在两键之间", Ray[int64]{15, Backward}, SeekResult{SeekNearest, 0}},
		{"反向命中", Ray[int64]{30, Backward}, SeekResult{SeekExact, 2}},
		{"反向在首键之前", Ray[int64]{5, Backward}, SeekResult{Type: SeekNone}},
		{"反向越过末尾", Ray[int64]{40, Backward}, SeekResult{SeekNearest, 2}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, p.SeekRay(c.ray))
		})
	}
}

func TestInsertErrors(t *testing.T) {
	tp := newTestProvider(4, 4)
	p := tp.leafWith(10, 20, 30)

	err := p.Insert(2, 5)
	assert.True(t, errors.Is(err, basic.ErrUnsortedKeys))

	err = p.Insert(1, 20)
	assert.True(t, errors.Is(err, basic.ErrUnsortedKeys))

	err = p.Insert(7, 40)
	assert.True(t, errors.Is(err, basic.ErrIndexOutOfRange))

	err = p.InsertChild(0, 1, NullReference, nil)
	assert.True(t, errors.Is(err, basic.ErrIncompatibleKind))

	require.NoError(t, p.Insert(3, 40))
	assert.True(t, p.IsFull())
	err = p.Insert(4, 50)
	assert.True(t, errors.Is(err, basic.ErrPageFull))

	assert.Equal(t, []int64{10, 20, 30, 40}, keysOf(p))
	requireConsistent(t, p)
}

func TestRemoveAndMeasures(t *testing.T) {
	tp := newTestProvider(8, 8)
	p := tp.leafWith(10, 20, 30)

	assert.Equal(t, int64(3), measureOf(t, p.Measures(), "count"))
	assert.Equal(t, int64(60), measureOf(t, p.Measures(), "sum"))

	t.Run("删除最小值后重算", func(t *testing.T) {
		v := p.Version()
		require.NoError(t, p.Remove(0))
		assert.Equal(t, v+1, p.Version())
		assert.Equal(t, []int64{20, 30}, keysOf(p))
		ms := p.Measures()
		assert.Equal(t, int64(2), measureOf(t, ms, "count"))
		assert.Equal(t, int64(50), measureOf(t, ms, "sum"))
		assert.Equal(t, int64(20), measureOf(t, ms, "min"))
		assert.Equal(t, int64(30), measureOf(t, ms, "max"))
	})

	t.Run("越界", func(t *testing.T) {
		err := p.Remove(2)
		assert.True(t, errors.Is(err, basic.ErrIndexOutOfRange))
	})

	t.Run("删空后回到单位元", func(t *testing.T) {
		require.NoError(t, p.Remove(1))
		require.NoError(t, p.Remove(0))
		ms := p.Measures()
		assert.Equal(t, int64(0), measureOf(t, ms, "count"))
		r, ok := ms.Get("min")
		require.True(t, ok)
		assert.False(t, r.Valid)
	})
}

func TestReplace(t *testing.T) {
	tp := newTestProvider(8, 8)
	p := tp.leafWith(1, 2, 3)
	require.NoError(t, p.Replace(1, 2))
	requireConsistent(t, p)

	err := p.Replace(1, 7)
	assert.True(t, errors.Is(err, basic.ErrUnsortedKeys))
}

func TestSplit(t *testing.T) {
	t.Run("偶数个槽位", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		p := tp.leafWith(1, 2, 3, 4)
		v := p.Version()

		sibling, err := p.Split()
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, keysOf(p))
		assert.Equal(t, []int64{3, 4}, keysOf(sibling))
		assert.Greater(t, p.Version(), v)
		assert.Greater(t, sibling.Version(), uint64(0))

		_, assigned := sibling.Reference()
		assert.False(t, assigned)

		assert.Equal(t, int64(3), measureOf(t, p.Measures(), "sum"))
		assert.Equal(t, int64(7), measureOf(t, sibling.Measures(), "sum"))
		assert.Equal(t, int64(2), measureOf(t, p.Measures(), "max"))
		requireConsistent(t, p)
		requireConsistent(t, sibling)
	})

	t.Run("奇数个槽位左页多一个", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		p := tp.leafWith(1, 2, 3)
		sibling, err := p.Split()
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, keysOf(p))
		assert.Equal(t, []int64{3}, keysOf(sibling))
	})

	t.Run("单个槽位不能拆分", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		_, err := tp.leafWith(1).Split()
		assert.Error(t, err)
	})
}

func TestMerge(t *testing.T) {
	t.Run("部分合并", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		p := tp.leafWith(1)
		s := tp.leafWith(2, 3, 4, 5)

		full, err := p.Merge(s)
		require.NoError(t, err)
		assert.False(t, full)
		assert.Equal(t, []int64{1, 2, 3}, keysOf(p))
		assert.Equal(t, []int64{4, 5}, keysOf(s))
		requireConsistent(t, p)
		requireConsistent(t, s)
	})

	t.Run("兄弟页在左侧的部分合并", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		p := tp.leafWith(5)
		s := tp.leafWith(1, 2, 3, 4)

		full, err := p.Merge(s)
		require.NoError(t, err)
		assert.False(t, full)
		assert.Equal(t, []int64{3, 4, 5}, keysOf(p))
		assert.Equal(t, []int64{1, 2}, keysOf(s))
		requireConsistent(t, p)
		requireConsistent(t, s)
	})

	t.Run("完全合并", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		p := tp.leafWith(1, 2)
		s := tp.leafWith(3, 4)

		full, err := p.Merge(s)
		require.NoError(t, err)
		assert.True(t, full)
		assert.Equal(t, []int64{1, 2, 3, 4}, keysOf(p))
		assert.Equal(t, 0, s.CurrentSize())
		assert.Equal(t, int64(10), measureOf(t, p.Measures(), "sum"))
		assert.Equal(t, int64(0), measureOf(t, s.Measures(), "count"))
		requireConsistent(t, p)
	})

	t.Run("兄弟页在左侧的完全合并", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		p := tp.leafWith(3, 4)
		s := tp.leafWith(1, 2)

		full, err := p.Merge(s)
		require.NoError(t, err)
		assert.True(t, full)
		assert.Equal(t, []int64{1, 2, 3, 4}, keysOf(p))
	})

	t.Run("键区间重叠", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		_, err := tp.leafWith(1, 3).Merge(tp.leafWith(2, 4))
		assert.True(t, errors.Is(err, basic.ErrUnsortedKeys))
	})

	t.Run("种类不同", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		inner, err := NewPage[int64, int64](tp, KindInner)
		require.NoError(t, err)
		_, err = tp.leafWith(1).Merge(inner)
		assert.True(t, errors.Is(err, basic.ErrIncompatibleKind))
	})

	t.Run("不同索引的页面", func(t *testing.T) {
		a, b := newTestProvider(4, 4), newTestProvider(4, 4)
		_, err := a.leafWith(1).Merge(b.leafWith(2))
		assert.True(t, errors.Is(err, basic.ErrForeignPage))
	})
}

func TestSplitMergeInverse(t *testing.T) {
	tp := newTestProvider(6, 6)
	p := tp.leafWith(1, 2, 3, 4, 5, 6)
	before := p.Measures()

	sibling, err := p.Split()
	require.NoError(t, err)
	require.NoError(t, tp.AssignReference(sibling))

	full, err := p.Merge(sibling)
	require.NoError(t, err)
	assert.True(t, full)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, keysOf(p))
	assert.True(t, before.Equal(p.Measures()))

	require.NoError(t, tp.Release(sibling))
	assert.Equal(t, 1, tp.released)
}

func TestIncrementalMeasuresOnRandomOps(t *testing.T) {
	tp := newTestProvider(16, 16)
	p := tp.leafWith()
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		key := rnd.Int63n(200) - 100
		switch op := rnd.Intn(3); {
		case op < 2 && !p.IsFull():
			r := p.Seek(key)
			if r.Type == SeekExact {
				require.NoError(t, p.Replace(r.Index, key))
			} else {
				require.NoError(t, p.Insert(r.Index, key))
			}
		case p.CurrentSize() > 0:
			require.NoError(t, p.Remove(rnd.Intn(p.CurrentSize())))
		}
		requireConsistent(t, p)
	}
	require.NoError(t, p.Validate())
}

func TestVersionBumps(t *testing.T) {
	tp := newTestProvider(8, 8)
	p := tp.leafWith()
	assert.Equal(t, uint64(0), p.Version())

	require.NoError(t, p.Insert(0, 1))
	assert.Equal(t, uint64(1), p.Version())

	p.RecalculateMeasures()
	assert.Equal(t, uint64(1), p.Version())

	p.AddToMeasures(5)
	assert.Equal(t, uint64(2), p.Version())
	p.RecalculateMeasures()
	assert.Equal(t, uint64(3), p.Version())
	requireConsistent(t, p)
}

func TestInnerPage(t *testing.T) {
	tp := newTestProvider(4, 3)
	l1 := tp.leafWith(1, 2)
	l2 := tp.leafWith(5, 6)
	inner, err := NewPage[int64, int64](tp, KindInner)
	require.NoError(t, err)

	require.NoError(t, inner.InsertChild(0, 1, l1.Ref(), l1.Measures()))
	require.NoError(t, inner.InsertChild(1, 5, l2.Ref(), l2.Measures()))

	t.Run("度量是子树快照的合并", func(t *testing.T) {
		ms := inner.Measures()
		assert.Equal(t, int64(4), measureOf(t, ms, "count"))
		assert.Equal(t, int64(14), measureOf(t, ms, "sum"))
		assert.Equal(t, int64(1), measureOf(t, ms, "min"))
		assert.Equal(t, int64(6), measureOf(t, ms, "max"))
	})

	t.Run("子页定位", func(t *testing.T) {
		assert.Equal(t, 0, inner.ChildIndexFor(0))
		assert.Equal(t, 0, inner.ChildIndexFor(3))
		assert.Equal(t, 1, inner.ChildIndexFor(5))
		assert.Equal(t, 1, inner.ChildIndexFor(9))
		assert.Equal(t, l2.Ref(), inner.ChildAt(1))
	})

	t.Run("刷新子页快照", func(t *testing.T) {
		require.NoError(t, l2.Insert(2, 7))
		require.NoError(t, inner.RefreshChild(1, l2.Ref(), l2.Measures()))
		ms := inner.Measures()
		assert.Equal(t, int64(5), measureOf(t, ms, "count"))
		assert.Equal(t, int64(21), measureOf(t, ms, "sum"))
		assert.Equal(t, int64(7), measureOf(t, ms, "max"))
		requireConsistent(t, inner)
	})

	t.Run("分隔键必须保持有序", func(t *testing.T) {
		err := inner.SetKeyAt(0, 6)
		assert.True(t, errors.Is(err, basic.ErrUnsortedKeys))
		require.NoError(t, inner.SetKeyAt(0, 0))
		assert.Equal(t, int64(0), inner.KeyAt(0))
	})

	t.Run("删除子页槽位", func(t *testing.T) {
		require.NoError(t, inner.Remove(0))
		ms := inner.Measures()
		assert.Equal(t, int64(3), measureOf(t, ms, "count"))
		assert.Equal(t, int64(5), measureOf(t, ms, "min"))
		requireConsistent(t, inner)
	})

	t.Run("叶子页操作不适用", func(t *testing.T) {
		err := inner.Insert(0, 1)
		assert.True(t, errors.Is(err, basic.ErrIncompatibleKind))
	})
}

func TestInnerSplit(t *testing.T) {
	tp := newTestProvider(4, 3)
	inner, err := NewPage[int64, int64](tp, KindInner)
	require.NoError(t, err)
	for i, first := range []int64{1, 10, 20} {
		leaf := tp.leafWith(first, first+1)
		require.NoError(t, inner.InsertChild(i, first, leaf.Ref(), leaf.Measures()))
	}

	sibling, err := inner.Split()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 10}, keysOf(inner))
	assert.Equal(t, []int64{20}, keysOf(sibling))
	assert.Equal(t, int64(41), measureOf(t, sibling.Measures(), "sum"))
	assert.Equal(t, int64(4), measureOf(t, inner.Measures(), "count"))
	requireConsistent(t, inner)
	requireConsistent(t, sibling)
}

func TestPageUnion(t *testing.T) {
	tp := newTestProvider(4, 4)
	leaf := tp.leafWith(1)

	var pg Page[int64, int64] = leaf
	assert.Equal(t, KindLeaf, pg.Kind())
	assert.NotNil(t, pg.AsLeafPage())
	assert.NotNil(t, pg.AsDataPage())
	assert.Nil(t, pg.AsInnerPage())
	assert.Nil(t, pg.AsDescriptorPage())
	assert.Same(t, tp.descriptor, pg.Descriptor())

	pg = tp.descriptor
	assert.Equal(t, KindDescriptor, pg.Kind())
	assert.Nil(t, pg.AsDataPage())
	assert.Nil(t, pg.AsLeafPage())
	assert.Equal(t, DescriptorReference, pg.Ref())

	_, err := ResolveData[int64, int64](tp, DescriptorReference)
	assert.True(t, errors.Is(err, basic.ErrIncompatibleKind))

	got, err := ResolveData[int64, int64](tp, leaf.Ref())
	require.NoError(t, err)
	assert.Same(t, leaf, got)
}

func TestDescriptor(t *testing.T) {
	t.Run("容量过小", func(t *testing.T) {
		_, err := NewDescriptorPage(Options[int64, int64]{
			Comparer: compareInt64, Extractor: identity, LeafSize: 2, InnerSize: 4,
		}, false)
		assert.True(t, errors.Is(err, basic.ErrInvalidCapacity))
	})

	t.Run("重复的度量名称", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		err := tp.descriptor.DeclareMeasure(measure.NewSum("sum", asDecimal))
		assert.True(t, errors.Is(err, basic.ErrDuplicateMeasure))
	})

	t.Run("创建数据页后封存", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		assert.False(t, tp.descriptor.IsSealed())
		tp.leafWith()
		assert.True(t, tp.descriptor.IsSealed())
		err := tp.descriptor.DeclareMeasure(measure.NewSum("other", asDecimal))
		assert.True(t, errors.Is(err, basic.ErrDescriptorSealed))
	})

	t.Run("恢复状态", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		state := tp.descriptor.State()
		state.Root = MustOffsetReference(128)
		state.Height = 2
		state.ItemCount = 9
		require.NoError(t, tp.descriptor.Restore(state))

		root, ok := tp.descriptor.Root()
		assert.True(t, ok)
		assert.Equal(t, MustOffsetReference(128), root)
		assert.Equal(t, int64(9), tp.descriptor.ItemCount())
		assert.True(t, tp.descriptor.IsPersisted())
		assert.True(t, tp.descriptor.IsSealed())
	})

	t.Run("配置不一致", func(t *testing.T) {
		tp := newTestProvider(4, 4)
		state := tp.descriptor.State()
		state.LeafSize = 8
		assert.True(t, errors.Is(tp.descriptor.Restore(state), basic.ErrDescriptorMismatch))

		state = tp.descriptor.State()
		state.MeasureNames = []string{"count", "sum", "max", "min"}
		assert.True(t, errors.Is(tp.descriptor.Restore(state), basic.ErrDescriptorMismatch))
	})
}

func TestImageRestore(t *testing.T) {
	tp := newTestProvider(4, 4)
	p := tp.leafWith(1, 2, 3)

	ref := MustOffsetReference(256)
	restored, err := RestoreDataPage(tp.descriptor, ref, p.Image())
	require.NoError(t, err)
	assert.True(t, restored.IsPersisted())
	assert.Equal(t, p.Version(), restored.Version())
	assert.Equal(t, ref, restored.Ref())
	assert.Equal(t, keysOf(p), keysOf(restored))
	assert.True(t, p.Measures().Equal(restored.Measures()))

	require.NoError(t, restored.Insert(3, 4))
	assert.False(t, restored.IsPersisted())

	t.Run("乱序镜像", func(t *testing.T) {
		img := p.Image()
		img.Items = []int64{3, 1, 2}
		_, err := RestoreDataPage(tp.descriptor, ref, img)
		assert.True(t, errors.Is(err, basic.ErrPageCorrupted))
	})

	t.Run("容量不一致", func(t *testing.T) {
		img := p.Image()
		img.Size = 8
		_, err := RestoreDataPage(tp.descriptor, ref, img)
		assert.True(t, errors.Is(err, basic.ErrDescriptorMismatch))
	})
}

func TestMeasureHelpers(t *testing.T) {
	tp := newTestProvider(8, 8)
	p := tp.leafWith(1, 2, 3, 4)
	q := tp.leafWith(5, 6)

	t.Run("AddToMeasures", func(t *testing.T) {
		v := p.Version()
		p.items = append(p.items, 5)
		p.AddToMeasures(5)
		assert.Equal(t, v+1, p.Version())
		requireConsistent(t, p)
		p.items = p.items[:4]
		p.RecalculateMeasures()
		requireConsistent(t, p)
	})

	t.Run("CombineOtherPage", func(t *testing.T) {
		v := p.Version()
		p.AddResultsToMeasures(q.Measures())
		assert.Equal(t, v+1, p.Version())
		ms := p.Measures()
		assert.Equal(t, int64(6), measureOf(t, ms, "count"))
		assert.Equal(t, int64(21), measureOf(t, ms, "sum"))
		assert.Equal(t, int64(1), measureOf(t, ms, "min"))
		assert.Equal(t, int64(6), measureOf(t, ms, "max"))
	})

	t.Run("DecombineOtherPage", func(t *testing.T) {
		// 减去的 max 恰好是当前 max，只能重算
		v := p.Version()
		p.SubtractResultsFromMeasures(q.Measures())
		assert.Equal(t, v+1, p.Version())
		requireConsistent(t, p)
		assert.Equal(t, int64(4), measureOf(t, p.Measures(), "max"))
	})

	t.Run("SubtractCurrentMax", func(t *testing.T) {
		v := p.Version()
		p.items = p.items[:3]
		p.SubtractFromMeasures(4)
		assert.Equal(t, v+1, p.Version())
		requireConsistent(t, p)
		ms := p.Measures()
		assert.Equal(t, int64(3), measureOf(t, ms, "max"))
		assert.Equal(t, int64(6), measureOf(t, ms, "sum"))
	})

	t.Run("SubtractCurrentMin", func(t *testing.T) {
		v := p.Version()
		p.items = p.items[1:]
		p.SubtractFromMeasures(1)
		assert.Equal(t, v+1, p.Version())
		requireConsistent(t, p)
		assert.Equal(t, int64(2), measureOf(t, p.Measures(), "min"))
	})
}
