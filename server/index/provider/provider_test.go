package provider

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/codec"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
)

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func int64Options(leafSize int) page.Options[int64, int64] {
	return page.Options[int64, int64]{
		Comparer:  compareInt64,
		Extractor: func(v int64) int64 { return v },
		LeafSize:  leafSize,
		InnerSize: 4,
		Measures: []measure.Measure[int64]{
			measure.NewCount[int64](),
			measure.NewSum("sum", func(v int64) decimal.Decimal { return decimal.New(v, 0) }),
		},
	}
}

func streamOptions(path string, c codec.Compression) StreamOptions[int64, int64] {
	return StreamOptions[int64, int64]{
		Path:        path,
		CachePages:  16,
		Compression: c,
		Keys:        codec.Int64Serializer{},
		Items:       codec.Int64Serializer{},
	}
}

func fillLeaf(t *testing.T, p page.Provider[int64, int64], items ...int64) *page.DataPage[int64, int64] {
	t.Helper()
	leaf, err := page.NewPage(p, page.KindLeaf)
	require.NoError(t, err)
	for i, v := range items {
		require.NoError(t, leaf.Insert(i, v))
	}
	return leaf
}

func keysOf(p *page.DataPage[int64, int64]) []int64 {
	keys := make([]int64, p.CurrentSize())
	for i := range keys {
		keys[i] = p.KeyAt(i)
	}
	return keys
}

func TestMemoryProvider(t *testing.T) {
	m, err := NewMemory(int64Options(4))
	require.NoError(t, err)

	leaf := fillLeaf(t, m, 1, 2, 3)
	ref, ok := leaf.Reference()
	require.True(t, ok)
	assert.Equal(t, page.RefSelf, ref.Kind())
	assert.Equal(t, 1, m.PageCount())

	t.Run("按引用取页", func(t *testing.T) {
		got, err := page.ResolveData[int64, int64](m, ref)
		require.NoError(t, err)
		assert.Same(t, leaf, got)

		d, err := m.Resolve(page.DescriptorReference)
		require.NoError(t, err)
		assert.Equal(t, page.KindDescriptor, d.Kind())

		_, err = m.Resolve(page.NullReference)
		assert.True(t, errors.Is(err, basic.ErrPageNotFound))
	})

	t.Run("未分配引用的页面", func(t *testing.T) {
		p, err := m.CreatePage(page.KindLeaf)
		require.NoError(t, err)
		assert.True(t, errors.Is(m.MarkDirty(p), basic.ErrUnassigned))
	})

	t.Run("重复分配", func(t *testing.T) {
		assert.Error(t, m.AssignReference(leaf))
	})

	t.Run("释放", func(t *testing.T) {
		require.NoError(t, m.Release(leaf))
		_, err := m.Resolve(ref)
		assert.True(t, errors.Is(err, basic.ErrPageNotFound))
		assert.Equal(t, int64(1), m.Stats().Snapshot().ReleasedPages)
	})

	t.Run("关闭后不可用", func(t *testing.T) {
		require.NoError(t, m.Close())
		_, err := m.CreatePage(page.KindLeaf)
		assert.True(t, errors.Is(err, basic.ErrProviderClose))
		assert.True(t, errors.Is(m.Flush(), basic.ErrProviderClose))
		assert.NoError(t, m.Close())
	})
}

func TestStreamRoundTrip(t *testing.T) {
	for _, c := range []codec.Compression{codec.CompressionNone, codec.CompressionSnappy, codec.CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data", "index.xidx")

			s, err := OpenStream(int64Options(4), streamOptions(path, c))
			require.NoError(t, err)

			left := fillLeaf(t, s, 1, 2, 3)
			right := fillLeaf(t, s, 10, 20)
			root, err := page.NewPage[int64, int64](s, page.KindInner)
			require.NoError(t, err)
			require.NoError(t, root.InsertChild(0, 1, left.Ref(), left.Measures()))
			require.NoError(t, root.InsertChild(1, 10, right.Ref(), right.Measures()))
			d := s.Descriptor()
			d.SetRoot(root.Ref())
			d.SetHeight(2)
			d.AddItemCount(5)

			require.NoError(t, s.Flush())
			assert.True(t, root.IsPersisted())
			rootRef, ok := d.Root()
			require.True(t, ok)
			_, isOffset := rootRef.Offset()
			assert.True(t, isOffset)
			require.NoError(t, s.Close())

			s, err = OpenStream(int64Options(4), streamOptions(path, c))
			require.NoError(t, err)
			defer s.Close()

			d = s.Descriptor()
			assert.Equal(t, 2, d.Height())
			assert.Equal(t, int64(5), d.ItemCount())
			assert.True(t, d.IsPersisted())

			rootRef, ok = d.Root()
			require.True(t, ok)
			loaded, err := page.ResolveData[int64, int64](s, rootRef)
			require.NoError(t, err)
			require.Equal(t, page.KindInner, loaded.Kind())
			assert.True(t, loaded.IsPersisted())
			assert.Equal(t, []int64{1, 10}, keysOf(loaded))

			leaf, err := page.ResolveData[int64, int64](s, loaded.ChildAt(1))
			require.NoError(t, err)
			assert.Equal(t, []int64{10, 20}, keysOf(leaf))
			assert.True(t, leaf.Measures().Equal(loaded.ChildMeasuresAt(1)))
		})
	}
}

func TestStreamCopyOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.xidx")
	s, err := OpenStream(int64Options(4), streamOptions(path, codec.CompressionNone))
	require.NoError(t, err)

	leaf := fillLeaf(t, s, 1, 2)
	s.Descriptor().SetRoot(leaf.Ref())
	s.Descriptor().SetHeight(1)
	require.NoError(t, s.Flush())
	first := leaf.Ref()
	end := s.End()

	t.Run("没有修改时刷盘不写文件", func(t *testing.T) {
		require.NoError(t, s.Flush())
		assert.Equal(t, end, s.End())
	})

	t.Run("修改后的页面写到新偏移", func(t *testing.T) {
		p, err := page.ResolveData[int64, int64](s, first)
		require.NoError(t, err)
		require.NoError(t, p.Insert(2, 3))
		require.NoError(t, s.MarkDirty(p))
		require.NoError(t, s.Flush())

		root, _ := s.Descriptor().Root()
		assert.NotEqual(t, first, root)
		assert.Greater(t, s.End(), end)
	})

	require.NoError(t, s.Close())

	s, err = OpenStream(int64Options(4), streamOptions(path, codec.CompressionNone))
	require.NoError(t, err)
	defer s.Close()
	root, _ := s.Descriptor().Root()
	p, err := page.ResolveData[int64, int64](s, root)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, keysOf(p))

	// 旧版本仍可按原偏移读出
	old, err := page.ResolveData[int64, int64](s, first)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, keysOf(old))
}

func TestStreamUnflushedChangesDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.xidx")
	s, err := OpenStream(int64Options(4), streamOptions(path, codec.CompressionNone))
	require.NoError(t, err)
	leaf := fillLeaf(t, s, 7)
	s.Descriptor().SetRoot(leaf.Ref())
	require.NoError(t, s.Close())

	s, err = OpenStream(int64Options(4), streamOptions(path, codec.CompressionNone))
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.Descriptor().Root()
	assert.False(t, ok)
}

func TestStreamCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.xidx")
	s, err := OpenStream(int64Options(4), streamOptions(path, codec.CompressionNone))
	require.NoError(t, err)
	leaf := fillLeaf(t, s, 1, 2, 3)
	s.Descriptor().SetRoot(leaf.Ref())
	require.NoError(t, s.Flush())
	offset, _ := leaf.Ref().Offset()
	require.NoError(t, s.Close())

	t.Run("配置不一致", func(t *testing.T) {
		_, err := OpenStream(int64Options(8), streamOptions(path, codec.CompressionNone))
		assert.True(t, errors.Is(err, basic.ErrDescriptorMismatch))
	})

	t.Run("页面校验和", func(t *testing.T) {
		f, err := os.OpenFile(path, os.O_RDWR, 0644)
		require.NoError(t, err)
		b := make([]byte, 1)
		pos := offset + codec.FrameHeaderSize + 2
		_, err = f.ReadAt(b, pos)
		require.NoError(t, err)
		b[0] ^= 0xFF
		_, err = f.WriteAt(b, pos)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		s, err := OpenStream(int64Options(4), streamOptions(path, codec.CompressionNone))
		require.NoError(t, err)
		defer s.Close()
		_, err = s.Resolve(leaf.Ref())
		assert.True(t, errors.Is(err, basic.ErrChecksumMismatch))
	})

	t.Run("文件头损坏", func(t *testing.T) {
		f, err := os.OpenFile(path, os.O_RDWR, 0644)
		require.NoError(t, err)
		_, err = f.WriteAt([]byte("JUNK"), 0)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		_, err = OpenStream(int64Options(4), streamOptions(path, codec.CompressionNone))
		assert.True(t, errors.Is(err, basic.ErrPageCorrupted))
	})
}

func TestStreamReleaseAndStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.xidx")
	s, err := OpenStream(int64Options(4), streamOptions(path, codec.CompressionNone))
	require.NoError(t, err)
	defer s.Close()

	a := fillLeaf(t, s, 1)
	b := fillLeaf(t, s, 2)
	assert.Equal(t, int64(2), s.Stats().Snapshot().DirtyPages)

	require.NoError(t, s.Release(b))
	s.Descriptor().SetRoot(a.Ref())
	require.NoError(t, s.Flush())

	snap := s.Stats().Snapshot()
	assert.Equal(t, int64(0), snap.DirtyPages)
	assert.Equal(t, int64(1), snap.ReleasedPages)
	assert.Equal(t, int64(2), snap.PageWrites)
	assert.Equal(t, int64(1), snap.FlushSuccesses)

	_, err = s.Resolve(b.Ref())
	assert.True(t, errors.Is(err, basic.ErrPageNotFound))
}

func TestStatsAverages(t *testing.T) {
	s := NewStats()
	assert.Equal(t, float64(0), s.GetAvgReadLatency())
	assert.Equal(t, float64(0), s.GetHitRatio())

	s.RecordPageIO(true, 100, 300*time.Nanosecond)
	s.RecordPageIO(true, 100, 100*time.Nanosecond)
	s.RecordPageIO(false, 100, time.Second)
	s.RecordPageRequest(true)
	s.RecordPageRequest(true)
	s.RecordPageRequest(true)
	s.RecordPageRequest(false)

	assert.Equal(t, float64(200), s.GetAvgReadLatency())
	assert.Equal(t, 0.75, s.GetHitRatio())
}

func TestFileHeader(t *testing.T) {
	h := fileHeader{descriptorOffset: 4096, flushes: 3}
	got, err := decodeFileHeader(h.encode())
	require.NoError(t, err)
	assert.Equal(t, h, got)

	b := h.encode()
	b[12] ^= 1
	_, err = decodeFileHeader(b)
	assert.True(t, errors.Is(err, basic.ErrChecksumMismatch))
}
