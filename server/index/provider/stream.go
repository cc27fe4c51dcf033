package provider

import (
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zhukovaskychina/xmysql-index/logger"
	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/codec"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
	"github.com/zhukovaskychina/xmysql-index/util"
)

// DefaultCachePages 未配置时缓存的干净页面数
const DefaultCachePages = 1024

// StreamOptions 流提供者的存储配置
type StreamOptions[K, I any] struct {
	Path        string
	CachePages  int64
	Compression codec.Compression
	Keys        basic.Serializer[K]
	Items       basic.Serializer[I]
}

// Stream 把页面写入按偏移寻址的文件。
//
// 文件只追加：新建或修改过的页面在 Flush 时按后序写到文件末尾，
// 父页中的子页引用随之改写为新偏移，最后写描述页并更新文件头。
// 旧偏移上的页面成为垃圾，不会被原地覆盖，中途崩溃时文件头仍指向上一次完整的树。
// 脏页在 Flush 前一直留在内存里；干净页面放在 ristretto 缓存中，被淘汰后按需重读。
type Stream[K, I any] struct {
	mu sync.Mutex

	file  *os.File
	path  string
	codec *codec.Codec[K, I]
	log   *logrus.Entry

	descriptor *page.DescriptorPage[K, I]
	dirty      map[page.Reference]*page.DataPage[K, I]
	cache      *ristretto.Cache[int64, *page.DataPage[K, I]]

	end     int64
	flushes uint64
	stats   *Stats
	closed  bool
	failed  error
}

// OpenStream 打开或创建索引文件。已有文件中的描述页必须与 opts 的容量和度量一致。
func OpenStream[K, I any](opts page.Options[K, I], so StreamOptions[K, I]) (*Stream[K, I], error) {
	if so.Path == "" {
		return nil, errors.New("stream provider requires a data file path")
	}
	if so.Keys == nil || so.Items == nil {
		return nil, errors.New("stream provider requires key and item serializers")
	}
	if so.CachePages <= 0 {
		so.CachePages = DefaultCachePages
	}
	d, err := page.NewDescriptorPage(opts, false)
	if err != nil {
		return nil, err
	}
	if err := util.EnsureParentDir(so.Path); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s", so.Path)
	}
	file, err := os.OpenFile(so.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", so.Path)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[int64, *page.DataPage[K, I]]{
		NumCounters: so.CachePages * 10,
		MaxCost:     so.CachePages,
		BufferItems: 64,
		// 代价按页数计，不叠加条目自身的内存开销
		IgnoreInternalCost: true,
	})
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "page cache")
	}

	s := &Stream[K, I]{
		file:       file,
		path:       so.Path,
		codec:      codec.New(so.Keys, so.Items, so.Compression),
		log:        logger.WithComponent("stream").WithField("file", so.Path),
		descriptor: d,
		dirty:      make(map[page.Reference]*page.DataPage[K, I]),
		cache:      cache,
		end:        FileHeaderSize,
		stats:      NewStats(),
	}
	d.Bind(s)

	if err := s.load(); err != nil {
		cache.Close()
		file.Close()
		return nil, err
	}
	return s, nil
}

// load 读取文件头和描述页，空文件视为新索引
func (s *Stream[K, I]) load() error {
	info, err := s.file.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", s.path)
	}
	if info.Size() == 0 {
		s.log.Debug("new index file")
		return nil
	}

	head := make([]byte, FileHeaderSize)
	if _, err := s.file.ReadAt(head, 0); err != nil {
		return errors.Wrapf(basic.ErrPageCorrupted, "read file header: %v", err)
	}
	h, err := decodeFileHeader(head)
	if err != nil {
		return err
	}
	frame, err := s.readFrame(h.descriptorOffset)
	if err != nil {
		return errors.Wrap(err, "descriptor")
	}
	if err := s.codec.DecodeDescriptor(s.descriptor, frame); err != nil {
		return err
	}
	s.end = info.Size()
	s.flushes = h.flushes

	root, _ := s.descriptor.Root()
	s.log.WithFields(logrus.Fields{
		"root":    root,
		"height":  s.descriptor.Height(),
		"items":   s.descriptor.ItemCount(),
		"flushes": h.flushes,
	}).Info("index file opened")
	return nil
}

// readFrame 先读帧头确定长度，再读完整帧
func (s *Stream[K, I]) readFrame(offset int64) ([]byte, error) {
	head := make([]byte, codec.FrameHeaderSize)
	if _, err := s.file.ReadAt(head, offset); err != nil {
		return nil, errors.Wrapf(basic.ErrPageCorrupted, "read frame header at %d: %v", offset, err)
	}
	h, err := codec.ParseFrameHeader(head)
	if err != nil {
		return nil, errors.Wrapf(err, "frame at %d", offset)
	}
	frame := make([]byte, h.FrameLen())
	copy(frame, head)
	if _, err := s.file.ReadAt(frame[codec.FrameHeaderSize:], offset+codec.FrameHeaderSize); err != nil {
		return nil, errors.Wrapf(basic.ErrPageCorrupted, "read frame at %d: %v", offset, err)
	}
	return frame, nil
}

func (s *Stream[K, I]) CreatePage(kind page.Kind) (*page.DataPage[K, I], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	p, err := page.NewDataPage(s.descriptor, kind)
	if err != nil {
		return nil, err
	}
	s.stats.RecordCreate()
	return p, nil
}

// AssignReference 新页面在写入文件前使用临时的自引用，Flush 时改写为偏移
func (s *Stream[K, I]) AssignReference(p page.Page[K, I]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if p.Kind() == page.KindDescriptor {
		if p.AsDescriptorPage() != s.descriptor {
			return errors.Wrap(basic.ErrForeignPage, "descriptor")
		}
		return nil
	}
	dp := p.AsDataPage()
	if dp.Descriptor() != s.descriptor {
		return errors.Wrapf(basic.ErrForeignPage, "%s page", dp.Kind())
	}
	if ref, ok := dp.Reference(); ok {
		return errors.Errorf("%s page already has reference %s", dp.Kind(), ref)
	}
	ref := page.NewSelfReference()
	dp.SetReference(ref)
	s.dirty[ref] = dp
	s.stats.SetDirtyPages(len(s.dirty))
	return nil
}

func (s *Stream[K, I]) Descriptor() *page.DescriptorPage[K, I] { return s.descriptor }

// Resolve 依次查脏页、缓存，最后读文件
func (s *Stream[K, I]) Resolve(ref page.Reference) (page.Page[K, I], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	if ref == page.DescriptorReference {
		return s.descriptor, nil
	}
	return s.resolveData(ref)
}

func (s *Stream[K, I]) resolveData(ref page.Reference) (*page.DataPage[K, I], error) {
	if p, ok := s.dirty[ref]; ok {
		s.stats.RecordPageRequest(true)
		return p, nil
	}
	offset, ok := ref.Offset()
	if !ok {
		s.stats.RecordPageRequest(false)
		return nil, errors.Wrapf(basic.ErrPageNotFound, "reference %s", ref)
	}
	if p, ok := s.cache.Get(offset); ok {
		s.stats.RecordPageRequest(true)
		return p, nil
	}
	s.stats.RecordPageRequest(false)

	start := time.Now()
	frame, err := s.readFrame(offset)
	if err != nil {
		return nil, err
	}
	p, err := s.codec.DecodePage(s.descriptor, ref, frame)
	if err != nil {
		return nil, err
	}
	s.stats.RecordPageIO(true, len(frame), time.Since(start))
	s.cache.Set(offset, p, 1)
	return p, nil
}

// MarkDirty 修改过的页面从缓存移入脏页表，直到下一次 Flush
func (s *Stream[K, I]) MarkDirty(p *page.DataPage[K, I]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	ref, ok := p.Reference()
	if !ok {
		return errors.Wrapf(basic.ErrUnassigned, "%s page", p.Kind())
	}
	if p.Descriptor() != s.descriptor {
		return errors.Wrapf(basic.ErrForeignPage, "page %s", ref)
	}
	if offset, ok := ref.Offset(); ok {
		s.cache.Del(offset)
	}
	s.dirty[ref] = p
	s.stats.SetDirtyPages(len(s.dirty))
	return nil
}

// Release 丢弃页面。已写入文件的旧内容留在原处，不再被引用。
func (s *Stream[K, I]) Release(p *page.DataPage[K, I]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	ref := p.Ref()
	delete(s.dirty, ref)
	if offset, ok := ref.Offset(); ok {
		s.cache.Del(offset)
	}
	s.stats.RecordRelease()
	s.stats.SetDirtyPages(len(s.dirty))
	return nil
}

// Flush 按后序写出全部脏页，然后写描述页和文件头并同步到磁盘。
// 树修改任一页面时都会同时修改其所有祖先，因此干净页面之下不会有脏页。
// 失败后提供者只能关闭，文件头仍指向上一次成功刷盘的树。
func (s *Stream[K, I]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	err := s.flush()
	s.stats.RecordFlush(err == nil)
	if err != nil {
		s.failed = err
		s.log.WithError(err).Error("flush failed")
	}
	return err
}

// usable Flush 失败后内存中的引用可能已部分改写，只允许关闭
func (s *Stream[K, I]) usable() error {
	if s.closed {
		return basic.ErrProviderClose
	}
	if s.failed != nil {
		return errors.Wrap(s.failed, "provider unusable after failed flush")
	}
	return nil
}

func (s *Stream[K, I]) flush() error {
	if len(s.dirty) == 0 && s.descriptor.IsPersisted() {
		return nil
	}
	written := make([]*page.DataPage[K, I], 0, len(s.dirty))
	if root, ok := s.descriptor.Root(); ok {
		newRoot, err := s.flushPage(root, &written)
		if err != nil {
			return err
		}
		s.descriptor.SetRoot(newRoot)
	}
	if orphans := len(s.dirty) - len(written); orphans > 0 {
		s.log.WithField("pages", orphans).Warn("dirty pages unreachable from root discarded")
	}

	frame, err := s.codec.EncodeDescriptor(s.descriptor)
	if err != nil {
		return err
	}
	descriptorOffset, err := s.append(frame)
	if err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", s.path)
	}
	h := fileHeader{descriptorOffset: descriptorOffset, flushes: s.flushes + 1}
	if _, err := s.file.WriteAt(h.encode(), 0); err != nil {
		return errors.Wrapf(err, "write file header of %s", s.path)
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", s.path)
	}
	s.flushes++

	for _, p := range written {
		p.MarkPersisted()
		if offset, ok := p.Ref().Offset(); ok {
			s.cache.Set(offset, p, 1)
		}
	}
	s.descriptor.MarkPersisted()
	s.dirty = make(map[page.Reference]*page.DataPage[K, I])
	s.stats.SetDirtyPages(0)

	s.log.WithFields(logrus.Fields{
		"pages":      len(written),
		"descriptor": descriptorOffset,
		"end":        s.end,
	}).Debug("flushed")
	return nil
}

// flushPage 写出以 ref 为根的子树中的脏页，返回该子树根的新引用
func (s *Stream[K, I]) flushPage(ref page.Reference, written *[]*page.DataPage[K, I]) (page.Reference, error) {
	p, ok := s.dirty[ref]
	if !ok {
		if _, isOffset := ref.Offset(); !isOffset {
			return ref, errors.Wrapf(basic.ErrPageNotFound, "reference %s", ref)
		}
		return ref, nil
	}
	if !p.IsLeaf() {
		for i := 0; i < p.CurrentSize(); i++ {
			child, err := s.flushPage(p.ChildAt(i), written)
			if err != nil {
				return ref, err
			}
			p.SetChildReference(i, child)
		}
	}
	frame, err := s.codec.EncodePage(p)
	if err != nil {
		return ref, err
	}
	offset, err := s.append(frame)
	if err != nil {
		return ref, err
	}
	newRef, err := page.NewOffsetReference(offset)
	if err != nil {
		return ref, err
	}
	p.SetReference(newRef)
	*written = append(*written, p)
	return newRef, nil
}

func (s *Stream[K, I]) append(frame []byte) (int64, error) {
	start := time.Now()
	offset := s.end
	if _, err := s.file.WriteAt(frame, offset); err != nil {
		return 0, errors.Wrapf(err, "write %d bytes at %d", len(frame), offset)
	}
	s.end += int64(len(frame))
	s.stats.RecordPageIO(false, len(frame), time.Since(start))
	return offset, nil
}

// Close 关闭前不会自动 Flush，未刷盘的修改被丢弃
func (s *Stream[K, I]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if n := len(s.dirty); n > 0 {
		s.log.WithField("pages", n).Warn("closing with unflushed pages")
	}
	s.dirty = nil
	s.cache.Close()
	if err := s.file.Close(); err != nil {
		return errors.Wrapf(err, "close %s", s.path)
	}
	return nil
}

// Stats 运行统计
func (s *Stream[K, I]) Stats() *Stats { return s.stats }

// Path 数据文件路径
func (s *Stream[K, I]) Path() string { return s.path }

// End 下一次追加写入的偏移
func (s *Stream[K, I]) End() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// Wait 等待缓存的异步写入生效
func (s *Stream[K, I]) Wait() {
	s.cache.Wait()
}

var _ page.Provider[int64, int64] = (*Stream[int64, int64])(nil)
