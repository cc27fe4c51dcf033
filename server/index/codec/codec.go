package codec

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
	"github.com/zhukovaskychina/xmysql-index/util"
)

// Codec 页面与流上字节之间的转换。键和记录的编码由使用方提供。
type Codec[K, I any] struct {
	keys        basic.Serializer[K]
	items       basic.Serializer[I]
	compression Compression
}

func New[K, I any](keys basic.Serializer[K], items basic.Serializer[I], compression Compression) *Codec[K, I] {
	return &Codec[K, I]{keys: keys, items: items, compression: compression}
}

func (c *Codec[K, I]) Compression() Compression { return c.compression }

// EncodePage 数据页内容：version(8) size(4) count(4) measures slots...
// 内部页的子页引用必须已经是可编码的流偏移。
func (c *Codec[K, I]) EncodePage(p *page.DataPage[K, I]) ([]byte, error) {
	img := p.Image()
	buf := make([]byte, 0, 256)
	buf = util.WriteUB8(buf, img.Version)
	buf = util.WriteUB4(buf, uint32(img.Size))

	var err error
	if img.Kind == page.KindLeaf {
		buf = util.WriteUB4(buf, uint32(len(img.Items)))
		if buf, err = encodeResults(buf, img.Measures); err != nil {
			return nil, err
		}
		for _, item := range img.Items {
			buf = c.items.Encode(buf, item)
		}
	} else {
		buf = util.WriteUB4(buf, uint32(len(img.Keys)))
		if buf, err = encodeResults(buf, img.Measures); err != nil {
			return nil, err
		}
		for i, key := range img.Keys {
			buf = c.keys.Encode(buf, key)
			ref, err := img.Children[i].Encode()
			if err != nil {
				return nil, errors.Wrapf(err, "inner page %s child %d", p.Ref(), i)
			}
			buf = util.WriteUB8Long(buf, ref)
			if buf, err = encodeResults(buf, img.ChildMeasures[i]); err != nil {
				return nil, err
			}
		}
	}
	return EncodeFrame(img.Kind, buf, c.compression)
}

// DecodePage 由完整的帧重建数据页
func (c *Codec[K, I]) DecodePage(d *page.DescriptorPage[K, I], ref page.Reference, frame []byte) (*page.DataPage[K, I], error) {
	h, raw, err := DecodeFrame(frame)
	if err != nil {
		return nil, errors.Wrapf(err, "page %s", ref)
	}
	if !h.Kind.IsData() {
		return nil, errors.Wrapf(basic.ErrIncompatibleKind, "page %s is a %s frame", ref, h.Kind)
	}
	img, err := c.decodeImage(d, h.Kind, raw)
	if err != nil {
		if errors.Is(err, util.ErrShortBuffer) {
			return nil, errors.Wrapf(basic.ErrPageCorrupted, "page %s: %v", ref, err)
		}
		return nil, errors.Wrapf(err, "page %s", ref)
	}
	return page.RestoreDataPage(d, ref, img)
}

func (c *Codec[K, I]) decodeImage(d *page.DescriptorPage[K, I], kind page.Kind, raw []byte) (page.DataImage[K, I], error) {
	img := page.DataImage[K, I]{Kind: kind}
	names := d.Measures().Names()

	cursor, version, err := util.ReadUB8(raw, 0)
	if err != nil {
		return img, err
	}
	cursor, size, err := util.ReadUB4(raw, cursor)
	if err != nil {
		return img, err
	}
	cursor, count, err := util.ReadUB4(raw, cursor)
	if err != nil {
		return img, err
	}
	if count > size {
		return img, errors.Wrapf(basic.ErrPageCorrupted, "%d slots in page of %d", count, size)
	}
	img.Version, img.Size = version, int(size)
	if cursor, img.Measures, err = decodeResults(raw, cursor, names); err != nil {
		return img, err
	}

	if kind == page.KindLeaf {
		img.Items = make([]I, count)
		for i := range img.Items {
			if cursor, img.Items[i], err = c.items.Decode(raw, cursor); err != nil {
				return img, err
			}
		}
	} else {
		img.Keys = make([]K, count)
		img.Children = make([]page.Reference, count)
		img.ChildMeasures = make([]*measure.ResultSet, count)
		for i := range img.Keys {
			if cursor, img.Keys[i], err = c.keys.Decode(raw, cursor); err != nil {
				return img, err
			}
			var encoded int64
			if cursor, encoded, err = util.ReadUB8Long(raw, cursor); err != nil {
				return img, err
			}
			child, err := page.DecodeReference(encoded)
			if err != nil {
				return img, err
			}
			if _, ok := child.Offset(); !ok {
				return img, errors.Wrapf(basic.ErrPageCorrupted, "child %d of inner page is %s", i, child)
			}
			img.Children[i] = child
			if cursor, img.ChildMeasures[i], err = decodeResults(raw, cursor, names); err != nil {
				return img, err
			}
		}
	}
	if cursor != len(raw) {
		return img, errors.Wrapf(basic.ErrPageCorrupted, "%d trailing bytes", len(raw)-cursor)
	}
	return img, nil
}

// EncodeDescriptor 描述页内容：version(8) leafSize(4) innerSize(4) measure names root(8) height(4) itemCount(8)
func (c *Codec[K, I]) EncodeDescriptor(d *page.DescriptorPage[K, I]) ([]byte, error) {
	state := d.State()
	root, err := state.Root.Encode()
	if err != nil {
		return nil, errors.Wrap(err, "descriptor root")
	}
	buf := make([]byte, 0, 64)
	buf = util.WriteUB8(buf, state.Version)
	buf = util.WriteUB4(buf, uint32(state.LeafSize))
	buf = util.WriteUB4(buf, uint32(state.InnerSize))
	buf = util.WriteLength(buf, int64(len(state.MeasureNames)))
	for _, name := range state.MeasureNames {
		buf = util.WriteWithLength(buf, []byte(name))
	}
	buf = util.WriteUB8Long(buf, root)
	buf = util.WriteUB4(buf, uint32(state.Height))
	buf = util.WriteUB8Long(buf, state.ItemCount)
	return EncodeFrame(page.KindDescriptor, buf, c.compression)
}

// DecodeDescriptor 把帧中的状态恢复到已按当前配置构造的描述页上
func (c *Codec[K, I]) DecodeDescriptor(d *page.DescriptorPage[K, I], frame []byte) error {
	h, raw, err := DecodeFrame(frame)
	if err != nil {
		return errors.Wrap(err, "descriptor")
	}
	if h.Kind != page.KindDescriptor {
		return errors.Wrapf(basic.ErrIncompatibleKind, "expected descriptor frame, found %s", h.Kind)
	}
	state, err := decodeDescriptorState(raw)
	if err != nil {
		return errors.Wrapf(basic.ErrPageCorrupted, "descriptor: %v", err)
	}
	return d.Restore(state)
}

func decodeDescriptorState(raw []byte) (page.DescriptorState, error) {
	var state page.DescriptorState
	cursor, version, err := util.ReadUB8(raw, 0)
	if err != nil {
		return state, err
	}
	cursor, leafSize, err := util.ReadUB4(raw, cursor)
	if err != nil {
		return state, err
	}
	cursor, innerSize, err := util.ReadUB4(raw, cursor)
	if err != nil {
		return state, err
	}
	cursor, n, err := util.ReadLength(raw, cursor)
	if err != nil {
		return state, err
	}
	if n > uint64(len(raw)) {
		return state, errors.Errorf("%d measure names", n)
	}
	names := make([]string, n)
	for i := range names {
		if cursor, names[i], err = util.ReadLengthString(raw, cursor); err != nil {
			return state, err
		}
	}
	cursor, root, err := util.ReadUB8Long(raw, cursor)
	if err != nil {
		return state, err
	}
	rootRef, err := page.DecodeReference(root)
	if err != nil {
		return state, err
	}
	cursor, height, err := util.ReadUB4(raw, cursor)
	if err != nil {
		return state, err
	}
	cursor, itemCount, err := util.ReadUB8Long(raw, cursor)
	if err != nil {
		return state, err
	}
	if cursor != len(raw) {
		return state, errors.Errorf("%d trailing bytes", len(raw)-cursor)
	}
	return page.DescriptorState{
		Version:      version,
		LeafSize:     int(leafSize),
		InnerSize:    int(innerSize),
		MeasureNames: names,
		Root:         rootRef,
		Height:       int(height),
		ItemCount:    itemCount,
	}, nil
}
