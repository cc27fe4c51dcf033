package page

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
)

// DataImage 数据页的可序列化内容
type DataImage[K, I any] struct {
	Kind          Kind
	Version       uint64
	Size          int
	Items         []I
	Keys          []K
	Children      []Reference
	ChildMeasures []*measure.ResultSet
	Measures      *measure.ResultSet
}

// Image 导出页面内容，切片与页面不共享底层数组
func (p *DataPage[K, I]) Image() DataImage[K, I] {
	img := DataImage[K, I]{
		Kind:     p.kind,
		Version:  p.version,
		Size:     p.size,
		Measures: p.measures.Clone(),
	}
	if p.kind == KindLeaf {
		img.Items = append([]I(nil), p.items...)
		return img
	}
	img.Keys = append([]K(nil), p.keys...)
	img.Children = append([]Reference(nil), p.children...)
	img.ChildMeasures = make([]*measure.ResultSet, len(p.childMeasures))
	for i, rs := range p.childMeasures {
		img.ChildMeasures[i] = rs.Clone()
	}
	return img
}

// RestoreDataPage 由存储中的镜像重建页面，页面视为已持久化，并立即做结构校验
func RestoreDataPage[K, I any](d *DescriptorPage[K, I], ref Reference, img DataImage[K, I]) (*DataPage[K, I], error) {
	if !img.Kind.IsData() {
		return nil, errors.Wrapf(basic.ErrPageCorrupted, "page %s has kind %s", ref, img.Kind)
	}
	if img.Size != d.SizeOf(img.Kind) {
		return nil, errors.Wrapf(basic.ErrDescriptorMismatch, "%s page %s capacity %d, configured %d",
			img.Kind, ref, img.Size, d.SizeOf(img.Kind))
	}
	if img.Measures.Len() != len(d.measures) {
		return nil, errors.Wrapf(basic.ErrDescriptorMismatch, "page %s carries %d measures, configured %d",
			ref, img.Measures.Len(), len(d.measures))
	}
	p := &DataPage[K, I]{
		Header:     NewHeader(true),
		kind:       img.Kind,
		descriptor: d,
		size:       img.Size,
		measures:   img.Measures,
	}
	p.version = img.Version
	p.SetReference(ref)
	if img.Kind == KindLeaf {
		p.items = append(make([]I, 0, img.Size), img.Items...)
	} else {
		p.keys = append(make([]K, 0, img.Size), img.Keys...)
		p.children = append(make([]Reference, 0, img.Size), img.Children...)
		p.childMeasures = append(make([]*measure.ResultSet, 0, img.Size), img.ChildMeasures...)
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(basic.ErrPageCorrupted, "restore page %s: %v", ref, err)
	}
	return p, nil
}
