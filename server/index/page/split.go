package page

import (
	"github.com/pkg/errors"
)

// SplitPoint 拆分后左页保留的槽位数：左页保留 ceil(n/2)，新兄弟页取其余的高键部分
func SplitPoint(n int) int {
	return (n + 1) / 2
}

// Split 创建同种类的兄弟页并把高键一半移过去，返回新兄弟页。
// 调用方负责把兄弟页的首键作为分隔键插入父页，或在没有父页时创建新根。
func (p *DataPage[K, I]) Split() (*DataPage[K, I], error) {
	n := p.CurrentSize()
	if n < 2 {
		return nil, errors.Errorf("%s page %s with %d slots cannot be split", p.kind, p.Ref(), n)
	}
	provider := p.descriptor.provider
	if provider == nil {
		return nil, errors.Errorf("%s page %s has no provider", p.kind, p.Ref())
	}
	sibling, err := provider.CreatePage(p.kind)
	if err != nil {
		return nil, errors.Wrapf(err, "split %s page %s", p.kind, p.Ref())
	}

	moved := p.cut(SplitPoint(n), n)
	block := moved.fold(p.descriptor.measures)
	sibling.appendRange(moved)
	sibling.measures = block

	p.subtractResults(block)
	p.UpdateVersion()
	sibling.UpdateVersion()
	return sibling, nil
}
