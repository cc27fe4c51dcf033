package page

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
)

// Validate 检查容量和有序性。违反时说明存储已损坏或此前的修改未完成，
// 调用方不得尝试修复。
func (p *DataPage[K, I]) Validate() error {
	n := p.CurrentSize()
	if n > p.size {
		return errors.Wrapf(basic.ErrTreeCorrupted, "%s page %s holds %d slots, capacity %d", p.kind, p.Ref(), n, p.size)
	}
	if p.kind == KindInner && (len(p.children) != n || len(p.childMeasures) != n) {
		return errors.Wrapf(basic.ErrTreeCorrupted, "inner page %s has %d keys, %d children, %d snapshots",
			p.Ref(), n, len(p.children), len(p.childMeasures))
	}
	for i := 1; i < n; i++ {
		if p.compare(p.KeyAt(i-1), p.KeyAt(i)) >= 0 {
			return errors.Wrapf(basic.ErrTreeCorrupted, "%s page %s: slot %d out of order", p.kind, p.Ref(), i)
		}
	}
	return nil
}
