package page

import (
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
)

// AddToMeasures 把单条记录并入本页度量
func (p *DataPage[K, I]) AddToMeasures(item I) {
	p.addItem(item)
	p.UpdateVersion()
}

// SubtractFromMeasures 从本页度量中减去已经移出槽位的记录，无法增量回退时按当前内容重算
func (p *DataPage[K, I]) SubtractFromMeasures(item I) {
	p.subtractItem(item)
	p.UpdateVersion()
}

// AddResultsToMeasures 并入另一个页面（子树）的整体度量
func (p *DataPage[K, I]) AddResultsToMeasures(other *measure.ResultSet) {
	p.addResults(other)
	p.UpdateVersion()
}

// SubtractResultsFromMeasures 减去另一个页面（子树）的整体度量
func (p *DataPage[K, I]) SubtractResultsFromMeasures(other *measure.ResultSet) {
	p.subtractResults(other)
	p.UpdateVersion()
}

// 以下四个不递增版本，由调用它们的修改操作统一递增一次

func (p *DataPage[K, I]) addItem(item I) {
	p.descriptor.measures.Add(p.measures, item)
}

func (p *DataPage[K, I]) subtractItem(item I) {
	if !p.descriptor.measures.Subtract(p.measures, item) {
		p.recalculate()
	}
}

func (p *DataPage[K, I]) addResults(other *measure.ResultSet) {
	p.descriptor.measures.Combine(p.measures, other)
}

func (p *DataPage[K, I]) subtractResults(other *measure.ResultSet) {
	if !p.descriptor.measures.Decombine(p.measures, other) {
		p.recalculate()
	}
}

// RecalculateMeasures 按当前内容重算度量，结果与增量维护一致时版本不变
func (p *DataPage[K, I]) RecalculateMeasures() {
	fresh := p.ComputeMeasures()
	if fresh.Equal(p.measures) {
		return
	}
	p.measures = fresh
	p.UpdateVersion()
}

// ComputeMeasures 从内容折叠出度量而不修改页面。
// 叶子页折叠记录，内部页折叠子树快照。
func (p *DataPage[K, I]) ComputeMeasures() *measure.ResultSet {
	ms := p.descriptor.measures
	if p.kind == KindLeaf {
		return ms.Fold(p.items)
	}
	return ms.FoldResults(p.childMeasures)
}

func (p *DataPage[K, I]) recalculate() {
	p.measures = p.ComputeMeasures()
}
