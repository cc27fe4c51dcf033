package measure

import (
	"strings"
)

// ResultSet 一个页面上全部已声明度量的当前值，顺序与声明顺序一致。
// nil 表示索引没有声明任何度量。
type ResultSet struct {
	names  []string
	values []Result
}

// NewResultSet 由名称和值构造结果集，长度必须一致
func NewResultSet(names []string, values []Result) *ResultSet {
	if len(names) == 0 {
		return nil
	}
	rs := &ResultSet{
		names:  append([]string(nil), names...),
		values: append([]Result(nil), values...),
	}
	return rs
}

func (s *ResultSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

func (s *ResultSet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

func (s *ResultSet) At(i int) Result {
	return s.values[i]
}

// Get 按度量名称取值
func (s *ResultSet) Get(name string) (Result, bool) {
	if s == nil {
		return Result{}, false
	}
	for i, n := range s.names {
		if n == name {
			return s.values[i], true
		}
	}
	return Result{}, false
}

func (s *ResultSet) Clone() *ResultSet {
	if s == nil {
		return nil
	}
	return &ResultSet{
		names:  append([]string(nil), s.names...),
		values: append([]Result(nil), s.values...),
	}
}

// Equal 名称与值逐一相等
func (s *ResultSet) Equal(other *ResultSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if s.names[i] != other.names[i] || !s.values[i].Equal(other.values[i]) {
			return false
		}
	}
	return true
}

func (s *ResultSet) String() string {
	if s == nil {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, n := range s.names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(s.values[i].String())
	}
	b.WriteByte('}')
	return b.String()
}

// Set 一个索引声明的度量列表，负责在结果集上执行折叠
type Set[I any] []Measure[I]

func (ms Set[I]) Names() []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name()
	}
	return names
}

// NewResults 全部取单位元
func (ms Set[I]) NewResults() *ResultSet {
	if len(ms) == 0 {
		return nil
	}
	values := make([]Result, len(ms))
	for i, m := range ms {
		values[i] = m.Identity()
	}
	return &ResultSet{names: ms.Names(), values: values}
}

// Fold 对记录序列做完整折叠
func (ms Set[I]) Fold(items []I) *ResultSet {
	rs := ms.NewResults()
	for _, item := range items {
		ms.Add(rs, item)
	}
	return rs
}

// FoldResults 合并一组子结果集
func (ms Set[I]) FoldResults(sets []*ResultSet) *ResultSet {
	rs := ms.NewResults()
	for _, other := range sets {
		ms.Combine(rs, other)
	}
	return rs
}

func (ms Set[I]) Add(rs *ResultSet, item I) {
	if rs == nil {
		return
	}
	for i, m := range ms {
		rs.values[i] = m.Add(rs.values[i], item)
	}
}

// Subtract 返回 false 表示至少有一个度量需要重算
func (ms Set[I]) Subtract(rs *ResultSet, item I) bool {
	if rs == nil {
		return true
	}
	ok := true
	for i, m := range ms {
		v, done := m.Subtract(rs.values[i], item)
		if !done {
			ok = false
			continue
		}
		rs.values[i] = v
	}
	return ok
}

func (ms Set[I]) Combine(rs, other *ResultSet) {
	if rs == nil || other == nil {
		return
	}
	for i, m := range ms {
		rs.values[i] = m.Combine(rs.values[i], other.values[i])
	}
}

func (ms Set[I]) Decombine(rs, other *ResultSet) bool {
	if rs == nil || other == nil {
		return true
	}
	ok := true
	for i, m := range ms {
		v, done := m.Decombine(rs.values[i], other.values[i])
		if !done {
			ok = false
			continue
		}
		rs.values[i] = v
	}
	return ok
}
