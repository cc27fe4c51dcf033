package measure

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Result 单个度量的聚合值，Valid 为 false 表示空集合上的 min/max
type Result struct {
	Value decimal.Decimal
	Valid bool
}

// Equal 比较两个聚合值
func (r Result) Equal(other Result) bool {
	if r.Valid != other.Valid {
		return false
	}
	return !r.Valid || r.Value.Equal(other.Value)
}

func (r Result) String() string {
	if !r.Valid {
		return "<empty>"
	}
	return r.Value.String()
}

// Projection 把记录投影为参与聚合的数值
type Projection[I any] func(item I) decimal.Decimal

// Measure 一个可结合的折叠。Subtract/Decombine 返回 false 时
// 当前值无法增量回退，调用方必须整体重算。
type Measure[I any] interface {
	Name() string
	Identity() Result
	Add(acc Result, item I) Result
	Subtract(acc Result, item I) (Result, bool)
	Combine(acc, other Result) Result
	Decombine(acc, other Result) (Result, bool)
}

// Count 记录数
type Count[I any] struct{}

func NewCount[I any]() Measure[I] { return Count[I]{} }

func (Count[I]) Name() string     { return "count" }
func (Count[I]) Identity() Result { return Result{Value: decimal.Zero, Valid: true} }

func (Count[I]) Add(acc Result, _ I) Result {
	return Result{Value: acc.Value.Add(decimal.New(1, 0)), Valid: true}
}

func (Count[I]) Subtract(acc Result, _ I) (Result, bool) {
	if acc.Value.Sign() <= 0 {
		return acc, false
	}
	return Result{Value: acc.Value.Sub(decimal.New(1, 0)), Valid: true}, true
}

func (Count[I]) Combine(acc, other Result) Result {
	return Result{Value: acc.Value.Add(other.Value), Valid: true}
}

func (Count[I]) Decombine(acc, other Result) (Result, bool) {
	if acc.Value.Cmp(other.Value) < 0 {
		return acc, false
	}
	return Result{Value: acc.Value.Sub(other.Value), Valid: true}, true
}

// Sum 投影值之和
type Sum[I any] struct {
	name       string
	projection Projection[I]
}

func NewSum[I any](name string, projection Projection[I]) Measure[I] {
	return &Sum[I]{name: name, projection: projection}
}

func (m *Sum[I]) Name() string     { return m.name }
func (m *Sum[I]) Identity() Result { return Result{Value: decimal.Zero, Valid: true} }

func (m *Sum[I]) Add(acc Result, item I) Result {
	return Result{Value: acc.Value.Add(m.projection(item)), Valid: true}
}

func (m *Sum[I]) Subtract(acc Result, item I) (Result, bool) {
	return Result{Value: acc.Value.Sub(m.projection(item)), Valid: true}, true
}

func (m *Sum[I]) Combine(acc, other Result) Result {
	return Result{Value: acc.Value.Add(other.Value), Valid: true}
}

func (m *Sum[I]) Decombine(acc, other Result) (Result, bool) {
	return Result{Value: acc.Value.Sub(other.Value), Valid: true}, true
}

// extremum 是 Min 和 Max 的共同实现，better(a, b) 表示 a 比 b 更优
type extremum[I any] struct {
	name       string
	projection Projection[I]
	better     func(a, b decimal.Decimal) bool
}

// NewMin 投影值的最小值
func NewMin[I any](name string, projection Projection[I]) Measure[I] {
	return &extremum[I]{name: name, projection: projection, better: func(a, b decimal.Decimal) bool {
		return a.Cmp(b) < 0
	}}
}

// NewMax 投影值的最大值
func NewMax[I any](name string, projection Projection[I]) Measure[I] {
	return &extremum[I]{name: name, projection: projection, better: func(a, b decimal.Decimal) bool {
		return a.Cmp(b) > 0
	}}
}

func (m *extremum[I]) Name() string     { return m.name }
func (m *extremum[I]) Identity() Result { return Result{Value: decimal.Zero} }

func (m *extremum[I]) Add(acc Result, item I) Result {
	return m.Combine(acc, Result{Value: m.projection(item), Valid: true})
}

func (m *extremum[I]) Subtract(acc Result, item I) (Result, bool) {
	return m.Decombine(acc, Result{Value: m.projection(item), Valid: true})
}

func (m *extremum[I]) Combine(acc, other Result) Result {
	if !other.Valid {
		return acc
	}
	if !acc.Valid || m.better(other.Value, acc.Value) {
		return other
	}
	return acc
}

// Decombine 仅当被移除部分严格劣于当前极值时才能增量完成
func (m *extremum[I]) Decombine(acc, other Result) (Result, bool) {
	if !other.Valid {
		return acc, true
	}
	if acc.Valid && m.better(acc.Value, other.Value) {
		return acc, true
	}
	return acc, false
}

// ByName 按配置名称构造度量，支持 count/sum/min/max
func ByName[I any](name string, projection Projection[I]) (Measure[I], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "count":
		return NewCount[I](), nil
	case "sum":
		return NewSum("sum", projection), nil
	case "min":
		return NewMin("min", projection), nil
	case "max":
		return NewMax("max", projection), nil
	}
	return nil, errors.Errorf("unknown measure %q", name)
}
