// Package grid 负责把带坐标的技能放置到有界的二维展示网格中。
package grid

import (
	"cmp"
	"slices"
	"time"
)

// 默认网格尺寸：10 行 × 5 列。
const (
	DefaultMaxRows = 10
	DefaultMaxCols = 5
)

// Placeable 是可以放进网格的条目。坐标从 1 开始。
type Placeable interface {
	Cell() (row, col int)
	PlacedAt() time.Time
}

// Matrix 是按行、列组织的桶矩阵，每个桶可容纳多个条目。
type Matrix[T any] [][][]T

// Rows 返回矩阵行数。
func (m Matrix[T]) Rows() int { return len(m) }

// Cols 返回矩阵列数，空矩阵为 0。
func (m Matrix[T]) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Build 把条目放入 maxRows × maxCols 的网格并裁掉尾部的空行和空列。
// 条目按 (行, 列, 更新时间) 升序放置，时间相同时保持输入顺序；
// 越界坐标被静默丢弃。没有任何条目时返回零行矩阵。
func Build[T Placeable](items []T, maxRows, maxCols int) Matrix[T] {
	if maxRows <= 0 || maxCols <= 0 {
		return Matrix[T]{}
	}

	full := make(Matrix[T], maxRows)
	for i := range full {
		full[i] = make([][]T, maxCols)
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, compareItems[T])

	for _, item := range sorted {
		row, col := item.Cell()
		if row < 1 || row > maxRows || col < 1 || col > maxCols {
			continue
		}
		full[row-1][col-1] = append(full[row-1][col-1], item)
	}

	lastRow := -1
	for i := maxRows - 1; i >= 0 && lastRow < 0; i-- {
		for j := 0; j < maxCols; j++ {
			if len(full[i][j]) > 0 {
				lastRow = i
				break
			}
		}
	}

	lastCol := -1
	for j := maxCols - 1; j >= 0 && lastCol < 0; j-- {
		for i := 0; i < maxRows; i++ {
			if len(full[i][j]) > 0 {
				lastCol = j
				break
			}
		}
	}

	if lastRow < 0 || lastCol < 0 {
		return Matrix[T]{}
	}

	trimmed := make(Matrix[T], lastRow+1)
	for i := range trimmed {
		trimmed[i] = full[i][:lastCol+1]
	}
	return trimmed
}

// BuildDefault 使用默认尺寸构建网格。
func BuildDefault[T Placeable](items []T) Matrix[T] {
	return Build(items, DefaultMaxRows, DefaultMaxCols)
}

// HasAnyItems 当矩阵中至少一个桶非空时返回 true。
func HasAnyItems[T any](m Matrix[T]) bool {
	for _, row := range m {
		for _, bucket := range row {
			if len(bucket) > 0 {
				return true
			}
		}
	}
	return false
}

func compareItems[T Placeable](a, b T) int {
	ar, ac := a.Cell()
	br, bc := b.Cell()
	if c := cmp.Compare(ar, br); c != 0 {
		return c
	}
	if c := cmp.Compare(ac, bc); c != 0 {
		return c
	}
	return a.PlacedAt().Compare(b.PlacedAt())
}

// Map 按位置把矩阵中的每个条目转换为另一种类型，形状保持不变。
func Map[T, U any](m Matrix[T], f func(T) U) Matrix[U] {
	out := make(Matrix[U], len(m))
	for i, row := range m {
		out[i] = make([][]U, len(row))
		for j, bucket := range row {
			if len(bucket) == 0 {
				continue
			}
			out[i][j] = make([]U, len(bucket))
			for k, item := range bucket {
				out[i][j][k] = f(item)
			}
		}
	}
	return out
}
