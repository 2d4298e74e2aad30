// Package catalog 维护共享的参考数据目录（技能名、地区、职位），
// 所有写入都经过规范化匹配，避免大小写与首尾空白造成的重复。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/guard"
	"github.com/AlexanderCholiy/resume-safari/internal/metrics"
)

const (
	MaxNameLength        = 150
	MaxDescriptionLength = 255
)

const duplicateMessage = "duplicate reference data"

// Spec 描述一个目录：键字段、对应的规范化列以及如何构造与更新行。
type Spec[T any] struct {
	// Name 用于日志与指标标签。
	Name string
	// Fields 是输入字段名，出错时作为字段路径。
	Fields []string
	// Columns 是与 Fields 一一对应的规范化键列。
	Columns []string
	// Build 用去掉首尾空白的输入构造新行。
	Build func(values []string) T
	// Apply 更新非键字段，可为空。
	Apply func(row *T) error
}

// FindOrUpsert 按规范化键查找目录行：命中时更新非键字段，未命中时插入新行。
// 返回的 created 表示是否新建。并发插入导致的唯一冲突返回 KindDuplicate。
func FindOrUpsert[T any](ctx context.Context, tx *gorm.DB, spec Spec[T], values ...string) (T, bool, error) {
	var zero T
	if len(values) != len(spec.Columns) {
		return zero, false, fmt.Errorf("catalog %s: expected %d values, got %d", spec.Name, len(spec.Columns), len(values))
	}

	trimmed := make([]string, len(values))
	where := make(map[string]any, len(values))
	var verr *apperr.Error
	for i, v := range values {
		trimmed[i] = strings.TrimSpace(v)
		switch {
		case trimmed[i] == "":
			verr = addField(verr, spec.Fields[i], "this field is required")
		case utf8.RuneCountInString(trimmed[i]) > MaxNameLength:
			verr = addField(verr, spec.Fields[i], fmt.Sprintf("must be at most %d characters", MaxNameLength))
		}
		where[spec.Columns[i]] = database.NormalizeKey(v)
	}
	if verr != nil {
		return zero, false, verr
	}

	db := tx.WithContext(ctx)

	var row T
	err := db.Where(where).Take(&row).Error
	switch {
	case err == nil:
		if spec.Apply != nil {
			if err := spec.Apply(&row); err != nil {
				return zero, false, err
			}
			if err := db.Save(&row).Error; err != nil {
				return zero, false, translate(err, spec.Fields[0])
			}
		}
		metrics.CatalogUpserts.WithLabelValues(spec.Name, "matched").Inc()
		return row, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return zero, false, apperr.Internal(err, "lookup "+spec.Name)
	}

	row = spec.Build(trimmed)
	if spec.Apply != nil {
		if err := spec.Apply(&row); err != nil {
			return zero, false, err
		}
	}
	if err := db.Create(&row).Error; err != nil {
		return zero, false, translate(err, spec.Fields[0])
	}
	metrics.CatalogUpserts.WithLabelValues(spec.Name, "created").Inc()
	return row, true, nil
}

func translate(err error, field string) error {
	if guard.IsUniqueViolation(err) {
		return apperr.Wrap(err, apperr.KindDuplicate, duplicateMessage).WithField(field, duplicateMessage)
	}
	return guard.TranslateWriteError(err, field)
}

func addField(e *apperr.Error, field, msg string) *apperr.Error {
	if e == nil {
		e = apperr.New(apperr.KindValidation, "invalid input")
	}
	return e.WithField(field, msg)
}
