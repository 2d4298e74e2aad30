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
)

func describe(description *string) func(*string) (*string, error) {
	return func(current *string) (*string, error) {
		if description == nil {
			return current, nil
		}
		d := strings.TrimSpace(*description)
		if utf8.RuneCountInString(d) > MaxDescriptionLength {
			return nil, apperr.Validation("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
		}
		if d == "" {
			return nil, nil
		}
		return &d, nil
	}
}

// HardSkills 返回硬技能目录；description 非空时覆盖已有描述。
func HardSkills(description *string) Spec[database.HardSkillName] {
	apply := describe(description)
	return Spec[database.HardSkillName]{
		Name:    "hard_skill",
		Fields:  []string{"name"},
		Columns: []string{"name_key"},
		Build: func(v []string) database.HardSkillName {
			return database.HardSkillName{Name: v[0]}
		},
		Apply: func(row *database.HardSkillName) (err error) {
			row.Description, err = apply(row.Description)
			return err
		},
	}
}

// SoftSkills 返回软技能目录。
func SoftSkills(description *string) Spec[database.SoftSkillName] {
	apply := describe(description)
	return Spec[database.SoftSkillName]{
		Name:    "soft_skill",
		Fields:  []string{"name"},
		Columns: []string{"name_key"},
		Build: func(v []string) database.SoftSkillName {
			return database.SoftSkillName{Name: v[0]}
		},
		Apply: func(row *database.SoftSkillName) (err error) {
			row.Description, err = apply(row.Description)
			return err
		},
	}
}

// Locations 返回 (country, city) 目录。
func Locations() Spec[database.Location] {
	return Spec[database.Location]{
		Name:    "location",
		Fields:  []string{"country", "city"},
		Columns: []string{"country_key", "city_key"},
		Build: func(v []string) database.Location {
			return database.Location{Country: v[0], City: v[1]}
		},
	}
}

// Positions 返回 (category, title) 目录。
func Positions() Spec[database.Position] {
	return Spec[database.Position]{
		Name:    "position",
		Fields:  []string{"category", "title"},
		Columns: []string{"category_key", "title_key"},
		Build: func(v []string) database.Position {
			return database.Position{Category: v[0], Title: v[1]}
		},
	}
}

// Get 按主键读取目录行，不存在时返回带字段的 KindNotFound。
func Get[T any](ctx context.Context, tx *gorm.DB, id uint, field string) (T, error) {
	var row T
	err := tx.WithContext(ctx).Take(&row, id).Error
	switch {
	case err == nil:
		return row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return row, apperr.NotFound(field, fmt.Sprintf("object with id %d does not exist", id))
	default:
		return row, apperr.Internal(err, "lookup "+field)
	}
}

// Page 是分页结果。
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Search 按规范化键做子串匹配并分页，columns 为参与匹配的键列。
func Search[T any](ctx context.Context, db *gorm.DB, columns []string, q string, page, pageSize int) (Page[T], error) {
	page, pageSize = NormalizePaging(page, pageSize)
	out := Page[T]{Page: page, PageSize: pageSize}

	query := db.WithContext(ctx).Model(new(T))
	if key := database.NormalizeKey(q); key != "" {
		like := database.ContainsPattern(key)
		conds := make([]string, len(columns))
		args := make([]any, len(columns))
		for i, c := range columns {
			conds[i] = c + ` LIKE ? ESCAPE '\'`
			args[i] = like
		}
		query = query.Where(strings.Join(conds, " OR "), args...)
	}
	query = query.Session(&gorm.Session{})

	if err := query.Count(&out.Total).Error; err != nil {
		return out, apperr.Internal(err, "count catalog")
	}
	if err := query.Order("id").Offset((page - 1) * pageSize).Limit(pageSize).Find(&out.Items).Error; err != nil {
		return out, apperr.Internal(err, "list catalog")
	}
	if out.Items == nil {
		out.Items = []T{}
	}
	return out, nil
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePaging 把页码与页大小收敛到合法区间。
func NormalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
