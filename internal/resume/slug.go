package resume

import (
	"context"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
)

// Slugs 返回候选 slug：先用 "用户名-职位名"，冲突时再带上职位分类。
func Slugs(username string, pos database.Position) (primary, fallback string) {
	return slug.Make(username + "-" + pos.Title),
		slug.Make(username + "-" + pos.Category + "-" + pos.Title)
}

// deriveSlug 选择第一个未被占用的候选。
// 两个候选都被占用时返回 slug 字段上的 KindDuplicate。
func deriveSlug(ctx context.Context, tx *gorm.DB, username string, pos database.Position) (string, error) {
	primary, fallback := Slugs(username, pos)
	if primary == "" {
		return "", apperr.Validation("slug", "cannot derive a slug from username and position title")
	}
	for _, candidate := range []string{primary, fallback} {
		taken, err := slugTaken(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", apperr.Duplicate("slug", "resume with slug "+fallback+" already exists")
}

func slugTaken(ctx context.Context, tx *gorm.DB, candidate string) (bool, error) {
	var n int64
	if err := tx.WithContext(ctx).Model(&database.Resume{}).Where("slug = ?", candidate).Count(&n).Error; err != nil {
		return false, apperr.Internal(err, "slug lookup")
	}
	return n > 0, nil
}
