package resume

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/catalog"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/guard"
	"github.com/AlexanderCholiy/resume-safari/internal/profile"
)

// placements 描述一种技能放置：对应的目录、放置表以及配额。
type placements[N any] struct {
	field   string
	spec    func(description *string) catalog.Spec[N]
	id      func(N) uint
	model   func() any
	counter func(resumeID uint) guard.Counter
	build   func(resumeID, skillID uint, row, col int) any
}

var hardSkillPlacements = placements[database.HardSkillName]{
	field:   "hard_skills",
	spec:    catalog.HardSkills,
	id:      func(n database.HardSkillName) uint { return n.ID },
	model:   func() any { return &database.HardSkill{} },
	counter: guard.HardSkillsOf,
	build: func(resumeID, skillID uint, row, col int) any {
		return &database.HardSkill{ResumeID: resumeID, SkillID: skillID, GridRow: row, GridColumn: col}
	},
}

var softSkillPlacements = placements[database.SoftSkillName]{
	field:   "soft_skills",
	spec:    catalog.SoftSkills,
	id:      func(n database.SoftSkillName) uint { return n.ID },
	model:   func() any { return &database.SoftSkill{} },
	counter: guard.SoftSkillsOf,
	build: func(resumeID, skillID uint, row, col int) any {
		return &database.SoftSkill{ResumeID: resumeID, SkillID: skillID, GridRow: row, GridColumn: col}
	},
}

// publishedSlugs 列出放置了 skillID 的已发布简历。
func (p placements[N]) publishedSlugs(ctx context.Context, db *gorm.DB, skillID uint) ([]string, error) {
	var slugs []string
	placed := db.Model(p.model()).Select("resume_id").Where("skill_id = ?", skillID)
	err := db.WithContext(ctx).Model(&database.Resume{}).
		Where("is_published = ? AND id IN (?)", true, placed).
		Pluck("slug", &slugs).Error
	if err != nil {
		return nil, apperr.Internal(err, "list resumes using "+p.field)
	}
	return slugs, nil
}

func (p placements[N]) resolve(ctx context.Context, tx *gorm.DB, e SkillEntry) (uint, error) {
	if e.SkillID != nil {
		row, err := catalog.Get[N](ctx, tx, *e.SkillID, "skill_id")
		if err != nil {
			return 0, err
		}
		return p.id(row), nil
	}
	if strings.TrimSpace(e.Name) == "" {
		return 0, apperr.Validation("skill", "either skill_id or name is required")
	}
	row, _, err := catalog.FindOrUpsert(ctx, tx, p.spec(e.Description), e.Name)
	if err != nil {
		return 0, apperr.Prefix(err, "skill.")
	}
	return p.id(row), nil
}

// replace 用 entries 取代简历上的全部放置：不再出现的技能先删除，
// 已存在的技能原地更新坐标，其余在容量内插入。
func (p placements[N]) replace(ctx context.Context, tx *gorm.DB, resumeID uint, entries []SkillEntry, maxRows, maxCols int) error {
	ids := make([]uint, len(entries))
	seen := make(map[uint]int, len(entries))
	for i, e := range entries {
		prefix := fmt.Sprintf("%s[%d].", p.field, i)
		if err := guard.ValidateCoordinates(e.GridRow, e.GridColumn, maxRows, maxCols); err != nil {
			return apperr.Prefix(err, prefix)
		}
		id, err := p.resolve(ctx, tx, e)
		if err != nil {
			return apperr.Prefix(err, prefix)
		}
		if j, dup := seen[id]; dup {
			return apperr.Duplicate(prefix+"skill", fmt.Sprintf("skill is already placed at %s[%d]", p.field, j))
		}
		seen[id] = i
		ids[i] = id
	}

	db := tx.WithContext(ctx)
	var existing []uint
	if err := db.Model(p.model()).Where("resume_id = ?", resumeID).Pluck("skill_id", &existing).Error; err != nil {
		return apperr.Internal(err, "load "+p.field)
	}
	current := make(map[uint]bool, len(existing))
	var stale []uint
	for _, id := range existing {
		if _, keep := seen[id]; keep {
			current[id] = true
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := db.Where("resume_id = ? AND skill_id IN ?", resumeID, stale).Delete(p.model()).Error; err != nil {
			return apperr.Internal(err, "delete "+p.field)
		}
	}

	for i, e := range entries {
		if current[ids[i]] {
			err := db.Model(p.model()).
				Where("resume_id = ? AND skill_id = ?", resumeID, ids[i]).
				Updates(map[string]any{"grid_row": e.GridRow, "grid_column": e.GridColumn}).Error
			if err != nil {
				return apperr.Internal(err, "update "+p.field)
			}
			continue
		}
		if err := guard.CheckCapacity(ctx, tx, p.counter(resumeID), maxRows*maxCols); err != nil {
			return err
		}
		if err := db.Create(p.build(resumeID, ids[i], e.GridRow, e.GridColumn)).Error; err != nil {
			return apperr.Prefix(guard.TranslateWriteError(err, "skill"), fmt.Sprintf("%s[%d].", p.field, i))
		}
		current[ids[i]] = true
	}
	return nil
}

// links 描述简历与用户自有记录之间的关联表。
type links struct {
	field  string
	column string
	model  func() any
	build  func(resumeID, id uint) any
}

var educationLinks = links{
	field:  "educations",
	column: "education_id",
	model:  func() any { return &database.ResumeEducation{} },
	build: func(resumeID, id uint) any {
		return &database.ResumeEducation{ResumeID: resumeID, EducationID: id}
	},
}

var experienceLinks = links{
	field:  "experiences",
	column: "experience_id",
	model:  func() any { return &database.ResumeExperience{} },
	build: func(resumeID, id uint) any {
		return &database.ResumeExperience{ResumeID: resumeID, ExperienceID: id}
	},
}

// relink 让简历恰好关联 ids 中的记录。关联行之外的记录本身不受影响。
func (l links) relink(ctx context.Context, tx *gorm.DB, resumeID uint, ids []uint) error {
	db := tx.WithContext(ctx)
	var existing []uint
	if err := db.Model(l.model()).Where("resume_id = ?", resumeID).Pluck(l.column, &existing).Error; err != nil {
		return apperr.Internal(err, "load "+l.field+" links")
	}
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	linked := make(map[uint]bool, len(existing))
	var stale []uint
	for _, id := range existing {
		if want[id] {
			linked[id] = true
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := db.Where("resume_id = ? AND "+l.column+" IN ?", resumeID, stale).Delete(l.model()).Error; err != nil {
			return apperr.Internal(err, "unlink "+l.field)
		}
	}
	for _, id := range ids {
		if linked[id] {
			continue
		}
		if err := db.Create(l.build(resumeID, id)).Error; err != nil {
			return guard.TranslateWriteError(err, l.field)
		}
		linked[id] = true
	}
	return nil
}

// dedupe 记录 ids[i]，同一条记录在批次中出现两次时返回 KindDuplicate。
func (l links) dedupe(seen map[uint]int, i int, id uint) error {
	if j, dup := seen[id]; dup {
		return apperr.Duplicate(fmt.Sprintf("%s[%d]", l.field, i),
			fmt.Sprintf("same record as %s[%d]", l.field, j))
	}
	seen[id] = i
	return nil
}

func ownedRecord[T any](ctx context.Context, tx *gorm.DB, ownerID, id uint, label string) (T, error) {
	var row T
	err := tx.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).Take(&row).Error
	switch {
	case err == nil:
		return row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return row, apperr.NotFound("id", fmt.Sprintf("%s with id %d does not exist", label, id))
	default:
		return row, apperr.Internal(err, "load "+label)
	}
}

func nestedError(err error, field string, i int) error {
	if apperr.Is(err, apperr.KindCapacity) {
		return err
	}
	return apperr.Prefix(err, fmt.Sprintf("%s[%d].", field, i))
}

func linkEducations(ctx context.Context, tx *gorm.DB, ownerID, resumeID uint, entries []EducationEntry, limit int) error {
	ids := make([]uint, len(entries))
	seen := make(map[uint]int, len(entries))
	for i, e := range entries {
		var row database.Education
		var err error
		if e.ID != nil {
			row, err = ownedRecord[database.Education](ctx, tx, ownerID, *e.ID, "education")
		} else {
			row, err = profile.UpsertEducation(ctx, tx, ownerID, e.EducationInput, limit)
		}
		if err != nil {
			return nestedError(err, educationLinks.field, i)
		}
		if err := educationLinks.dedupe(seen, i, row.ID); err != nil {
			return err
		}
		ids[i] = row.ID
	}
	return educationLinks.relink(ctx, tx, resumeID, ids)
}

func linkExperiences(ctx context.Context, tx *gorm.DB, ownerID, resumeID uint, entries []ExperienceEntry, limit int) error {
	ids := make([]uint, len(entries))
	seen := make(map[uint]int, len(entries))
	for i, e := range entries {
		var row database.Experience
		var err error
		if e.ID != nil {
			row, err = ownedRecord[database.Experience](ctx, tx, ownerID, *e.ID, "experience")
		} else {
			row, err = profile.UpsertExperience(ctx, tx, ownerID, e.ExperienceInput, limit)
		}
		if err != nil {
			return nestedError(err, experienceLinks.field, i)
		}
		if err := experienceLinks.dedupe(seen, i, row.ID); err != nil {
			return err
		}
		ids[i] = row.ID
	}
	return experienceLinks.relink(ctx, tx, resumeID, ids)
}
