package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/guard"
	"github.com/AlexanderCholiy/resume-safari/internal/validation"
)

// DateLayout 是请求与响应中日期的格式。
const DateLayout = "2006-01-02"

// EducationInput 是一条教育经历，(institution, start_date) 为用户内唯一键。
type EducationInput struct {
	Institution  string  `json:"institution" validate:"required,max=255"`
	Degree       string  `json:"degree" validate:"required,max=255"`
	FieldOfStudy string  `json:"field_of_study" validate:"required,max=255"`
	StartDate    string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// ExperienceInput 是一条工作经历，(company, start_date) 为用户内唯一键。
type ExperienceInput struct {
	Company          string  `json:"company" validate:"required,max=255"`
	Position         string  `json:"position" validate:"required,max=255"`
	Responsibilities string  `json:"responsibilities" validate:"max=5000"`
	StartDate        string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate          *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type period struct {
	start datatypes.Date
	end   *datatypes.Date
}

func parsePeriod(start string, end *string) (period, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return period{}, apperr.Validation("start_date", "must be a date in 2006-01-02 format")
	}
	p := period{start: datatypes.Date(s)}
	if end == nil || strings.TrimSpace(*end) == "" {
		return p, nil
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(*end))
	if err != nil {
		return period{}, apperr.Validation("end_date", "must be a date in 2006-01-02 format")
	}
	if err := guard.ValidatePeriod(s, &e); err != nil {
		return period{}, err
	}
	ed := datatypes.Date(e)
	p.end = &ed
	return p, nil
}

func dateKey(d datatypes.Date) string {
	return time.Time(d).UTC().Format(DateLayout)
}

func recordKey(name string, start datatypes.Date) string {
	return name + "\x00" + dateKey(start)
}

type educationRecord struct {
	in     EducationInput
	period period
}

func (r educationRecord) key() string { return recordKey(strings.TrimSpace(r.in.Institution), r.period.start) }

func (r educationRecord) apply(e *database.Education) {
	e.Institution = strings.TrimSpace(r.in.Institution)
	e.Degree = strings.TrimSpace(r.in.Degree)
	e.FieldOfStudy = strings.TrimSpace(r.in.FieldOfStudy)
	e.StartDate = r.period.start
	e.EndDate = r.period.end
}

func prepareEducation(in EducationInput) (educationRecord, error) {
	if err := validation.Struct(in); err != nil {
		return educationRecord{}, err
	}
	p, err := parsePeriod(in.StartDate, in.EndDate)
	if err != nil {
		return educationRecord{}, err
	}
	return educationRecord{in: in, period: p}, nil
}

type experienceRecord struct {
	in     ExperienceInput
	period period
}

func (r experienceRecord) key() string { return recordKey(strings.TrimSpace(r.in.Company), r.period.start) }

func (r experienceRecord) apply(e *database.Experience) {
	e.Company = strings.TrimSpace(r.in.Company)
	e.Position = strings.TrimSpace(r.in.Position)
	e.Responsibilities = strings.TrimSpace(r.in.Responsibilities)
	e.StartDate = r.period.start
	e.EndDate = r.period.end
}

func prepareExperience(in ExperienceInput) (experienceRecord, error) {
	if err := validation.Struct(in); err != nil {
		return experienceRecord{}, err
	}
	p, err := parsePeriod(in.StartDate, in.EndDate)
	if err != nil {
		return experienceRecord{}, err
	}
	return experienceRecord{in: in, period: p}, nil
}

func loadEducations(ctx context.Context, tx *gorm.DB, ownerID uint) (map[string]database.Education, error) {
	var rows []database.Education
	if err := tx.WithContext(ctx).Where("user_id = ?", ownerID).Order("id").Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "load educations")
	}
	out := make(map[string]database.Education, len(rows))
	for _, r := range rows {
		out[recordKey(r.Institution, r.StartDate)] = r
	}
	return out, nil
}

func loadExperiences(ctx context.Context, tx *gorm.DB, ownerID uint) (map[string]database.Experience, error) {
	var rows []database.Experience
	if err := tx.WithContext(ctx).Where("user_id = ?", ownerID).Order("id").Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "load experiences")
	}
	out := make(map[string]database.Experience, len(rows))
	for _, r := range rows {
		out[recordKey(r.Company, r.StartDate)] = r
	}
	return out, nil
}

// UpsertEducation 按 (institution, start_date) 更新用户已有的教育经历，不存在时在配额内新建。
func UpsertEducation(ctx context.Context, tx *gorm.DB, ownerID uint, in EducationInput, limit int) (database.Education, error) {
	rec, err := prepareEducation(in)
	if err != nil {
		return database.Education{}, err
	}
	existing, err := loadEducations(ctx, tx, ownerID)
	if err != nil {
		return database.Education{}, err
	}
	return saveEducation(ctx, tx, ownerID, rec, existing, limit)
}

// UpsertExperience 按 (company, start_date) 更新用户已有的工作经历，不存在时在配额内新建。
func UpsertExperience(ctx context.Context, tx *gorm.DB, ownerID uint, in ExperienceInput, limit int) (database.Experience, error) {
	rec, err := prepareExperience(in)
	if err != nil {
		return database.Experience{}, err
	}
	existing, err := loadExperiences(ctx, tx, ownerID)
	if err != nil {
		return database.Experience{}, err
	}
	return saveExperience(ctx, tx, ownerID, rec, existing, limit)
}

func saveEducation(ctx context.Context, tx *gorm.DB, ownerID uint, rec educationRecord, existing map[string]database.Education, limit int) (database.Education, error) {
	row, found := existing[rec.key()]
	if !found {
		if err := guard.CheckCapacity(ctx, tx, guard.EducationOf(ownerID), limit); err != nil {
			return database.Education{}, err
		}
		row = database.Education{UserID: ownerID}
	}
	rec.apply(&row)
	if err := tx.WithContext(ctx).Save(&row).Error; err != nil {
		return database.Education{}, guard.TranslateWriteError(err, "start_date")
	}
	existing[rec.key()] = row
	return row, nil
}

func saveExperience(ctx context.Context, tx *gorm.DB, ownerID uint, rec experienceRecord, existing map[string]database.Experience, limit int) (database.Experience, error) {
	row, found := existing[rec.key()]
	if !found {
		if err := guard.CheckCapacity(ctx, tx, guard.ExperienceOf(ownerID), limit); err != nil {
			return database.Experience{}, err
		}
		row = database.Experience{UserID: ownerID}
	}
	rec.apply(&row)
	if err := tx.WithContext(ctx).Save(&row).Error; err != nil {
		return database.Experience{}, guard.TranslateWriteError(err, "start_date")
	}
	existing[rec.key()] = row
	return row, nil
}

// ReplaceEducations 用 items 取代用户的全部教育经历：先删除不再出现的记录，
// 再原地更新键相同的记录并插入新记录。返回顺序与 items 一致。
func ReplaceEducations(ctx context.Context, tx *gorm.DB, ownerID uint, items []EducationInput, limit int) ([]database.Education, error) {
	records := make([]educationRecord, len(items))
	seen := make(map[string]int, len(items))
	for i, in := range items {
		rec, err := prepareEducation(in)
		if err != nil {
			return nil, apperr.Prefix(err, fmt.Sprintf("educations[%d].", i))
		}
		if j, dup := seen[rec.key()]; dup {
			return nil, apperr.Duplicate(fmt.Sprintf("educations[%d]", i),
				fmt.Sprintf("same institution and start_date as educations[%d]", j))
		}
		seen[rec.key()] = i
		records[i] = rec
	}

	existing, err := loadEducations(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}

	var stale []uint
	for key, row := range existing {
		if _, keep := seen[key]; !keep {
			stale = append(stale, row.ID)
			delete(existing, key)
		}
	}
	if err := deleteEducations(ctx, tx, stale); err != nil {
		return nil, err
	}

	out := make([]database.Education, 0, len(records))
	for i, rec := range records {
		row, err := saveEducation(ctx, tx, ownerID, rec, existing, limit)
		if err != nil {
			if apperr.Is(err, apperr.KindCapacity) {
				return nil, err
			}
			return nil, apperr.Prefix(err, fmt.Sprintf("educations[%d].", i))
		}
		out = append(out, row)
	}
	return out, nil
}

// ReplaceExperiences 与 ReplaceEducations 相同，键为 (company, start_date)。
func ReplaceExperiences(ctx context.Context, tx *gorm.DB, ownerID uint, items []ExperienceInput, limit int) ([]database.Experience, error) {
	records := make([]experienceRecord, len(items))
	seen := make(map[string]int, len(items))
	for i, in := range items {
		rec, err := prepareExperience(in)
		if err != nil {
			return nil, apperr.Prefix(err, fmt.Sprintf("experiences[%d].", i))
		}
		if j, dup := seen[rec.key()]; dup {
			return nil, apperr.Duplicate(fmt.Sprintf("experiences[%d]", i),
				fmt.Sprintf("same company and start_date as experiences[%d]", j))
		}
		seen[rec.key()] = i
		records[i] = rec
	}

	existing, err := loadExperiences(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}

	var stale []uint
	for key, row := range existing {
		if _, keep := seen[key]; !keep {
			stale = append(stale, row.ID)
			delete(existing, key)
		}
	}
	if err := deleteExperiences(ctx, tx, stale); err != nil {
		return nil, err
	}

	out := make([]database.Experience, 0, len(records))
	for i, rec := range records {
		row, err := saveExperience(ctx, tx, ownerID, rec, existing, limit)
		if err != nil {
			if apperr.Is(err, apperr.KindCapacity) {
				return nil, err
			}
			return nil, apperr.Prefix(err, fmt.Sprintf("experiences[%d].", i))
		}
		out = append(out, row)
	}
	return out, nil
}

func deleteEducations(ctx context.Context, tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	db := tx.WithContext(ctx)
	if err := db.Where("education_id IN ?", ids).Delete(&database.ResumeEducation{}).Error; err != nil {
		return apperr.Internal(err, "unlink educations")
	}
	if err := db.Delete(&database.Education{}, ids).Error; err != nil {
		return apperr.Internal(err, "delete educations")
	}
	return nil
}

func deleteExperiences(ctx context.Context, tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	db := tx.WithContext(ctx)
	if err := db.Where("experience_id IN ?", ids).Delete(&database.ResumeExperience{}).Error; err != nil {
		return apperr.Internal(err, "unlink experiences")
	}
	if err := db.Delete(&database.Experience{}, ids).Error; err != nil {
		return apperr.Internal(err, "delete experiences")
	}
	return nil
}
