// Package resume 维护简历聚合：职位、slug、发布状态以及技能网格与经历关联。
package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/catalog"
	"github.com/AlexanderCholiy/resume-safari/internal/config"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/guard"
	"github.com/AlexanderCholiy/resume-safari/internal/metrics"
)

// Publisher 在简历写入提交后收到通知，实现自行处理失败，不影响请求结果。
type Publisher interface {
	ResumeSaved(ctx context.Context, r *database.Resume, previousSlug string)
	ResumeDeleted(ctx context.Context, r *database.Resume)
}

type nopPublisher struct{}

func (nopPublisher) ResumeSaved(context.Context, *database.Resume, string) {}
func (nopPublisher) ResumeDeleted(context.Context, *database.Resume)       {}

// Service 提供简历的增删改查。
type Service struct {
	db        *gorm.DB
	limits    config.LimitsConfig
	publisher Publisher
	logger    *slog.Logger
}

// NewService 构造简历服务，publisher 可为 nil。
func NewService(db *gorm.DB, limits config.LimitsConfig, publisher Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, limits: limits, publisher: publisher, logger: logger}
}

// Limits 返回服务使用的网格尺寸与配额。
func (s *Service) Limits() config.LimitsConfig { return s.limits }

// Create 为 ownerID 新建简历，整个过程在一个事务中完成。
func (s *Service) Create(ctx context.Context, ownerID uint, in CreateInput) (*database.Resume, error) {
	if err := s.checkAboutMe(in.AboutMe); err != nil {
		return nil, s.observe("create", err)
	}

	var out *database.Resume
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := loadOwner(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		pos, err := resolvePosition(ctx, tx, in.Position)
		if err != nil {
			return err
		}
		if err := s.checkQuota(ctx, tx, ownerID, in.IsPublished); err != nil {
			return err
		}
		if err := checkOwnerPosition(ctx, tx, ownerID, pos.ID, 0); err != nil {
			return err
		}
		slugValue, err := deriveSlug(ctx, tx, owner.Username, pos)
		if err != nil {
			return err
		}

		r := database.Resume{
			UserID:      ownerID,
			PositionID:  pos.ID,
			Slug:        slugValue,
			AboutMe:     strings.TrimSpace(in.AboutMe),
			IsPublished: in.IsPublished,
		}
		if err := tx.Omit(clause.Associations).Create(&r).Error; err != nil {
			return &writeConflict{err: err, ownerID: ownerID, positionID: pos.ID}
		}
		if err := s.applyNested(ctx, tx, ownerID, r.ID, in.Nested); err != nil {
			return err
		}
		out, err = load(ctx, tx, "resumes.id = ?", r.ID)
		return err
	})
	if err := s.observe("create", s.resolveConflict(ctx, err)); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "resume created",
		slog.Uint64("resume_id", uint64(out.ID)),
		slog.Uint64("user_id", uint64(ownerID)),
		slog.String("slug", out.Slug),
	)
	s.publisher.ResumeSaved(ctx, out, "")
	return out, nil
}

// Update 部分更新简历。slug 只在创建时生成，更换职位不会改变；切换发布状态会检查目标配额。
func (s *Service) Update(ctx context.Context, actor Actor, slugValue string, in UpdateInput) (*database.Resume, error) {
	return s.update(ctx, "update", actor, slugValue, in)
}

// ReplaceNested 只替换嵌套集合。
func (s *Service) ReplaceNested(ctx context.Context, actor Actor, slugValue string, nested Nested) (*database.Resume, error) {
	return s.update(ctx, "replace_nested", actor, slugValue, UpdateInput{Nested: nested})
}

func (s *Service) update(ctx context.Context, op string, actor Actor, slugValue string, in UpdateInput) (*database.Resume, error) {
	if in.AboutMe != nil {
		if err := s.checkAboutMe(*in.AboutMe); err != nil {
			return nil, s.observe(op, err)
		}
	}

	var out *database.Resume
	var previousSlug string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := loadForWrite(ctx, tx, actor, slugValue)
		if err != nil {
			return err
		}
		previousSlug = r.Slug

		if in.AboutMe != nil {
			r.AboutMe = strings.TrimSpace(*in.AboutMe)
		}
		if in.Position != nil {
			pos, err := resolvePosition(ctx, tx, *in.Position)
			if err != nil {
				return err
			}
			if pos.ID != r.PositionID {
				if err := checkOwnerPosition(ctx, tx, r.UserID, pos.ID, r.ID); err != nil {
					return err
				}
				r.PositionID = pos.ID
			}
		}
		if in.IsPublished != nil && *in.IsPublished != r.IsPublished {
			if err := s.checkQuota(ctx, tx, r.UserID, *in.IsPublished); err != nil {
				return err
			}
			r.IsPublished = *in.IsPublished
		}

		if err := tx.Omit(clause.Associations).Save(r).Error; err != nil {
			return &writeConflict{err: err, ownerID: r.UserID, positionID: r.PositionID, selfID: r.ID}
		}
		if err := s.applyNested(ctx, tx, r.UserID, r.ID, in.Nested); err != nil {
			return err
		}
		out, err = load(ctx, tx, "resumes.id = ?", r.ID)
		return err
	})
	if err := s.observe(op, s.resolveConflict(ctx, err)); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "resume updated",
		slog.String("operation", op),
		slog.Uint64("resume_id", uint64(out.ID)),
		slog.String("slug", out.Slug),
	)
	s.publisher.ResumeSaved(ctx, out, previousSlug)
	return out, nil
}

// Delete 删除简历及其放置与关联行，用户自有的经历记录保留。
func (s *Service) Delete(ctx context.Context, actor Actor, slugValue string) error {
	var deleted *database.Resume
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := loadForWrite(ctx, tx, actor, slugValue)
		if err != nil {
			return err
		}
		for _, model := range []any{
			&database.HardSkill{},
			&database.SoftSkill{},
			&database.ResumeEducation{},
			&database.ResumeExperience{},
		} {
			if err := tx.Where("resume_id = ?", r.ID).Delete(model).Error; err != nil {
				return apperr.Internal(err, "delete resume children")
			}
		}
		if err := tx.Delete(r).Error; err != nil {
			return apperr.Internal(err, "delete resume")
		}
		deleted = r
		return nil
	})
	if err := s.observe("delete", err); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "resume deleted",
		slog.Uint64("resume_id", uint64(deleted.ID)),
		slog.String("slug", deleted.Slug),
	)
	s.publisher.ResumeDeleted(ctx, deleted)
	return nil
}

// Get 读取简历。未发布的简历只对所有者与管理员可见，viewer 为 nil 表示匿名访问。
func (s *Service) Get(ctx context.Context, viewer *Actor, slugValue string) (*database.Resume, error) {
	r, err := load(ctx, s.db, "resumes.slug = ?", slugValue)
	if err != nil {
		return nil, err
	}
	if !r.IsPublished && !canEdit(viewer, r) {
		return nil, notFound()
	}
	return r, nil
}

// GetByID 按主键读取简历，不做可见性检查，供后台任务使用。
func (s *Service) GetByID(ctx context.Context, id uint) (*database.Resume, error) {
	return load(ctx, s.db, "resumes.id = ?", id)
}

// IsPublished 确认 id 与 slug 仍指向同一份已发布简历。
func (s *Service) IsPublished(ctx context.Context, id uint, slugValue string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&database.Resume{}).
		Where("id = ? AND slug = ? AND is_published = ?", id, slugValue, true).
		Count(&n).Error
	if err != nil {
		return false, apperr.Internal(err, "check resume visibility")
	}
	return n > 0, nil
}

// HardSkillSlugs 列出放置了该硬技能的已发布简历。
func (s *Service) HardSkillSlugs(ctx context.Context, skillID uint) ([]string, error) {
	return hardSkillPlacements.publishedSlugs(ctx, s.db, skillID)
}

// SoftSkillSlugs 列出放置了该软技能的已发布简历。
func (s *Service) SoftSkillSlugs(ctx context.Context, skillID uint) ([]string, error) {
	return softSkillPlacements.publishedSlugs(ctx, s.db, skillID)
}

// ListPublished 按条件分页列出已发布简历，最近更新的在前。
func (s *Service) ListPublished(ctx context.Context, f Filter) (catalog.Page[database.Resume], error) {
	page, pageSize := catalog.NormalizePaging(f.Page, f.PageSize)
	out := catalog.Page[database.Resume]{Page: page, PageSize: pageSize, Items: []database.Resume{}}

	q := s.db.WithContext(ctx).Model(&database.Resume{}).
		Joins("JOIN positions ON positions.id = resumes.position_id").
		Joins("JOIN users ON users.id = resumes.user_id").
		Where("resumes.is_published = ?", true)
	if key := database.NormalizeKey(f.Query); key != "" {
		like := database.ContainsPattern(key)
		q = q.Where(
			`positions.title_key LIKE ? ESCAPE '\' OR positions.category_key LIKE ? ESCAPE '\' OR `+
				`LOWER(users.username) LIKE ? ESCAPE '\' OR LOWER(resumes.about_me) LIKE ? ESCAPE '\'`,
			like, like, like, like,
		)
	}
	if f.PositionID != 0 {
		q = q.Where("resumes.position_id = ?", f.PositionID)
	}
	if key := database.NormalizeKey(f.Category); key != "" {
		q = q.Where("positions.category_key = ?", key)
	}
	if f.HardSkillID != 0 {
		q = q.Where("EXISTS (SELECT 1 FROM hard_skills WHERE hard_skills.resume_id = resumes.id AND hard_skills.skill_id = ?)", f.HardSkillID)
	}
	if f.LocationID != 0 {
		q = q.Where("users.location_id = ?", f.LocationID)
	}
	q = q.Session(&gorm.Session{})

	if err := q.Count(&out.Total).Error; err != nil {
		return out, apperr.Internal(err, "count resumes")
	}
	err := preloadSummary(q).
		Select("resumes.*").
		Order("resumes.updated_at DESC, resumes.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out.Items).Error
	if err != nil {
		return out, apperr.Internal(err, "list resumes")
	}
	return out, nil
}

// ListOwned 列出用户自己的全部简历，包括草稿。
func (s *Service) ListOwned(ctx context.Context, ownerID uint) ([]database.Resume, error) {
	items := []database.Resume{}
	err := preloadSummary(s.db.WithContext(ctx)).
		Where("user_id = ?", ownerID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, apperr.Internal(err, "list own resumes")
	}
	return items, nil
}

func (s *Service) applyNested(ctx context.Context, tx *gorm.DB, ownerID, resumeID uint, n Nested) error {
	rows, cols := s.limits.GridMaxRows, s.limits.GridMaxCols
	if n.HardSkills != nil {
		if err := hardSkillPlacements.replace(ctx, tx, resumeID, *n.HardSkills, rows, cols); err != nil {
			return err
		}
	}
	if n.SoftSkills != nil {
		if err := softSkillPlacements.replace(ctx, tx, resumeID, *n.SoftSkills, rows, cols); err != nil {
			return err
		}
	}
	if n.Educations != nil {
		if err := linkEducations(ctx, tx, ownerID, resumeID, *n.Educations, s.limits.MaxEducationAndExperience); err != nil {
			return err
		}
	}
	if n.Experiences != nil {
		if err := linkExperiences(ctx, tx, ownerID, resumeID, *n.Experiences, s.limits.MaxEducationAndExperience); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkAboutMe(aboutMe string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(aboutMe)); n > s.limits.AboutMeMaxLength {
		return apperr.Validation("about_me", fmt.Sprintf("must be at most %d characters", s.limits.AboutMeMaxLength))
	}
	return nil
}

func (s *Service) checkQuota(ctx context.Context, tx *gorm.DB, ownerID uint, published bool) error {
	limit := s.limits.MaxDraftResumes
	if published {
		limit = s.limits.MaxPublishedResumes
	}
	return guard.CheckCapacity(ctx, tx, guard.ResumesOf(ownerID, published), limit)
}

func (s *Service) observe(op string, err error) error {
	result := "ok"
	if err != nil {
		result = "error"
		if ae, ok := apperr.As(err); ok {
			result = string(ae.Kind)
		}
	}
	metrics.ResumeWrites.WithLabelValues(op, result).Inc()
	return err
}

func resolvePosition(ctx context.Context, tx *gorm.DB, ref PositionRef) (database.Position, error) {
	if ref.ID != nil {
		pos, err := catalog.Get[database.Position](ctx, tx, *ref.ID, "id")
		return pos, apperr.Prefix(err, "position.")
	}
	pos, _, err := catalog.FindOrUpsert(ctx, tx, catalog.Positions(), ref.Category, ref.Title)
	if err != nil {
		return pos, apperr.Prefix(err, "position.")
	}
	return pos, nil
}

// writeConflict 包装简历行本身的写入失败，事务回滚后再判断撞上的是哪个唯一索引。
type writeConflict struct {
	err        error
	ownerID    uint
	positionID uint
	selfID     uint
}

func (e *writeConflict) Error() string { return e.err.Error() }
func (e *writeConflict) Unwrap() error { return e.err }

// resolveConflict 在事务外重查 (user_id, position_id)：已被占用报 position，否则是 slug 撞车。
func (s *Service) resolveConflict(ctx context.Context, err error) error {
	var wc *writeConflict
	if !errors.As(err, &wc) {
		return err
	}
	if guard.IsUniqueViolation(wc.err) {
		if taken := checkOwnerPosition(ctx, s.db, wc.ownerID, wc.positionID, wc.selfID); apperr.Is(taken, apperr.KindDuplicate) {
			return taken
		}
	}
	return guard.TranslateWriteError(wc.err, "slug")
}

func checkOwnerPosition(ctx context.Context, tx *gorm.DB, ownerID, positionID, selfID uint) error {
	return guard.CheckUnique(ctx, tx, guard.Unique{
		Field:   "position",
		Message: "you already have a resume for this position",
		Model:   &database.Resume{},
		Where:   map[string]any{"user_id": ownerID, "position_id": positionID},
	}, selfID)
}

func loadOwner(ctx context.Context, tx *gorm.DB, ownerID uint) (database.User, error) {
	var u database.User
	err := tx.WithContext(ctx).Take(&u, ownerID).Error
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return u, apperr.NotFound("user", "user not found")
	default:
		return u, apperr.Internal(err, "load user")
	}
}

func canEdit(actor *Actor, r *database.Resume) bool {
	return actor != nil && (actor.IsStaff || actor.ID == r.UserID)
}

func notFound() error { return apperr.NotFound("slug", "resume not found") }

// loadForWrite 读取待修改的简历。他人的草稿视为不存在，他人已发布的简历返回 KindForbidden。
func loadForWrite(ctx context.Context, tx *gorm.DB, actor Actor, slugValue string) (*database.Resume, error) {
	var r database.Resume
	err := tx.WithContext(ctx).Where("slug = ?", slugValue).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, apperr.Internal(err, "load resume")
	}
	if !canEdit(&actor, &r) {
		if !r.IsPublished {
			return nil, notFound()
		}
		return nil, apperr.Forbidden("you do not have permission to modify this resume")
	}
	return &r, nil
}

func byStartDate(q *gorm.DB) *gorm.DB { return q.Order("start_date DESC, id") }

func byCell(q *gorm.DB) *gorm.DB { return q.Order("grid_row, grid_column, updated_at, id") }

func preloadSummary(db *gorm.DB) *gorm.DB {
	return db.Preload("User.Location").Preload("Position")
}

func load(ctx context.Context, db *gorm.DB, query string, arg any) (*database.Resume, error) {
	var r database.Resume
	err := preloadSummary(db.WithContext(ctx)).
		Preload("HardSkills", byCell).
		Preload("HardSkills.Skill").
		Preload("SoftSkills", byCell).
		Preload("SoftSkills.Skill").
		Preload("Educations", byStartDate).
		Preload("Experiences", byStartDate).
		Where(query, arg).
		Take(&r).Error
	switch {
	case err == nil:
		return &r, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFound()
	default:
		return nil, apperr.Internal(err, "load resume")
	}
}
