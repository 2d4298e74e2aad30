// Package profile 负责用户资料及其教育、工作经历的维护。
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/catalog"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/guard"
	"github.com/AlexanderCholiy/resume-safari/internal/validation"
)

// Actor 是发起操作的用户。
type Actor struct {
	ID      uint
	IsStaff bool
}

// LocationInput 通过 id 或 (country, city) 指定地区；两者都为空表示清除。
type LocationInput struct {
	ID      *uint  `json:"id"`
	Country string `json:"country" validate:"max=150"`
	City    string `json:"city" validate:"max=150"`
}

// UpdateInput 是资料的部分更新，nil 字段保持不变。
// Educations/Experiences 非 nil（包括空切片）时整体替换。
type UpdateInput struct {
	FirstName   *string            `json:"first_name" validate:"omitempty,max=150"`
	LastName    *string            `json:"last_name" validate:"omitempty,max=150"`
	Patronymic  *string            `json:"patronymic" validate:"omitempty,max=150"`
	Email       *string            `json:"email" validate:"omitempty,email,max=254"`
	Phone       *string            `json:"phone" validate:"omitempty,e164"`
	TelegramID  *string            `json:"telegram_id" validate:"omitempty,max=64"`
	GitHubLink  *string            `json:"git_hub_link" validate:"omitempty,http_url,max=255"`
	DateOfBirth *string            `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Location    *LocationInput     `json:"location"`
	Educations  *[]EducationInput  `json:"educations" validate:"-"`
	Experiences *[]ExperienceInput `json:"experiences" validate:"-"`
}

// Profile 是带派生字段的用户资料。
type Profile struct {
	User        database.User
	Age         *int
	Educations  []database.Education
	Experiences []database.Experience
}

// Service 提供资料读取与更新。
type Service struct {
	db       *gorm.DB
	maxItems int
	now      func() time.Time
}

// NewService 构造资料服务，maxItems 为教育与工作经历各自的上限。
func NewService(db *gorm.DB, maxItems int) *Service {
	return &Service{db: db, maxItems: maxItems, now: time.Now}
}

// Get 读取用户资料。
func (s *Service) Get(ctx context.Context, ownerID uint) (*Profile, error) {
	return s.load(ctx, s.db, ownerID)
}

// Update 在一个事务内更新 actor 自己的资料。
func (s *Service) Update(ctx context.Context, actor Actor, in UpdateInput) (*Profile, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Email != nil && !actor.IsStaff {
		return nil, apperr.Validation("email", "email can only be changed by staff")
	}

	var out *Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user database.User
		if err := tx.Take(&user, actor.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user", "user not found")
			}
			return apperr.Internal(err, "load user")
		}

		if err := s.applyScalars(ctx, tx, &user, in); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&user).Error; err != nil {
			return guard.TranslateWriteError(err, "email")
		}

		if in.Educations != nil {
			if _, err := ReplaceEducations(ctx, tx, user.ID, *in.Educations, s.maxItems); err != nil {
				return err
			}
		}
		if in.Experiences != nil {
			if _, err := ReplaceExperiences(ctx, tx, user.ID, *in.Experiences, s.maxItems); err != nil {
				return err
			}
		}

		p, err := s.load(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) applyScalars(ctx context.Context, tx *gorm.DB, u *database.User, in UpdateInput) error {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&u.FirstName, in.FirstName)
	set(&u.LastName, in.LastName)
	set(&u.Patronymic, in.Patronymic)
	set(&u.Phone, in.Phone)
	set(&u.TelegramID, in.TelegramID)
	set(&u.GitHubLink, in.GitHubLink)

	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := guard.CheckUnique(ctx, tx, guard.Unique{
			Field:   "email",
			Message: "user with this email already exists",
			Model:   &database.User{},
			Where:   map[string]any{"email": email},
		}, u.ID); err != nil {
			return err
		}
		u.Email = email
	}

	if in.DateOfBirth != nil {
		born, err := time.Parse(DateLayout, *in.DateOfBirth)
		if err != nil {
			return apperr.Validation("date_of_birth", "must be a date in 2006-01-02 format")
		}
		if born.After(s.now()) {
			return apperr.Validation("date_of_birth", "must not be in the future")
		}
		d := datatypes.Date(born)
		u.DateOfBirth = &d
	}

	if in.Location != nil {
		locationID, err := ResolveLocation(ctx, tx, *in.Location)
		if err != nil {
			return apperr.Prefix(err, "location.")
		}
		u.LocationID = locationID
		u.Location = nil
	}
	return nil
}

// ResolveLocation 把 LocationInput 解析为地区 id；(country, city) 经规范化目录写入。
func ResolveLocation(ctx context.Context, tx *gorm.DB, in LocationInput) (*uint, error) {
	if in.ID != nil {
		loc, err := catalog.Get[database.Location](ctx, tx, *in.ID, "id")
		if err != nil {
			return nil, err
		}
		return &loc.ID, nil
	}
	country, city := strings.TrimSpace(in.Country), strings.TrimSpace(in.City)
	if country == "" && city == "" {
		return nil, nil
	}
	loc, _, err := catalog.FindOrUpsert(ctx, tx, catalog.Locations(), country, city)
	if err != nil {
		return nil, err
	}
	return &loc.ID, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, ownerID uint) (*Profile, error) {
	var user database.User
	err := db.WithContext(ctx).
		Preload("Location").
		Preload("Educations", func(q *gorm.DB) *gorm.DB { return q.Order("start_date DESC, id") }).
		Preload("Experiences", func(q *gorm.DB) *gorm.DB { return q.Order("start_date DESC, id") }).
		Take(&user, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user", "user not found")
		}
		return nil, apperr.Internal(err, "load user")
	}
	return &Profile{
		User:        user,
		Age:         user.Age(s.now()),
		Educations:  user.Educations,
		Experiences: user.Experiences,
	}, nil
}
