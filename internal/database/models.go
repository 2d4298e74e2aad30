package database

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NormalizeKey 去掉首尾空白并统一大小写，内部空白保持原样。
// 参考数据（技能、地区、职位）的唯一性都基于该值。
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ContainsPattern 把 key 转成子串匹配的 LIKE 模式，配合 `ESCAPE '\'` 使用。
func ContainsPattern(key string) string {
	return "%" + likeEscaper.Replace(key) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// User 表示系统中的账号及其个人资料。
type User struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:150;not null"`
	Email        string `gorm:"uniqueIndex;size:254;not null"`
	PasswordHash string `gorm:"size:255"`

	FirstName   string `gorm:"size:150"`
	LastName    string `gorm:"size:150"`
	Patronymic  string `gorm:"size:150"`
	Phone       string `gorm:"size:20"`
	TelegramID  string `gorm:"size:64"`
	GitHubLink  string `gorm:"size:255"`
	DateOfBirth *datatypes.Date
	AvatarKey   string `gorm:"size:255"`

	LocationID *uint     `gorm:"index"`
	Location   *Location `gorm:"constraint:OnDelete:SET NULL"`

	IsActive           bool
	IsStaff            bool
	MustChangePassword bool

	Educations  []Education  `gorm:"constraint:OnDelete:CASCADE"`
	Experiences []Experience `gorm:"constraint:OnDelete:CASCADE"`
	Resumes     []Resume     `gorm:"constraint:OnDelete:CASCADE"`
}

// Age 返回用户在 now 时刻的周岁，未填写生日时返回 nil。
func (u User) Age(now time.Time) *int {
	if u.DateOfBirth == nil {
		return nil
	}
	born := time.Time(*u.DateOfBirth)
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return &age
}

// Location 是 (国家, 城市) 参考数据。
type Location struct {
	ID         uint   `gorm:"primaryKey"`
	Country    string `gorm:"size:150;not null"`
	City       string `gorm:"size:150;not null"`
	CountryKey string `gorm:"size:150;not null;uniqueIndex:idx_locations_key"`
	CityKey    string `gorm:"size:150;not null;uniqueIndex:idx_locations_key"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (l *Location) BeforeSave(*gorm.DB) error {
	l.CountryKey = NormalizeKey(l.Country)
	l.CityKey = NormalizeKey(l.City)
	return nil
}

// Position 是 (类别, 职位名称) 参考数据。
type Position struct {
	ID          uint   `gorm:"primaryKey"`
	Category    string `gorm:"size:150;not null"`
	Title       string `gorm:"size:150;not null"`
	CategoryKey string `gorm:"size:150;not null;uniqueIndex:idx_positions_key"`
	TitleKey    string `gorm:"size:150;not null;uniqueIndex:idx_positions_key"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Position) BeforeSave(*gorm.DB) error {
	p.CategoryKey = NormalizeKey(p.Category)
	p.TitleKey = NormalizeKey(p.Title)
	return nil
}

// HardSkillName 是硬技能名称目录。
type HardSkillName struct {
	ID          uint    `gorm:"primaryKey"`
	Name        string  `gorm:"size:150;not null"`
	NameKey     string  `gorm:"size:150;not null;uniqueIndex"`
	Description *string `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *HardSkillName) BeforeSave(*gorm.DB) error {
	s.NameKey = NormalizeKey(s.Name)
	return nil
}

// SoftSkillName 是软技能名称目录，与硬技能目录相互独立。
type SoftSkillName struct {
	ID          uint    `gorm:"primaryKey"`
	Name        string  `gorm:"size:150;not null"`
	NameKey     string  `gorm:"size:150;not null;uniqueIndex"`
	Description *string `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *SoftSkillName) BeforeSave(*gorm.DB) error {
	s.NameKey = NormalizeKey(s.Name)
	return nil
}

// Education 属于唯一的用户，(user, institution, start_date) 唯一。
type Education struct {
	ID           uint            `gorm:"primaryKey"`
	UserID       uint            `gorm:"not null;uniqueIndex:idx_educations_owner_key"`
	Institution  string          `gorm:"size:255;not null;uniqueIndex:idx_educations_owner_key"`
	Degree       string          `gorm:"size:255;not null"`
	FieldOfStudy string          `gorm:"size:255;not null"`
	StartDate    datatypes.Date  `gorm:"not null;uniqueIndex:idx_educations_owner_key"`
	EndDate      *datatypes.Date
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Experience 属于唯一的用户，(user, company, start_date) 唯一。
type Experience struct {
	ID               uint           `gorm:"primaryKey"`
	UserID           uint           `gorm:"not null;uniqueIndex:idx_experiences_owner_key"`
	Company          string         `gorm:"size:255;not null;uniqueIndex:idx_experiences_owner_key"`
	Position         string         `gorm:"size:255;not null"`
	Responsibilities string         `gorm:"type:text"`
	StartDate        datatypes.Date `gorm:"not null;uniqueIndex:idx_experiences_owner_key"`
	EndDate          *datatypes.Date
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HardSkill 是硬技能在简历网格中的一次放置。
type HardSkill struct {
	ID         uint          `gorm:"primaryKey"`
	ResumeID   uint          `gorm:"not null;uniqueIndex:idx_hard_skills_resume_skill"`
	SkillID    uint          `gorm:"not null;uniqueIndex:idx_hard_skills_resume_skill"`
	Skill      HardSkillName `gorm:"constraint:OnDelete:CASCADE"`
	GridRow    int           `gorm:"not null"`
	GridColumn int           `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s HardSkill) Cell() (int, int)    { return s.GridRow, s.GridColumn }
func (s HardSkill) PlacedAt() time.Time { return s.UpdatedAt }

// SoftSkill 是软技能在简历网格中的一次放置。
type SoftSkill struct {
	ID         uint          `gorm:"primaryKey"`
	ResumeID   uint          `gorm:"not null;uniqueIndex:idx_soft_skills_resume_skill"`
	SkillID    uint          `gorm:"not null;uniqueIndex:idx_soft_skills_resume_skill"`
	Skill      SoftSkillName `gorm:"constraint:OnDelete:CASCADE"`
	GridRow    int           `gorm:"not null"`
	GridColumn int           `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s SoftSkill) Cell() (int, int)    { return s.GridRow, s.GridColumn }
func (s SoftSkill) PlacedAt() time.Time { return s.UpdatedAt }

// Resume 表示用户发布或草稿状态的简历。
type Resume struct {
	ID          uint     `gorm:"primaryKey"`
	UserID      uint     `gorm:"not null;uniqueIndex:idx_resumes_owner_position"`
	User        User     `gorm:"constraint:OnDelete:CASCADE"`
	PositionID  uint     `gorm:"not null;uniqueIndex:idx_resumes_owner_position"`
	Position    Position `gorm:"constraint:OnDelete:RESTRICT"`
	Slug        string   `gorm:"size:255;not null;uniqueIndex"`
	AboutMe     string   `gorm:"type:text"`
	IsPublished bool     `gorm:"not null;index"`

	HardSkills  []HardSkill  `gorm:"constraint:OnDelete:CASCADE"`
	SoftSkills  []SoftSkill  `gorm:"constraint:OnDelete:CASCADE"`
	Educations  []Education  `gorm:"many2many:resume_educations"`
	Experiences []Experience `gorm:"many2many:resume_experiences"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResumeEducation 是简历与教育经历的关联行。
type ResumeEducation struct {
	ResumeID    uint `gorm:"primaryKey"`
	EducationID uint `gorm:"primaryKey;index"`
}

// ResumeExperience 是简历与工作经历的关联行。
type ResumeExperience struct {
	ResumeID     uint `gorm:"primaryKey"`
	ExperienceID uint `gorm:"primaryKey;index"`
}
