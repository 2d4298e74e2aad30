package resume

import "github.com/AlexanderCholiy/resume-safari/internal/profile"

// Actor 是发起操作的用户。
type Actor = profile.Actor

// PositionRef 通过 id 或 (category, title) 指定职位。
type PositionRef struct {
	ID       *uint  `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
}

// SkillEntry 是网格中的一个技能，通过 skill_id 或名称引用目录。
type SkillEntry struct {
	SkillID     *uint   `json:"skill_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	GridRow     int     `json:"grid_row"`
	GridColumn  int     `json:"grid_column"`
}

// EducationEntry 引用用户已有的教育经历 id，或携带完整字段。
type EducationEntry struct {
	ID *uint `json:"id"`
	profile.EducationInput
}

// ExperienceEntry 引用用户已有的工作经历 id，或携带完整字段。
type ExperienceEntry struct {
	ID *uint `json:"id"`
	profile.ExperienceInput
}

// Nested 是简历的嵌套集合。
// 字段为 nil 时保持不变；非 nil（包括空切片）时整体替换。
type Nested struct {
	HardSkills  *[]SkillEntry      `json:"hard_skills"`
	SoftSkills  *[]SkillEntry      `json:"soft_skills"`
	Educations  *[]EducationEntry  `json:"educations"`
	Experiences *[]ExperienceEntry `json:"experiences"`
}

// CreateInput 是新建简历的请求体。
type CreateInput struct {
	Position    PositionRef `json:"position"`
	AboutMe     string      `json:"about_me"`
	IsPublished bool        `json:"is_published"`
	Nested
}

// UpdateInput 是部分更新，nil 字段保持不变。
type UpdateInput struct {
	Position    *PositionRef `json:"position"`
	AboutMe     *string      `json:"about_me"`
	IsPublished *bool        `json:"is_published"`
	Nested
}

// Filter 是公开简历列表的查询条件，零值表示不过滤。
type Filter struct {
	Query       string
	PositionID  uint
	Category    string
	HardSkillID uint
	LocationID  uint
	Page        int
	PageSize    int
}
