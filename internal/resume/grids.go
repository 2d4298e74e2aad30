package resume

import (
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/grid"
)

// Cell 是网格桶中的一个技能。
type Cell struct {
	SkillID     uint    `json:"skill_id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	GridRow     int     `json:"grid_row"`
	GridColumn  int     `json:"grid_column"`
}

// Grids 是一份简历的技能网格快照，没有任何条目的网格省略。
type Grids struct {
	ResumeID   uint              `json:"resume_id"`
	Slug       string            `json:"slug"`
	HardSkills grid.Matrix[Cell] `json:"hard_skills,omitempty"`
	SoftSkills grid.Matrix[Cell] `json:"soft_skills,omitempty"`
}

// BuildGrids 用已预加载技能的简历构建两张网格。
func BuildGrids(r *database.Resume, maxRows, maxCols int) Grids {
	out := Grids{ResumeID: r.ID, Slug: r.Slug}

	hard := grid.Build(r.HardSkills, maxRows, maxCols)
	if grid.HasAnyItems(hard) {
		out.HardSkills = grid.Map(hard, func(s database.HardSkill) Cell {
			return Cell{
				SkillID:     s.SkillID,
				Name:        s.Skill.Name,
				Description: s.Skill.Description,
				GridRow:     s.GridRow,
				GridColumn:  s.GridColumn,
			}
		})
	}

	soft := grid.Build(r.SoftSkills, maxRows, maxCols)
	if grid.HasAnyItems(soft) {
		out.SoftSkills = grid.Map(soft, func(s database.SoftSkill) Cell {
			return Cell{
				SkillID:     s.SkillID,
				Name:        s.Skill.Name,
				Description: s.Skill.Description,
				GridRow:     s.GridRow,
				GridColumn:  s.GridColumn,
			}
		})
	}
	return out
}
