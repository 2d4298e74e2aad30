package database

import (
	"fmt"

	"gorm.io/gorm"
)

// registerModels 返回需要迁移的全部模型，顺序即建表顺序。
func registerModels() []any {
	return []any{
		&Location{},
		&Position{},
		&HardSkillName{},
		&SoftSkillName{},
		&User{},
		&Education{},
		&Experience{},
		&Resume{},
		&ResumeEducation{},
		&ResumeExperience{},
		&HardSkill{},
		&SoftSkill{},
	}
}

// SetupJoinTables 为 many2many 关联注册显式的关联表模型。
func SetupJoinTables(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Resume{}, "Educations", &ResumeEducation{}); err != nil {
		return fmt.Errorf("setup resume_educations: %w", err)
	}
	if err := db.SetupJoinTable(&Resume{}, "Experiences", &ResumeExperience{}); err != nil {
		return fmt.Errorf("setup resume_experiences: %w", err)
	}
	return nil
}

// Migrate 执行 AutoMigrate。
func Migrate(db *gorm.DB) error {
	if err := SetupJoinTables(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
