// Package dbtest 为测试提供迁移完成的内存 SQLite 数据库。
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AlexanderCholiy/resume-safari/internal/database"
)

// Open 为当前测试打开独立的内存数据库并执行迁移。
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), database.NewGormConfig(nil, gormlogger.Silent))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	// 单连接保证事务内外看到同一份内存库。
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedUser 创建一个启用状态的用户。
func SeedUser(t testing.TB, db *gorm.DB, username string) database.User {
	t.Helper()
	u := database.User{
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}
