package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/auth"
	"github.com/AlexanderCholiy/resume-safari/internal/config"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/guard"
	"github.com/AlexanderCholiy/resume-safari/internal/logger"
)

func main() {
	var (
		username = flag.String("username", "", "管理员用户名（必填）")
		email    = flag.String("email", "", "管理员邮箱（必填）")
		dbHost   = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort   = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName   = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser   = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass   = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode  = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	u := strings.TrimSpace(*username)
	e := strings.ToLower(strings.TrimSpace(*email))
	if u == "" || e == "" {
		log.Fatal("missing required flags: --username and --email")
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	zl, err := logger.Init("warn", "console")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()
	db, err := database.InitDatabase(ctx, dbCfg, zl)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	password, err := auth.GenerateOneTimePassword(0)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}
	if _, err := createStaff(ctx, db, u, e, password); err != nil {
		log.Fatalf("create staff account: %v", err)
	}

	fmt.Printf("已创建管理员账号（首次登录需强制改密）：\n")
	fmt.Printf("用户名: %s\n", u)
	fmt.Printf("邮箱: %s\n", e)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
}

// createStaff 创建启用状态的管理员，首次登录必须改密。
func createStaff(ctx context.Context, db *gorm.DB, username, email, password string) (database.User, error) {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return database.User{}, err
	}
	user := database.User{
		Username:           username,
		Email:              email,
		PasswordHash:       hashed,
		IsActive:           true,
		IsStaff:            true,
		MustChangePassword: true,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for field, value := range map[string]string{"username": username, "email": email} {
			if err := guard.CheckUnique(ctx, tx, guard.Unique{
				Field:   field,
				Message: fmt.Sprintf("%s %q is already taken", field, value),
				Model:   &database.User{},
				Where:   map[string]any{field: value},
			}, 0); err != nil {
				return err
			}
		}
		return guard.TranslateWriteError(tx.Create(&user).Error, "username")
	})
	return user, err
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	fallback := func(v, env, def string) string {
		if strings.TrimSpace(v) != "" {
			return v
		}
		if e := strings.TrimSpace(os.Getenv(env)); e != "" {
			return e
		}
		return def
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if port <= 0 {
		port = 5432
	}

	cfg := config.DatabaseConfig{
		Host:     fallback(host, "DATABASE_HOST", "localhost"),
		Port:     port,
		Name:     fallback(name, "POSTGRES_DB", ""),
		User:     fallback(user, "POSTGRES_USER", ""),
		Password: fallback(password, "POSTGRES_PASSWORD", ""),
		SSLMode:  fallback(sslmode, "DATABASE_SSLMODE", "disable"),
	}
	switch {
	case cfg.Name == "":
		return cfg, errors.New("database name is required (POSTGRES_DB)")
	case cfg.User == "":
		return cfg, errors.New("database user is required (POSTGRES_USER)")
	case cfg.Password == "":
		return cfg, errors.New("database password is required (POSTGRES_PASSWORD)")
	}
	return cfg, nil
}
