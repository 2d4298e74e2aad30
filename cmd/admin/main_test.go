package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/auth"
	"github.com/AlexanderCholiy/resume-safari/internal/database/dbtest"
)

func TestCreateStaff(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	user, err := createStaff(ctx, db, "root", "root@example.com", "one-time-secret")
	require.NoError(t, err)
	assert.True(t, user.IsStaff)
	assert.True(t, user.IsActive)
	assert.True(t, user.MustChangePassword)
	assert.True(t, auth.CheckPasswordHash("one-time-secret", user.PasswordHash))

	_, err = createStaff(ctx, db, "root", "other@example.com", "x")
	assert.True(t, apperr.Is(err, apperr.KindDuplicate))
	_, err = createStaff(ctx, db, "other", "root@example.com", "x")
	assert.True(t, apperr.Is(err, apperr.KindDuplicate))
}

func TestLoadDatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_HOST", "")
	t.Setenv("DATABASE_PORT", "")
	t.Setenv("POSTGRES_DB", "resumes")
	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("DATABASE_SSLMODE", "")

	_, err := loadDatabaseConfig("", 0, "", "", "", "")
	assert.Error(t, err)

	cfg, err := loadDatabaseConfig("db", 0, "", "", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "resumes", cfg.Name)
	assert.Equal(t, "disable", cfg.SSLMode)
}
