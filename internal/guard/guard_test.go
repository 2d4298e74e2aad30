package guard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/database/dbtest"
)

func date(y int, m time.Month, d int) datatypes.Date {
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func TestCheckCapacity_EducationPerOwner(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")
	bob := dbtest.SeedUser(t, db, "bob")

	for i := 0; i < 2; i++ {
		require.NoError(t, CheckCapacity(ctx, db, EducationOf(alice.ID), 2))
		require.NoError(t, db.Create(&database.Education{
			UserID:      alice.ID,
			Institution: fmt.Sprintf("MSU %d", i),
			Degree:      "BSc",
			StartDate:   date(2010+i, 9, 1),
		}).Error)
	}

	err := CheckCapacity(ctx, db, EducationOf(alice.ID), 2)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindCapacity, ae.Kind)
	assert.Contains(t, ae.Fields, "educations")

	assert.NoError(t, CheckCapacity(ctx, db, EducationOf(bob.ID), 2))
}

func TestCheckCapacity_ResumeBucketsAreIndependent(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")

	pos := database.Position{Category: "Backend", Title: "Developer"}
	require.NoError(t, db.Create(&pos).Error)
	require.NoError(t, db.Create(&database.Resume{
		UserID: alice.ID, PositionID: pos.ID, Slug: "alice-developer", IsPublished: true,
	}).Error)

	assert.True(t, apperr.Is(CheckCapacity(ctx, db, ResumesOf(alice.ID, true), 1), apperr.KindCapacity))
	assert.NoError(t, CheckCapacity(ctx, db, ResumesOf(alice.ID, false), 1))
}

func TestCheckUnique_ExcludesSelf(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	pos := database.Position{Category: "Backend", Title: "Developer"}
	require.NoError(t, db.Create(&pos).Error)

	u := Unique{
		Field: "position",
		Model: &database.Position{},
		Where: map[string]any{"category_key": "backend", "title_key": "developer"},
	}
	err := CheckUnique(ctx, db, u, 0)
	assert.True(t, apperr.Is(err, apperr.KindDuplicate))
	assert.NoError(t, CheckUnique(ctx, db, u, pos.ID))

	u.Where = map[string]any{"category_key": "frontend", "title_key": "developer"}
	assert.NoError(t, CheckUnique(ctx, db, u, 0))
}

func TestTranslateWriteError(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, db.Create(&database.HardSkillName{Name: "Go"}).Error)
	raw := db.Create(&database.HardSkillName{Name: "go"}).Error
	require.Error(t, raw)

	err := TranslateWriteError(raw, "name")
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindDuplicate, ae.Kind)
	assert.Contains(t, ae.Fields, "name")

	assert.True(t, apperr.Is(TranslateWriteError(gorm.ErrRecordNotFound, "id"), apperr.KindNotFound))
	assert.True(t, apperr.Is(TranslateWriteError(errors.New("disk full"), "id"), apperr.KindInternal))
	assert.NoError(t, TranslateWriteError(nil, "id"))

	already := apperr.Capacity("hard_skills", "full")
	assert.Same(t, already, TranslateWriteError(already, "other"))
}

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(1, 1, 10, 5))
	assert.NoError(t, ValidateCoordinates(10, 5, 10, 5))

	err := ValidateCoordinates(0, 6, 10, 5)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "grid_row")
	assert.Contains(t, ae.Fields, "grid_column")

	err = ValidateCoordinates(11, 3, 10, 5)
	ae, ok = apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "grid_row")
	assert.NotContains(t, ae.Fields, "grid_column")
}

func TestValidatePeriod(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := start.AddDate(0, -1, 0)
	later := start.AddDate(1, 0, 0)

	assert.NoError(t, ValidatePeriod(start, nil))
	assert.NoError(t, ValidatePeriod(start, &later))
	assert.NoError(t, ValidatePeriod(start, &start))
	assert.True(t, apperr.Is(ValidatePeriod(start, &earlier), apperr.KindValidation))
}
