package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/database/dbtest"
)

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "python", database.NormalizeKey("  Python "))
	assert.Equal(t, "new  york", database.NormalizeKey("New  York"))
	assert.Equal(t, "москва", database.NormalizeKey("Москва"))
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%go%", database.ContainsPattern("go"))
	assert.Equal(t, `%c\_sharp%`, database.ContainsPattern("c_sharp"))
	assert.Equal(t, `%100\%%`, database.ContainsPattern("100%"))
	assert.Equal(t, `%a\\b%`, database.ContainsPattern(`a\b`))
}

func TestUserAge(t *testing.T) {
	born := datatypes.Date(time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC))
	u := database.User{DateOfBirth: &born}

	before := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	on := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	require.NotNil(t, u.Age(before))
	assert.Equal(t, 34, *u.Age(before))
	assert.Equal(t, 35, *u.Age(on))
	assert.Nil(t, database.User{}.Age(on))
}

func TestCatalogKeysAreFilledOnSave(t *testing.T) {
	db := dbtest.Open(t)

	loc := database.Location{Country: " Russia ", City: "Moscow"}
	require.NoError(t, db.Create(&loc).Error)
	assert.Equal(t, "russia", loc.CountryKey)
	assert.Equal(t, "moscow", loc.CityKey)

	dup := database.Location{Country: "RUSSIA", City: "moscow "}
	require.Error(t, db.Create(&dup).Error)

	var count int64
	require.NoError(t, db.Model(&database.Location{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	skill := database.HardSkillName{Name: "Go"}
	require.NoError(t, db.Create(&skill).Error)
	skill.Name = "  GO"
	require.NoError(t, db.Save(&skill).Error)
	assert.Equal(t, "go", skill.NameKey)
}

func TestGridItemsExposeCell(t *testing.T) {
	now := time.Now()
	h := database.HardSkill{GridRow: 3, GridColumn: 2, UpdatedAt: now}
	row, col := h.Cell()
	assert.Equal(t, 3, row)
	assert.Equal(t, 2, col)
	assert.Equal(t, now, h.PlacedAt())
}
