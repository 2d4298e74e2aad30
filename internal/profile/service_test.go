package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/database/dbtest"
)

func ptr[T any](v T) *T { return &v }

func newService(t *testing.T, maxItems int) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	s := NewService(db, maxItems)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return s, db
}

func education(institution, start string) EducationInput {
	return EducationInput{Institution: institution, Degree: "BSc", FieldOfStudy: "CS", StartDate: start}
}

func TestUpdate_ScalarsLocationAndAge(t *testing.T) {
	s, db := newService(t, 50)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")
	bob := dbtest.SeedUser(t, db, "bob")

	p, err := s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{
		FirstName:   ptr(" Alice "),
		Phone:       ptr("+79991234567"),
		DateOfBirth: ptr("1990-06-15"),
		Location:    &LocationInput{Country: "Russia", City: "Moscow"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.User.FirstName)
	require.NotNil(t, p.Age)
	assert.Equal(t, 34, *p.Age)
	require.NotNil(t, p.User.Location)
	assert.Equal(t, "Moscow", p.User.Location.City)

	p2, err := s.Update(ctx, Actor{ID: bob.ID}, UpdateInput{
		Location: &LocationInput{Country: " russia", City: "MOSCOW "},
	})
	require.NoError(t, err)
	assert.Equal(t, *p.User.LocationID, *p2.User.LocationID)

	var count int64
	require.NoError(t, db.Model(&database.Location{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	p3, err := s.Update(ctx, Actor{ID: bob.ID}, UpdateInput{Location: &LocationInput{}})
	require.NoError(t, err)
	assert.Nil(t, p3.User.LocationID)
}

func TestUpdate_RejectsBadScalars(t *testing.T) {
	s, db := newService(t, 50)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")

	_, err := s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Phone: ptr("12345"), DateOfBirth: ptr("15.06.1990")})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "phone")
	assert.Contains(t, ae.Fields, "date_of_birth")

	_, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{DateOfBirth: ptr("2030-01-01")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Location: &LocationInput{ID: ptr(uint(404))}})
	ae, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, ae.Kind)
	assert.Contains(t, ae.Fields, "location.id")
}

func TestUpdate_EmailIsStaffOnly(t *testing.T) {
	s, db := newService(t, 50)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")
	dbtest.SeedUser(t, db, "bob")

	_, err := s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Email: ptr("new@example.com")})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "email")

	_, err = s.Update(ctx, Actor{ID: alice.ID, IsStaff: true}, UpdateInput{Email: ptr("BOB@example.com")})
	assert.True(t, apperr.Is(err, apperr.KindDuplicate))

	p, err := s.Update(ctx, Actor{ID: alice.ID, IsStaff: true}, UpdateInput{Email: ptr("New@Example.com")})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", p.User.Email)
}

func TestUpdate_ReplaceEducations(t *testing.T) {
	s, db := newService(t, 50)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")

	p, err := s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Educations: &[]EducationInput{
		education("MSU", "2010-09-01"),
		education("MIPT", "2014-09-01"),
	}})
	require.NoError(t, err)
	require.Len(t, p.Educations, 2)
	var bID uint
	for _, e := range p.Educations {
		if e.Institution == "MIPT" {
			bID = e.ID
		}
	}
	require.NotZero(t, bID)

	b := education("MIPT", "2014-09-01")
	b.Degree = "MSc"
	p, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Educations: &[]EducationInput{
		b,
		education("HSE", "2018-09-01"),
	}})
	require.NoError(t, err)
	require.Len(t, p.Educations, 2)

	byName := map[string]database.Education{}
	for _, e := range p.Educations {
		byName[e.Institution] = e
	}
	assert.NotContains(t, byName, "MSU")
	assert.Equal(t, bID, byName["MIPT"].ID)
	assert.Equal(t, "MSc", byName["MIPT"].Degree)
	assert.Contains(t, byName, "HSE")

	p, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{FirstName: ptr("Alice")})
	require.NoError(t, err)
	assert.Len(t, p.Educations, 2)

	p, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Educations: &[]EducationInput{}})
	require.NoError(t, err)
	assert.Empty(t, p.Educations)
}

func TestUpdate_ReplaceExperiencesUnlinksResumes(t *testing.T) {
	s, db := newService(t, 50)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")

	exp := ExperienceInput{Company: "Acme", Position: "Dev", StartDate: "2020-01-01", EndDate: ptr("2021-01-01")}
	p, err := s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Experiences: &[]ExperienceInput{exp}})
	require.NoError(t, err)
	require.Len(t, p.Experiences, 1)

	pos := database.Position{Category: "Backend", Title: "Developer"}
	require.NoError(t, db.Create(&pos).Error)
	resume := database.Resume{UserID: alice.ID, PositionID: pos.ID, Slug: "alice-developer"}
	require.NoError(t, db.Create(&resume).Error)
	require.NoError(t, db.Create(&database.ResumeExperience{ResumeID: resume.ID, ExperienceID: p.Experiences[0].ID}).Error)

	_, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Experiences: &[]ExperienceInput{}})
	require.NoError(t, err)

	var links int64
	require.NoError(t, db.Model(&database.ResumeExperience{}).Count(&links).Error)
	assert.Zero(t, links)
}

func TestUpdate_NestedErrorsAreFieldScopedAndAtomic(t *testing.T) {
	s, db := newService(t, 2)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")

	missing := education("MSU", "2010-09-01")
	missing.Degree = ""
	_, err := s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{
		FirstName:  ptr("Changed"),
		Educations: &[]EducationInput{education("MIPT", "2014-09-01"), missing},
	})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "educations[1].degree")

	var stored database.User
	require.NoError(t, db.First(&stored, alice.ID).Error)
	assert.Empty(t, stored.FirstName)

	_, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Educations: &[]EducationInput{
		education("MSU", "2010-09-01"),
		education(" MSU", "2010-09-01"),
	}})
	ae, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindDuplicate, ae.Kind)
	assert.Contains(t, ae.Fields, "educations[1]")

	badPeriod := education("MSU", "2010-09-01")
	badPeriod.EndDate = ptr("2009-01-01")
	_, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Educations: &[]EducationInput{badPeriod}})
	ae, ok = apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "educations[0].end_date")

	_, err = s.Update(ctx, Actor{ID: alice.ID}, UpdateInput{Educations: &[]EducationInput{
		education("A", "2010-09-01"),
		education("B", "2011-09-01"),
		education("C", "2012-09-01"),
	}})
	assert.True(t, apperr.Is(err, apperr.KindCapacity))

	var count int64
	require.NoError(t, db.Model(&database.Education{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpsertEducation_UpdatesByKey(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, db, "alice")

	first, err := UpsertEducation(ctx, db, alice.ID, education("MSU", "2010-09-01"), 50)
	require.NoError(t, err)

	in := education("MSU", "2010-09-01")
	in.FieldOfStudy = "Mathematics"
	second, err := UpsertEducation(ctx, db, alice.ID, in, 50)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Mathematics", second.FieldOfStudy)

	other, err := UpsertEducation(ctx, db, alice.ID, education("MSU", "2011-09-01"), 50)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newService(t, 50)
	_, err := s.Get(context.Background(), 42)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
