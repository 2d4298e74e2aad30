package api

import (
	"time"

	"gorm.io/datatypes"

	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/profile"
)

type skillView struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type locationView struct {
	ID      uint   `json:"id"`
	Country string `json:"country"`
	City    string `json:"city"`
}

type positionView struct {
	ID       uint   `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
}

type educationView struct {
	ID           uint    `json:"id"`
	Institution  string  `json:"institution"`
	Degree       string  `json:"degree"`
	FieldOfStudy string  `json:"field_of_study"`
	StartDate    string  `json:"start_date"`
	EndDate      *string `json:"end_date"`
}

type experienceView struct {
	ID               uint    `json:"id"`
	Company          string  `json:"company"`
	Position         string  `json:"position"`
	Responsibilities string  `json:"responsibilities"`
	StartDate        string  `json:"start_date"`
	EndDate          *string `json:"end_date"`
}

type placementView struct {
	ID         uint      `json:"id"`
	Skill      skillView `json:"skill"`
	GridRow    int       `json:"grid_row"`
	GridColumn int       `json:"grid_column"`
}

type ownerView struct {
	ID         uint          `json:"id"`
	Username   string        `json:"username"`
	FirstName  string        `json:"first_name"`
	LastName   string        `json:"last_name"`
	Patronymic string        `json:"patronymic"`
	Age        *int          `json:"age"`
	Location   *locationView `json:"location"`
}

type profileView struct {
	ownerView
	Email              string           `json:"email"`
	Phone              string           `json:"phone"`
	TelegramID         string           `json:"telegram_id"`
	GitHubLink         string           `json:"git_hub_link"`
	DateOfBirth        *string          `json:"date_of_birth"`
	HasAvatar          bool             `json:"has_avatar"`
	IsStaff            bool             `json:"is_staff"`
	MustChangePassword bool             `json:"must_change_password"`
	Educations         []educationView  `json:"educations"`
	Experiences        []experienceView `json:"experiences"`
}

type resumeSummaryView struct {
	ID          uint         `json:"id"`
	Slug        string       `json:"slug"`
	Position    positionView `json:"position"`
	Owner       ownerView    `json:"owner"`
	IsPublished bool         `json:"is_published"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type resumeView struct {
	resumeSummaryView
	AboutMe     string           `json:"about_me"`
	HardSkills  []placementView  `json:"hard_skills"`
	SoftSkills  []placementView  `json:"soft_skills"`
	Educations  []educationView  `json:"educations"`
	Experiences []experienceView `json:"experiences"`
	CreatedAt   time.Time        `json:"created_at"`
}

func formatDate(d datatypes.Date) string {
	return time.Time(d).Format(profile.DateLayout)
}

func formatOptionalDate(d *datatypes.Date) *string {
	if d == nil {
		return nil
	}
	s := formatDate(*d)
	return &s
}

func newLocationView(l *database.Location) *locationView {
	if l == nil || l.ID == 0 {
		return nil
	}
	return &locationView{ID: l.ID, Country: l.Country, City: l.City}
}

func newPositionView(p database.Position) positionView {
	return positionView{ID: p.ID, Category: p.Category, Title: p.Title}
}

func newEducationViews(items []database.Education) []educationView {
	out := make([]educationView, 0, len(items))
	for _, e := range items {
		out = append(out, educationView{
			ID:           e.ID,
			Institution:  e.Institution,
			Degree:       e.Degree,
			FieldOfStudy: e.FieldOfStudy,
			StartDate:    formatDate(e.StartDate),
			EndDate:      formatOptionalDate(e.EndDate),
		})
	}
	return out
}

func newExperienceViews(items []database.Experience) []experienceView {
	out := make([]experienceView, 0, len(items))
	for _, e := range items {
		out = append(out, experienceView{
			ID:               e.ID,
			Company:          e.Company,
			Position:         e.Position,
			Responsibilities: e.Responsibilities,
			StartDate:        formatDate(e.StartDate),
			EndDate:          formatOptionalDate(e.EndDate),
		})
	}
	return out
}

func newOwnerView(u database.User, now time.Time) ownerView {
	return ownerView{
		ID:         u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Patronymic: u.Patronymic,
		Age:        u.Age(now),
		Location:   newLocationView(u.Location),
	}
}

func newProfileView(p *profile.Profile) profileView {
	u := p.User
	owner := newOwnerView(u, time.Now())
	owner.Age = p.Age
	return profileView{
		ownerView:          owner,
		Email:              u.Email,
		Phone:              u.Phone,
		TelegramID:         u.TelegramID,
		GitHubLink:         u.GitHubLink,
		DateOfBirth:        formatOptionalDate(u.DateOfBirth),
		HasAvatar:          u.AvatarKey != "",
		IsStaff:            u.IsStaff,
		MustChangePassword: u.MustChangePassword,
		Educations:         newEducationViews(p.Educations),
		Experiences:        newExperienceViews(p.Experiences),
	}
}

func newResumeSummaryView(r database.Resume, now time.Time) resumeSummaryView {
	return resumeSummaryView{
		ID:          r.ID,
		Slug:        r.Slug,
		Position:    newPositionView(r.Position),
		Owner:       newOwnerView(r.User, now),
		IsPublished: r.IsPublished,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newResumeView(r *database.Resume, now time.Time) resumeView {
	hard := make([]placementView, 0, len(r.HardSkills))
	for _, s := range r.HardSkills {
		hard = append(hard, placementView{
			ID:         s.ID,
			Skill:      skillView{ID: s.Skill.ID, Name: s.Skill.Name, Description: s.Skill.Description},
			GridRow:    s.GridRow,
			GridColumn: s.GridColumn,
		})
	}
	soft := make([]placementView, 0, len(r.SoftSkills))
	for _, s := range r.SoftSkills {
		soft = append(soft, placementView{
			ID:         s.ID,
			Skill:      skillView{ID: s.Skill.ID, Name: s.Skill.Name, Description: s.Skill.Description},
			GridRow:    s.GridRow,
			GridColumn: s.GridColumn,
		})
	}
	return resumeView{
		resumeSummaryView: newResumeSummaryView(*r, now),
		AboutMe:           r.AboutMe,
		HardSkills:        hard,
		SoftSkills:        soft,
		Educations:        newEducationViews(r.Educations),
		Experiences:       newExperienceViews(r.Experiences),
		CreatedAt:         r.CreatedAt,
	}
}
