package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/catalog"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/snapshot"
)

// CatalogHandler 提供参考数据目录的搜索与管理员写入。
type CatalogHandler struct {
	db      *gorm.DB
	resumes *resume.Service
	cache   *snapshot.Cache
}

// NewCatalogHandler 构造目录处理器。技能描述变化时清掉引用它的网格快照，cache 可以为 nil。
func NewCatalogHandler(db *gorm.DB, resumes *resume.Service, cache *snapshot.Cache) *CatalogHandler {
	return &CatalogHandler{db: db, resumes: resumes, cache: cache}
}

type skillRequest struct {
	Name        string  `json:"name" validate:"required,max=150"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

type locationRequest struct {
	Country string `json:"country" validate:"required,max=150"`
	City    string `json:"city" validate:"required,max=150"`
}

type positionRequest struct {
	Category string `json:"category" validate:"required,max=150"`
	Title    string `json:"title" validate:"required,max=150"`
}

func listCatalog[T, V any](c *gin.Context, db *gorm.DB, columns []string, view func(T) V) {
	page, err := queryInt(c, "page")
	if err != nil {
		RespondError(c, err)
		return
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		RespondError(c, err)
		return
	}
	result, err := catalog.Search[T](c.Request.Context(), db, columns, c.Query("q"), page, pageSize)
	if err != nil {
		RespondError(c, err)
		return
	}
	items := make([]V, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, view(item))
	}
	c.JSON(http.StatusOK, catalog.Page[V]{Items: items, Total: result.Total, Page: result.Page, PageSize: result.PageSize})
}

func upsertCatalog[T, V any](c *gin.Context, db *gorm.DB, spec catalog.Spec[T], view func(T) V, onUpdate func(T), values ...string) {
	ctx := c.Request.Context()
	var (
		row     T
		created bool
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, created, err = catalog.FindOrUpsert(ctx, tx, spec, values...)
		return err
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	requestLogger(c).Info("catalog entry saved",
		slog.String("catalog", spec.Name),
		slog.Bool("created", created),
	)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	} else if onUpdate != nil {
		onUpdate(row)
	}
	c.JSON(status, view(row))
}

// dropSkillGrids 在已有技能的描述被改写后删除引用它的网格快照。
func (h *CatalogHandler) dropSkillGrids(c *gin.Context, description *string, slugsOf func(context.Context, uint) ([]string, error)) func(uint) {
	return func(skillID uint) {
		if h.cache == nil || description == nil {
			return
		}
		ctx := c.Request.Context()
		slugs, err := slugsOf(ctx, skillID)
		if err == nil {
			err = h.cache.Invalidate(ctx, slugs...)
		}
		if err != nil {
			requestLogger(c).Warn("drop grid snapshots failed",
				slog.Uint64("skill_id", uint64(skillID)),
				slog.Any("error", err),
			)
		}
	}
}

func hardSkillView(s database.HardSkillName) skillView {
	return skillView{ID: s.ID, Name: s.Name, Description: s.Description}
}

func softSkillView(s database.SoftSkillName) skillView {
	return skillView{ID: s.ID, Name: s.Name, Description: s.Description}
}

func locationValue(l database.Location) locationView {
	return locationView{ID: l.ID, Country: l.Country, City: l.City}
}

// ListHardSkills 按名称搜索硬技能。
func (h *CatalogHandler) ListHardSkills(c *gin.Context) {
	listCatalog(c, h.db, []string{"name_key"}, hardSkillView)
}

// ListSoftSkills 按名称搜索软技能。
func (h *CatalogHandler) ListSoftSkills(c *gin.Context) {
	listCatalog(c, h.db, []string{"name_key"}, softSkillView)
}

// ListLocations 按国家或城市搜索地区。
func (h *CatalogHandler) ListLocations(c *gin.Context) {
	listCatalog(c, h.db, []string{"country_key", "city_key"}, locationValue)
}

// ListPositions 按类别或职位名称搜索职位。
func (h *CatalogHandler) ListPositions(c *gin.Context) {
	listCatalog(c, h.db, []string{"category_key", "title_key"}, newPositionView)
}

// UpsertHardSkill 规范化写入硬技能，已存在时只更新描述。
func (h *CatalogHandler) UpsertHardSkill(c *gin.Context) {
	var req skillRequest
	if !bindJSON(c, &req) {
		return
	}
	drop := h.dropSkillGrids(c, req.Description, h.resumes.HardSkillSlugs)
	upsertCatalog(c, h.db, catalog.HardSkills(req.Description), hardSkillView,
		func(s database.HardSkillName) { drop(s.ID) }, req.Name)
}

// UpsertSoftSkill 规范化写入软技能。
func (h *CatalogHandler) UpsertSoftSkill(c *gin.Context) {
	var req skillRequest
	if !bindJSON(c, &req) {
		return
	}
	drop := h.dropSkillGrids(c, req.Description, h.resumes.SoftSkillSlugs)
	upsertCatalog(c, h.db, catalog.SoftSkills(req.Description), softSkillView,
		func(s database.SoftSkillName) { drop(s.ID) }, req.Name)
}

// UpsertLocation 规范化写入地区。
func (h *CatalogHandler) UpsertLocation(c *gin.Context) {
	var req locationRequest
	if !bindJSON(c, &req) {
		return
	}
	upsertCatalog(c, h.db, catalog.Locations(), locationValue, nil, req.Country, req.City)
}

// UpsertPosition 规范化写入职位。
func (h *CatalogHandler) UpsertPosition(c *gin.Context) {
	var req positionRequest
	if !bindJSON(c, &req) {
		return
	}
	upsertCatalog(c, h.db, catalog.Positions(), newPositionView, nil, req.Category, req.Title)
}
