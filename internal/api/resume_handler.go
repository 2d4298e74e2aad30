package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AlexanderCholiy/resume-safari/internal/api/middleware"
	"github.com/AlexanderCholiy/resume-safari/internal/catalog"
	"github.com/AlexanderCholiy/resume-safari/internal/metrics"
	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/snapshot"
)

// ResumeHandler 负责处理与简历相关的 API 请求。
type ResumeHandler struct {
	resumes *resume.Service
	cache   *snapshot.Cache
	now     func() time.Time
}

// NewResumeHandler 构造 ResumeHandler，cache 为 nil 时每次都重新构建网格。
func NewResumeHandler(resumes *resume.Service, cache *snapshot.Cache) *ResumeHandler {
	return &ResumeHandler{resumes: resumes, cache: cache, now: time.Now}
}

func viewer(c *gin.Context) *resume.Actor {
	id, ok := middleware.UserID(c)
	if !ok {
		return nil
	}
	return &resume.Actor{ID: id, IsStaff: middleware.IsStaff(c)}
}

func actor(c *gin.Context) (resume.Actor, bool) {
	id, ok := currentUser(c)
	if !ok {
		return resume.Actor{}, false
	}
	return resume.Actor{ID: id, IsStaff: middleware.IsStaff(c)}, true
}

// ListResumes 分页列出已发布的简历。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	f := resume.Filter{Query: c.Query("q"), Category: c.Query("category")}
	for name, dst := range map[string]*uint{
		"position_id":   &f.PositionID,
		"hard_skill_id": &f.HardSkillID,
		"location_id":   &f.LocationID,
	} {
		id, err := queryID(c, name)
		if err != nil {
			RespondError(c, err)
			return
		}
		if id != nil {
			*dst = *id
		}
	}
	var err error
	if f.Page, err = queryInt(c, "page"); err != nil {
		RespondError(c, err)
		return
	}
	if f.PageSize, err = queryInt(c, "page_size"); err != nil {
		RespondError(c, err)
		return
	}

	page, err := h.resumes.ListPublished(c.Request.Context(), f)
	if err != nil {
		RespondError(c, err)
		return
	}
	now := h.now()
	items := make([]resumeSummaryView, 0, len(page.Items))
	for _, r := range page.Items {
		items = append(items, newResumeSummaryView(r, now))
	}
	c.JSON(http.StatusOK, catalog.Page[resumeSummaryView]{Items: items, Total: page.Total, Page: page.Page, PageSize: page.PageSize})
}

// ListMine 列出当前用户的全部简历，包括草稿。
func (h *ResumeHandler) ListMine(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.resumes.ListOwned(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	now := h.now()
	items := make([]resumeSummaryView, 0, len(list))
	for _, r := range list {
		items = append(items, newResumeSummaryView(r, now))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateResume 新建简历，嵌套集合可以一并提交。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req resume.CreateInput
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.resumes.Create(c.Request.Context(), userID, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	requestLogger(c).Info("resume created", slog.Uint64("resume_id", uint64(r.ID)), slog.String("slug", r.Slug))
	c.JSON(http.StatusCreated, newResumeView(r, h.now()))
}

// GetResume 返回简历详情，草稿只对所有者与管理员可见。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	r, err := h.resumes.Get(c.Request.Context(), viewer(c), c.Param("slug"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResumeView(r, h.now()))
}

// UpdateResume 部分更新简历，slug 保持不变。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req resume.UpdateInput
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.resumes.Update(c.Request.Context(), a, c.Param("slug"), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResumeView(r, h.now()))
}

// ReplaceNested 替换请求中出现的嵌套集合。
func (h *ResumeHandler) ReplaceNested(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req resume.Nested
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.resumes.ReplaceNested(c.Request.Context(), a, c.Param("slug"), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResumeView(r, h.now()))
}

// DeleteResume 删除简历及其网格放置与关联。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.resumes.Delete(c.Request.Context(), a, c.Param("slug")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetGrid 返回简历的技能网格。已发布简历优先读快照缓存，未命中时构建并回填。
func (h *ResumeHandler) GetGrid(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")
	logger := requestLogger(c).With(slog.String("slug", slug))

	if h.cache != nil {
		g, hit, err := h.cache.Get(ctx, slug)
		switch {
		case err != nil:
			logger.Warn("read grid snapshot failed", slog.Any("error", err))
		case hit:
			// 快照可能由撤回发布前排队的任务写入，命中后仍确认发布状态。
			published, err := h.resumes.IsPublished(ctx, g.ResumeID, slug)
			if err != nil {
				RespondError(c, err)
				return
			}
			if published {
				metrics.GridBuilds.WithLabelValues("cache").Inc()
				c.JSON(http.StatusOK, g)
				return
			}
			if err := h.cache.Invalidate(ctx, slug); err != nil {
				logger.Warn("drop stale grid snapshot failed", slog.Any("error", err))
			}
		}
	}

	r, err := h.resumes.Get(ctx, viewer(c), slug)
	if err != nil {
		RespondError(c, err)
		return
	}
	limits := h.resumes.Limits()
	g := resume.BuildGrids(r, limits.GridMaxRows, limits.GridMaxCols)
	metrics.GridBuilds.WithLabelValues("build").Inc()

	if h.cache != nil && r.IsPublished {
		if err := h.cache.Set(ctx, g); err != nil {
			logger.Warn("write grid snapshot failed", slog.Any("error", err))
		}
	}
	c.JSON(http.StatusOK, g)
}
