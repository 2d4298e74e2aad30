package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AlexanderCholiy/resume-safari/internal/api/middleware"
	"github.com/AlexanderCholiy/resume-safari/internal/profile"
)

// ProfileHandler 处理当前用户资料的读取与更新。
type ProfileHandler struct {
	profiles *profile.Service
}

// NewProfileHandler 构造资料处理器。
func NewProfileHandler(profiles *profile.Service) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetMe 返回当前用户的资料、年龄以及教育与工作经历。
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	p, err := h.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileView(p))
}

// UpdateMe 部分更新资料，educations 与 experiences 出现时整体替换。
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req profile.UpdateInput
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), profile.Actor{ID: userID, IsStaff: middleware.IsStaff(c)}, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileView(p))
}
