package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"TStream/module/user/service"
	"TStream/tools/errs"
)

// Handler REST 入口；参数校验 + 错误码转换，业务都在 service
type Handler struct {
	svc *service.UserService
}

func NewHandler(svc *service.UserService) *Handler { return &Handler{svc: svc} }

// Register POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	var in service.RegisterParams
	if err := c.ShouldBindJSON(&in); err != nil {
		replyErr(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	out, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Login POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var in service.LoginParams
	if err := c.ShouldBindJSON(&in); err != nil {
		replyErr(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	out, err := h.svc.Login(c.Request.Context(), in)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetUser GET /users/:id
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ListFollowers GET /users/:id/followers
func (h *Handler) ListFollowers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	users, err := h.svc.ListFollowers(c.Request.Context(), id, limit, offset)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// ListFollowing GET /users/:id/following
func (h *Handler) ListFollowing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	users, err := h.svc.ListFollowing(c.Request.Context(), id, limit, offset)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Stats GET /stats
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		replyErr(c, errs.ErrValidation.WithDetail("invalid id"))
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

func replyErr(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errs.HTTPStatusOf(err), errs.Payload(err))
}
