package tweet

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	authmw "TStream/middleware/security"
	"TStream/module/tweet/service"
	"TStream/tools/errs"
)

type Handler struct {
	svc *service.TweetService
}

func NewHandler(svc *service.TweetService) *Handler { return &Handler{svc: svc} }

// Create POST /tweets（需登录）
func (h *Handler) Create(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	var in service.CreateParams
	if err := c.ShouldBindJSON(&in); err != nil {
		replyErr(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	t, err := h.svc.Create(c.Request.Context(), uid, in)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// Delete DELETE /tweets/:id（仅作者）
func (h *Handler) Delete(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), uid, id); err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Get GET /tweets/:id（可匿名）
func (h *Handler) Get(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), uid, id)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// PublicFeed GET /tweets（可匿名；登录时带视角标记）
func (h *Handler) PublicFeed(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	limit, offset := pageParams(c)
	ts, err := h.svc.PublicFeed(c.Request.Context(), uid, limit, offset)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tweets": ts})
}

// PersonalFeed GET /feed（需登录）
func (h *Handler) PersonalFeed(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	limit, offset := pageParams(c)
	ts, err := h.svc.PersonalFeed(c.Request.Context(), uid, limit, offset)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tweets": ts})
}

// UserTweets GET /users/:id/tweets（可匿名）
func (h *Handler) UserTweets(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	ts, err := h.svc.UserTweets(c.Request.Context(), uid, id, limit, offset)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tweets": ts})
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
