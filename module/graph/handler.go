package graph

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	authmw "TStream/middleware/security"
	"TStream/module/graph/service"
	"TStream/tools/errs"
)

// Handler 三个 toggle 接口，全部需登录
type Handler struct {
	svc *service.GraphService
}

func NewHandler(svc *service.GraphService) *Handler { return &Handler{svc: svc} }

// ToggleFollow POST /users/:id/follow
func (h *Handler) ToggleFollow(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	target, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.ToggleFollow(c.Request.Context(), uid, target)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"following":      res.Following,
		"followersCount": res.FollowersCount,
		"followingCount": res.FollowingCount,
	})
}

// ToggleLike POST /tweets/:id/like
func (h *Handler) ToggleLike(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.ToggleLike(c.Request.Context(), uid, id)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": res.Liked, "likesCount": res.LikesCount})
}

// ToggleRetweet POST /tweets/:id/retweet
func (h *Handler) ToggleRetweet(c *gin.Context) {
	uid, _ := authmw.CurrentUserID(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.ToggleRetweet(c.Request.Context(), uid, id)
	if err != nil {
		replyErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retweeted": res.Retweeted, "retweetsCount": res.RetweetsCount})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		replyErr(c, errs.ErrValidation.WithDetail("invalid id"))
		return 0, false
	}
	return id, true
}

func replyErr(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errs.HTTPStatusOf(err), errs.Payload(err))
}
