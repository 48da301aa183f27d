package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"TStream/logger"
	"TStream/module/event"
	usermodel "TStream/module/user/model"
	"TStream/service/kafka"
	"TStream/service/storage"
	"TStream/tools/errs"
	"TStream/tools/ids"
	jwtlib "TStream/tools/security"
)

// UserService 账号与社交资料。写路径：先落库，提交后补发事件。
type UserService struct {
	store   storage.Store
	pub     *kafka.Publisher
	jwtOpts jwtlib.Options
}

func NewUserService(store storage.Store, pub *kafka.Publisher, jwtOpts jwtlib.Options) *UserService {
	return &UserService{store: store, pub: pub, jwtOpts: jwtOpts}
}

// handle 只允许字母数字下划线，3~30 位
var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

type RegisterParams struct {
	Handle      string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatarUrl"`
}

type LoginParams struct {
	Handle   string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResult 注册/登录统一回包
type AuthResult struct {
	User     *usermodel.User `json:"user"`
	Token    string          `json:"token"`
	ExpireAt time.Time       `json:"expireAt"`
}

func (s *UserService) Register(ctx context.Context, in RegisterParams) (*AuthResult, error) {
	handle := strings.TrimSpace(in.Handle)
	if !handleRe.MatchString(handle) {
		return nil, errs.ErrValidation.WithDetail("username must be 3-30 chars [A-Za-z0-9_]")
	}
	if len(in.Password) < 6 {
		return nil, errs.ErrValidation.WithDetail("password must be at least 6 chars")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.ErrUnavailable.WithDetail("hash password")
	}

	u := &usermodel.User{
		ID:           ids.Generate(),
		Handle:       handle,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Bio:          in.Bio,
		AvatarURL:    in.AvatarURL,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if u.DisplayName == "" {
		u.DisplayName = handle
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	token, exp, err := jwtlib.Generate(s.jwtOpts, u.ID)
	if err != nil {
		return nil, errs.ErrUnavailable.WithDetail("issue token")
	}

	s.publish(event.UserRegisteredPayload{User: *u})
	logger.Infof("[user] registered id=%d handle=%s", u.ID, u.Handle)
	return &AuthResult{User: u, Token: token, ExpireAt: exp}, nil
}

func (s *UserService) Login(ctx context.Context, in LoginParams) (*AuthResult, error) {
	u, err := s.store.GetUserByHandle(ctx, strings.TrimSpace(in.Handle))
	if err != nil {
		// 不区分“用户不存在”和“密码错误”
		return nil, errs.ErrUnauthorized.WithDetail("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, errs.ErrUnauthorized.WithDetail("invalid credentials")
	}

	token, exp, err := jwtlib.Generate(s.jwtOpts, u.ID)
	if err != nil {
		return nil, errs.ErrUnavailable.WithDetail("issue token")
	}
	return &AuthResult{User: u, Token: token, ExpireAt: exp}, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*usermodel.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *UserService) ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]*usermodel.User, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	limit, offset = storage.ClampPage(limit, offset)
	return s.store.ListFollowers(ctx, userID, limit, offset)
}

func (s *UserService) ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]*usermodel.User, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	limit, offset = storage.ClampPage(limit, offset)
	return s.store.ListFollowing(ctx, userID, limit, offset)
}

func (s *UserService) Stats(ctx context.Context) (usermodel.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *UserService) publish(p event.Payload) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(event.New(p))
}
