package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"degreefi/backend/config"
	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
	pkgerrors "degreefi/backend/pkg/errors"
	"degreefi/backend/pkg/jwt"
)

var (
	ErrInvalidCredentials  = errors.New("邮箱、密码或身份不匹配")
	ErrUserNotFound        = errors.New("用户不存在")
	ErrEmailTaken          = errors.New("该邮箱已注册")
	ErrNameTaken           = errors.New("已有同名学生注册，请使用完整法定姓名")
	ErrRegNumberTaken      = errors.New("该注册号已被其他学生使用")
	ErrInvalidPhone        = errors.New("手机号必须为 07 开头的 10 位数字")
	ErrRegistrationClosed  = errors.New("当前未开放自助注册")
	ErrInvalidRefreshToken = errors.New("refresh token 无效或已失效")
	ErrWrongPassword       = errors.New("原密码错误")
)

// PhonePattern 肯尼亚手机号格式
var PhonePattern = regexp.MustCompile(`^07\d{8}$`)

// TokenBlacklist Token 黑名单存储（Redis 实现见 pkg/redis）
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// AuthService 认证业务接口
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	// Logout 拉黑当前 Access Token，exp 为其过期时间
	Logout(ctx context.Context, jti string, exp time.Time) error
	GetCurrentUser(ctx context.Context, userID string) (*dto.UserDetailResponse, error)
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error
	// CreateAdmin 供运维命令行创建管理员账号
	CreateAdmin(ctx context.Context, name, email, password string) (*dto.UserResponse, error)
}

type authService struct {
	cfg       *config.Config
	repo      *repository.Repository
	jwtMgr    *jwt.Manager
	blacklist TokenBlacklist
	logger    *zap.Logger
}

// NewAuthService 创建 AuthService 实例；blacklist 为 nil 时登出只在客户端生效
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:       cfg,
		repo:      repo,
		jwtMgr:    jwtMgr,
		blacklist: blacklist,
		logger:    logger,
	}
}

// ────────────────────── Register ──────────────────────

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	if !s.cfg.Feature.AllowSelfRegister {
		return nil, ErrRegistrationClosed
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	regNumber := strings.ToUpper(strings.TrimSpace(req.RegNumber))
	phone := strings.TrimSpace(req.Phone)

	if !PhonePattern.MatchString(phone) {
		return nil, ErrInvalidPhone
	}
	if err := s.checkDuplicates(ctx, email, name, regNumber); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		RegNumber:    &regNumber,
		Phone:        &phone,
		PasswordHash: string(hash),
		Role:         model.RoleStudent,
	}
	user.Version = 1

	// 用户与 5 项材料在同一事务内创建
	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.User.Create(ctx, user); err != nil {
			return err
		}
		return txRepo.Milestone.CreateBatch(ctx, newMilestoneSet(user.UserID))
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		s.logger.Error("注册学生失败", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	s.logger.Info("学生注册成功", zap.String("user_id", user.UserID), zap.String("reg_number", regNumber))
	return &dto.RegisterResponse{
		ID:        user.UserID,
		Name:      user.Name,
		Email:     user.Email,
		RegNumber: regNumber,
	}, nil
}

func (s *authService) checkDuplicates(ctx context.Context, email, name, regNumber string) error {
	checks := []struct {
		lookup func() (*model.User, error)
		err    error
	}{
		{func() (*model.User, error) { return s.repo.User.GetByEmail(ctx, email) }, ErrEmailTaken},
		{func() (*model.User, error) { return s.repo.User.GetStudentByName(ctx, name) }, ErrNameTaken},
		{func() (*model.User, error) { return s.repo.User.GetByRegNumber(ctx, regNumber) }, ErrRegNumberTaken},
	}
	for _, c := range checks {
		_, err := c.lookup()
		if err == nil {
			return c.err
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("注册查重失败", zap.Error(err))
			return err
		}
	}
	return nil
}

// ────────────────────── Login ──────────────────────

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询用户
	user, err := s.repo.User.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt) 与身份
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Role != req.Role {
		return nil, ErrInvalidCredentials
	}

	// 3. 生成 Token 对
	return s.issueTokens(user, req.RememberMe)
}

func (s *authService) issueTokens(user *model.User, rememberMe bool) (*dto.TokenResponse, error) {
	accessToken, err := s.jwtMgr.GenerateAccessToken(user.UserID, user.Role)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	refreshToken, err := s.jwtMgr.GenerateRefreshToken(user.UserID, user.Role, rememberMe)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
		User:         toUserResponse(user),
	}, nil
}

// ────────────────────── RefreshToken ──────────────────────

// RefreshToken 轮换 Token 对，旧 Refresh Token 进入黑名单
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.jwtMgr.ParseToken(refreshToken)
	if err != nil || claims.TokenType != jwt.TokenTypeRefresh {
		return nil, ErrInvalidRefreshToken
	}

	if s.blacklist != nil {
		revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("查询 Token 黑名单失败", zap.Error(err))
		} else if revoked {
			return nil, ErrInvalidRefreshToken
		}
	}

	user, err := s.repo.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	if s.blacklist != nil && claims.ExpiresAt != nil {
		if err := s.blacklist.BlacklistToken(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
			s.logger.Warn("旧 RefreshToken 拉黑失败", zap.Error(err))
		}
	}

	return s.issueTokens(user, claims.RememberMe)
}

// ────────────────────── Logout ──────────────────────

func (s *authService) Logout(ctx context.Context, jti string, exp time.Time) error {
	if s.blacklist == nil || jti == "" {
		return nil
	}
	if err := s.blacklist.BlacklistToken(ctx, jti, time.Until(exp)); err != nil {
		s.logger.Error("Token 拉黑失败", zap.String("jti", jti), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── GetCurrentUser ──────────────────────

func (s *authService) GetCurrentUser(ctx context.Context, userID string) (*dto.UserDetailResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}
	return &dto.UserDetailResponse{
		UserResponse: toUserResponse(user),
		DateJoined:   formatTime(user.CreatedAt),
	}, nil
}

// ────────────────────── ChangePassword ──────────────────────

func (s *authService) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}
	user.PasswordHash = string(hash)
	user.UpdatedBy = &userID

	if err := s.repo.User.Update(ctx, user); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新密码失败", zap.Error(err))
		}
		return err
	}
	return nil
}

// ────────────────────── CreateAdmin ──────────────────────

func (s *authService) CreateAdmin(ctx context.Context, name, email, password string) (*dto.UserResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.repo.User.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
	}
	user.Version = 1
	if err := s.repo.User.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		s.logger.Error("创建管理员失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("管理员账号已创建", zap.String("user_id", user.UserID), zap.String("email", email))
	resp := toUserResponse(user)
	return &resp, nil
}
