package dto

// ── 认证模块 DTO ──

// LoginRequest 登录请求；Role 必须与账号角色一致
type LoginRequest struct {
	Email      string `json:"email"       binding:"required,email"`
	Password   string `json:"password"    binding:"required"`
	Role       string `json:"role"        binding:"required,oneof=student admin"`
	RememberMe bool   `json:"remember_me"`
}

// RegisterRequest 学生自助注册请求
type RegisterRequest struct {
	Name      string `json:"name"       binding:"required,min=2,max=100"`
	Email     string `json:"email"      binding:"required,email,max=255"`
	Password  string `json:"password"   binding:"required,min=8,max=64"`
	RegNumber string `json:"reg_number" binding:"required,min=3,max=30"`
	Phone     string `json:"phone"      binding:"required,ke_phone"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"` // 非 Cookie 模式时使用
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=64"`
}
