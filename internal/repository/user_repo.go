package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"degreefi/backend/internal/model"
	pkgerrors "degreefi/backend/pkg/errors"
)

// StudentFilter 学生列表过滤条件
type StudentFilter struct {
	Keyword string // 姓名 / 邮箱 / 注册号模糊匹配
}

// UserRepository 用户数据访问接口
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByRegNumber(ctx context.Context, regNumber string) (*model.User, error)
	GetStudentByName(ctx context.Context, name string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
	ListStudents(ctx context.Context, filter StudentFilter, offset, limit int) ([]model.User, int64, error)
	ListStudentsByIDs(ctx context.Context, ids []string) ([]model.User, error)
	ListStudentIDs(ctx context.Context) ([]string, error)
}

type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetByRegNumber(ctx context.Context, regNumber string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("UPPER(reg_number) = ?", strings.ToUpper(strings.TrimSpace(regNumber))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetStudentByName(ctx context.Context, name string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND LOWER(name) = ?", model.RoleStudent, strings.ToLower(strings.TrimSpace(name))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update 乐观锁更新个人资料与密码
func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	oldVersion := user.Version
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ? AND version = ?", user.UserID, oldVersion).
		Updates(map[string]interface{}{
			"name":          user.Name,
			"email":         user.Email,
			"reg_number":    user.RegNumber,
			"phone":         user.Phone,
			"password_hash": user.PasswordHash,
			"updated_by":    user.UpdatedBy,
			"version":       oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	user.Version = oldVersion + 1
	return nil
}

// Delete 物理删除；成绩、材料、通知由外键级联删除
func (r *userRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", id).Delete(&model.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepo) ListStudents(ctx context.Context, filter StudentFilter, offset, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := r.db.WithContext(ctx).Model(&model.User{}).Where("role = ?", model.RoleStudent)
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		like := "%" + strings.ToLower(kw) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(reg_number) LIKE ?", like, like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepo) ListStudentsByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).
		Where("role = ? AND user_id IN ?", model.RoleStudent, ids).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

func (r *userRepo) ListStudentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("role = ?", model.RoleStudent).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
