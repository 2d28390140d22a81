package repository

import (
	"context"

	"ispmanager/internal/model"
	"ispmanager/pkg/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserFilter narrows user listings
type UserFilter struct {
	Search   string
	IsActive *bool
	RoleID   uint
	pagination.Params
}

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByIDWithRoles(ctx context.Context, id uint) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context, f UserFilter) ([]model.User, int64, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	UpdatePassword(ctx context.Context, id uint, hash string) error
	Delete(ctx context.Context, id uint) error
	AssignRole(ctx context.Context, userID, roleID uint) error
	RemoveRole(ctx context.Context, userID, roleID uint) error
	RoleIDs(ctx context.Context, userID uint) ([]uint, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return mapError(GetDB(ctx, r.db).Create(user).Error)
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByIDWithRoles(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := GetDB(ctx, r.db).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("roles.name asc") }).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", email).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "username = ?", username).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, f UserFilter) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	q := GetDB(ctx, r.db).Model(&model.User{})
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("users.username LIKE ? OR users.email LIKE ? OR users.full_name LIKE ?", like, like, like)
	}
	if f.IsActive != nil {
		q = q.Where("users.is_active = ?", *f.IsActive)
	}
	if f.RoleID != 0 {
		q = q.Where("EXISTS (SELECT 1 FROM role_user ru WHERE ru.user_id = users.id AND ru.role_id = ?)", f.RoleID)
	}

	q = q.Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sort := f.Sort
	if sort == "" {
		sort = "created_at"
	}
	err := q.Preload("Roles").
		Order(clause.OrderByColumn{Column: clause.Column{Table: "users", Name: sort}, Desc: f.Desc}).
		Offset(f.Offset).Limit(f.Limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapError(res.Error)
	}
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uint, hash string) error {
	return GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).Update("password", hash).Error
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("user_id = ?", id).Delete(&model.UserRole{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.User{}).Error
}

// AssignRole inserts the role_user row, ignoring an existing pair.
func (r *userRepository) AssignRole(ctx context.Context, userID, roleID uint) error {
	return GetDB(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserRole{UserID: userID, RoleID: roleID}).Error
}

func (r *userRepository) RemoveRole(ctx context.Context, userID, roleID uint) error {
	return GetDB(ctx, r.db).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&model.UserRole{}).Error
}

func (r *userRepository) RoleIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := GetDB(ctx, r.db).Model(&model.UserRole{}).
		Where("user_id = ?", userID).
		Order("role_id").
		Pluck("role_id", &ids).Error
	return ids, err
}
