package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/model"
)

type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository builds a GORM-backed repository over the auth_users table.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Get(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, storeError("get user", err)
	}
	return &user, nil
}

// Insert relies on the unique username index: a conflicting row turns the
// insert into a no-op, which shows up as zero affected rows.
func (r *gormUserRepository) Insert(ctx context.Context, user *model.User) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperrors.ErrUserAlreadyExists
		}
		return storeError("insert user", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserAlreadyExists
	}
	return nil
}

func (r *gormUserRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("username = ?", user.Username).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrUserNotFound
			}
			return storeError("lock user", err)
		}

		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"email":           user.Email,
			"password_digest": user.PasswordDigest,
			"is_superuser":    user.IsSuperuser,
		}).Error; err != nil {
			return storeError("update user", err)
		}

		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
		user.UpdatedAt = existing.UpdatedAt
		return nil
	})
}

func (r *gormUserRepository) Delete(ctx context.Context, username string) error {
	res := r.db.WithContext(ctx).Where("username = ?", username).Delete(&model.User{})
	if res.Error != nil {
		return storeError("delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *gormUserRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

func (r *gormUserRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
