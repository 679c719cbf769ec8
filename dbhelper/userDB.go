package dbhelper

import (
	"context"
	"errors"
	"fmt"

	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const mysqlErrDuplicateKey = 1062

// UserStore persists users through gorm.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateKey
}

func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	result := s.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return models.ErrEmailTaken
		}
		return fmt.Errorf("creating user: %w", result.Error)
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, "email = ?", models.NormalizeEmail(email))
}

func (s *UserStore) UpdateUser(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	if update.Empty() {
		return s.FindByID(ctx, id)
	}
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(update.Columns())
	if result.Error != nil {
		return nil, fmt.Errorf("updating user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, models.ErrUserNotFound
	}
	return s.FindByID(ctx, id)
}

// SetPassword stores a new hash and bumps token_version in one statement so
// every token issued before the change stops validating.
func (s *UserStore) SetPassword(ctx context.Context, id, passwordHash string) (*models.User, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"password_hash": passwordHash,
		"token_version": gorm.Expr("token_version + ?", 1),
	})
	if result.Error != nil {
		return nil, fmt.Errorf("updating password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, models.ErrUserNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if result.Error != nil {
		return fmt.Errorf("deleting user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// ListUsers returns every user, or only those with role when it is set.
func (s *UserStore) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	var users []models.User
	q := s.db.WithContext(ctx).Order("created_at")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}
