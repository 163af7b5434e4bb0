package repositories

import (
	"errors"
	"strings"

	"agency_backend/internal/models"

	"gorm.io/gorm"
)

var ErrUserAlreadyExists = errors.New("user already exists")

// UserRepository - каталог пользователей: активность, контакты для уведомлений, поиск по имени.
type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	FindByID(db *gorm.DB, id string) (*models.User, error)
	FindActiveByID(db *gorm.DB, id string) (*models.User, error)
	FindByIDs(db *gorm.DB, ids []string) ([]models.User, error)
	FindActiveByIDs(db *gorm.DB, ids []string) ([]models.User, error)
	FindActiveByFirstName(db *gorm.DB, firstName string, scope []string) ([]models.User, error)
	UpdateNotificationPreferences(db *gorm.DB, userID string, prefs models.NotificationPreferences) error
}

type UserRepositoryImpl struct{}

func NewUserRepository() UserRepository {
	return &UserRepositoryImpl{}
}

func (r *UserRepositoryImpl) Create(db *gorm.DB, user *models.User) error {
	if err := db.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

func (r *UserRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	err := db.First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindActiveByID - неактивный пользователь считается отсутствующим
func (r *UserRepositoryImpl) FindActiveByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	err := db.Where("id = ? AND is_active = ?", id, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) FindByIDs(db *gorm.DB, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	err := db.Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *UserRepositoryImpl) FindActiveByIDs(db *gorm.DB, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	err := db.Where("id IN ? AND is_active = ?", ids, true).Find(&users).Error
	return users, err
}

// FindActiveByFirstName ищет активных пользователей по имени без учета регистра.
// scope == nil означает весь каталог, иначе поиск только среди указанных id.
func (r *UserRepositoryImpl) FindActiveByFirstName(db *gorm.DB, firstName string, scope []string) ([]models.User, error) {
	if scope != nil && len(scope) == 0 {
		return nil, nil
	}
	query := db.Where("LOWER(first_name) = ? AND is_active = ?", strings.ToLower(firstName), true)
	if scope != nil {
		query = query.Where("id IN ?", scope)
	}
	var users []models.User
	err := query.Order("created_at ASC").Find(&users).Error
	return users, err
}

func (r *UserRepositoryImpl) UpdateNotificationPreferences(db *gorm.DB, userID string, prefs models.NotificationPreferences) error {
	result := db.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("notification_preferences", models.NewNotificationPreferences(prefs))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
