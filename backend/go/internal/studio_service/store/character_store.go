package store

import (
	"context"
	"fmt"

	"SoraStudio/backend/go/internal/models"

	"gorm.io/gorm"
)

// CharacterStore defines the interface for reusable character persistence.
type CharacterStore interface {
	Save(ctx context.Context, character *models.Character) error
	ListByUser(ctx context.Context, username string) ([]*models.Character, error)
}

// GormCharacterStore 是基于 MySQL/GORM 的 CharacterStore 实现。
type GormCharacterStore struct {
	db *gorm.DB
}

// NewGormCharacterStore creates a new GormCharacterStore.
func NewGormCharacterStore(db *gorm.DB) *GormCharacterStore {
	return &GormCharacterStore{db: db}
}

// Save 保存一个角色。同一用户下相同的 character_id 只保留一条，
// 对账路径重复发现同一角色时是无操作。
func (s *GormCharacterStore) Save(ctx context.Context, character *models.Character) error {
	err := s.db.WithContext(ctx).
		Where("username = ? AND character_id = ?", character.Username, character.CharacterID).
		FirstOrCreate(character).Error
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// ListByUser 返回用户的全部角色，按创建时间倒序。
func (s *GormCharacterStore) ListByUser(ctx context.Context, username string) ([]*models.Character, error) {
	var characters []*models.Character
	err := s.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Find(&characters).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return characters, nil
}
