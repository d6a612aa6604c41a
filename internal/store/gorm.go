package store

import (
	"context"
	"errors"
	"time"

	"llm-duet/backend/internal/models"

	"gorm.io/gorm"
)

// GormStore implements SessionStore and the management CRUD surface on
// top of a relational database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates the store and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	err := db.AutoMigrate(
		&models.CharacterPair{},
		&models.Conversation{},
		&models.Message{},
		&models.ProviderConfig{},
		&models.SystemPrompt{},
	)
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) LoadPair(ctx context.Context, pairID string) (*models.CharacterPair, error) {
	var pair models.CharacterPair
	err := s.db.WithContext(ctx).First(&pair, "id = ?", pairID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (s *GormStore) LoadProviderConfig(ctx context.Context, slot int) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := s.db.WithContext(ctx).First(&cfg, "slot = ?", slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *GormStore) LoadConversation(ctx context.Context, convID, pairID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&conv, "id = ? AND character_pair_id = ?", convID, pairID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *GormStore) LoadSystemPrompt(ctx context.Context) (string, error) {
	var prompt models.SystemPrompt
	err := s.db.WithContext(ctx).First(&prompt, "id = ?", models.SystemPromptID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return prompt.Prompt, nil
}

func (s *GormStore) SaveSystemPrompt(ctx context.Context, text string) error {
	prompt := models.SystemPrompt{ID: models.SystemPromptID, Prompt: text, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Save(&prompt).Error
}

func (s *GormStore) SaveProviderConfig(ctx context.Context, cfg *models.ProviderConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Save(cfg).Error
}

func (s *GormStore) AppendMessage(ctx context.Context, conv *models.Conversation, msg models.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"turn_count": conv.TurnCount,
			"updated_at": conv.UpdatedAt,
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error
	})
}

func (s *GormStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(conv).Error; err != nil {
			return err
		}
		return tx.Model(&models.CharacterPair{}).
			Where("id = ?", conv.CharacterPairID).
			Update("last_conversation_id", conv.ID).Error
	})
}

// Management CRUD, consumed by the API handlers.

func (s *GormStore) CreatePair(ctx context.Context, pair *models.CharacterPair) error {
	return s.db.WithContext(ctx).Create(pair).Error
}

func (s *GormStore) UpdatePair(ctx context.Context, pair *models.CharacterPair) error {
	res := s.db.WithContext(ctx).Model(&models.CharacterPair{}).
		Where("id = ?", pair.ID).
		Updates(models.CharacterPair{
			Name:       pair.Name,
			Character1: pair.Character1,
			Character2: pair.Character2,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListPairs(ctx context.Context) ([]models.PairSummary, error) {
	var pairs []models.CharacterPair
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&pairs).Error
	if err != nil {
		return nil, err
	}
	summaries := make([]models.PairSummary, 0, len(pairs))
	for i := range pairs {
		summaries = append(summaries, pairs[i].Summary())
	}
	return summaries, nil
}

// DeletePair removes a pair together with its conversations and their
// messages.
func (s *GormStore) DeletePair(ctx context.Context, pairID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var convIDs []string
		if err := tx.Model(&models.Conversation{}).
			Where("character_pair_id = ?", pairID).
			Pluck("id", &convIDs).Error; err != nil {
			return err
		}
		if len(convIDs) > 0 {
			if err := tx.Where("conversation_id IN ?", convIDs).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", convIDs).Delete(&models.Conversation{}).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", pairID).Delete(&models.CharacterPair{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) ListConversations(ctx context.Context, pairID string) ([]models.ConversationSummary, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("character_pair_id = ?", pairID).
		Order("updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	summaries := make([]models.ConversationSummary, 0, len(convs))
	for i := range convs {
		summaries = append(summaries, convs[i].Summary())
	}
	return summaries, nil
}

func (s *GormStore) DeleteConversation(ctx context.Context, convID, pairID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND character_pair_id = ?", convID, pairID).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
