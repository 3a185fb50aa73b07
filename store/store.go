package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/internal/profile"
	"github.com/hrygo/chatturn/store/cache"
)

// ErrNotFound is returned when a point read finds nothing.
var ErrNotFound = errors.New("not found")

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// userSettingsCache fronts GetUserSettings; L2 is Redis when configured.
	userSettingsCache *cache.TieredCache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile, settingsCache *cache.TieredCache) *Store {
	if settingsCache == nil {
		settingsCache = cache.NewTieredCache(&cache.TieredCacheConfig{
			L1MaxItems: 1000,
			L1TTL:      5 * time.Minute,
			EnableL1:   true,
		}, nil)
	}
	return &Store{
		driver:            driver,
		profile:           profile,
		userSettingsCache: settingsCache,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	if err := s.userSettingsCache.Close(); err != nil {
		slog.Warn("failed to close user settings cache", "error", err)
	}
	return s.driver.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) UpsertConversation(ctx context.Context, upsert *Conversation) (*Conversation, error) {
	return s.driver.UpsertConversation(ctx, upsert)
}

// GetConversation returns ErrNotFound when no conversation has the given id.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return s.driver.GetConversation(ctx, &FindConversation{ID: &id})
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

func (s *Store) CreateSafetyLog(ctx context.Context, create *SafetyLog) (*SafetyLog, error) {
	return s.driver.CreateSafetyLog(ctx, create)
}

func (s *Store) ListSafetyLogs(ctx context.Context, find *FindSafetyLog) ([]*SafetyLog, error) {
	return s.driver.ListSafetyLogs(ctx, find)
}

func (s *Store) CreateFact(ctx context.Context, create *Fact) (*Fact, error) {
	return s.driver.CreateFact(ctx, create)
}

func (s *Store) ListFacts(ctx context.Context, find *FindFact) ([]*Fact, error) {
	return s.driver.ListFacts(ctx, find)
}

func (s *Store) DeleteFact(ctx context.Context, delete *DeleteFact) error {
	return s.driver.DeleteFact(ctx, delete)
}

func (s *Store) UpsertDocumentChunk(ctx context.Context, upsert *DocumentChunk) (*DocumentChunk, error) {
	return s.driver.UpsertDocumentChunk(ctx, upsert)
}

func (s *Store) SearchChunksByVector(ctx context.Context, find *FindDocumentChunk, embedding []float32) ([]*ChunkResult, error) {
	return s.driver.SearchChunksByVector(ctx, find, embedding)
}

func (s *Store) SearchChunksByKeyword(ctx context.Context, find *FindDocumentChunk, query string) ([]*ChunkResult, error) {
	return s.driver.SearchChunksByKeyword(ctx, find, query)
}

func (s *Store) UpsertUserSettings(ctx context.Context, upsert *UserSettings) (*UserSettings, error) {
	result, err := s.driver.UpsertUserSettings(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.userSettingsCache.Delete(ctx, userSettingsCacheKey(upsert.UserID))
	return result, nil
}

// GetUserSettings returns the user's settings, or zero-valued settings when none are stored.
func (s *Store) GetUserSettings(ctx context.Context, userID string) (*UserSettings, error) {
	data, err := s.userSettingsCache.GetOrLoad(ctx, userSettingsCacheKey(userID), func(ctx context.Context, _ string) ([]byte, error) {
		settings, err := s.driver.GetUserSettings(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				settings = &UserSettings{UserID: userID}
			} else {
				return nil, err
			}
		}
		return json.Marshal(settings)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user settings for %s", userID)
	}

	settings := &UserSettings{}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, errors.Wrap(err, "failed to decode cached user settings")
	}
	return settings, nil
}

func userSettingsCacheKey(userID string) string {
	return "user_settings:" + userID
}
