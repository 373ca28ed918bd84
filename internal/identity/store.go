package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists which player this device is in each game.
type Store interface {
	Get(ctx context.Context, deviceID, gameID string) (playerID string, ok bool, err error)
	Put(ctx context.Context, deviceID, gameID, playerID string) error
	Delete(ctx context.Context, deviceID, gameID string) error
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func memoryKey(deviceID, gameID string) string { return deviceID + "/" + gameID }

func (m *MemoryStore) Get(_ context.Context, deviceID, gameID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.entries[memoryKey(deviceID, gameID)]
	return id, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, deviceID, gameID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoryKey(deviceID, gameID)] = playerID
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, deviceID, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memoryKey(deviceID, gameID))
	return nil
}

type DeviceIdentity struct {
	DeviceID  string `gorm:"primaryKey;size:64"`
	GameID    string `gorm:"primaryKey;size:64"`
	PlayerID  string `gorm:"not null;size:64"`
	UpdatedAt time.Time
}

type GormStore struct {
	db *gorm.DB
}

// OpenGormStore picks the dialect from the DSN: postgres URLs go to the
// postgres driver, anything else is treated as a sqlite file path.
func OpenGormStore(dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	if err := db.AutoMigrate(&DeviceIdentity{}); err != nil {
		return nil, fmt.Errorf("migrate identity store: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (g *GormStore) Get(ctx context.Context, deviceID, gameID string) (string, bool, error) {
	var row DeviceIdentity
	err := g.db.WithContext(ctx).
		Where("device_id = ? AND game_id = ?", deviceID, gameID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.PlayerID, true, nil
}

func (g *GormStore) Put(ctx context.Context, deviceID, gameID, playerID string) error {
	row := DeviceIdentity{DeviceID: deviceID, GameID: gameID, PlayerID: playerID}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"player_id", "updated_at"}),
	}).Create(&row).Error
}

func (g *GormStore) Delete(ctx context.Context, deviceID, gameID string) error {
	return g.db.WithContext(ctx).
		Where("device_id = ? AND game_id = ?", deviceID, gameID).
		Delete(&DeviceIdentity{}).Error
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
