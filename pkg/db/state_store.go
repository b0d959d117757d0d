package db

import (
	"context"
	"errors"
	"time"

	"github.com/betadomot/storefront/pkg/kv"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateEntry is one persisted shopper-state value.
type StateEntry struct {
	Key       string    `gorm:"column:state_key;primaryKey;size:255"`
	Value     string    `gorm:"column:state_value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (StateEntry) TableName() string {
	return "kv_entries"
}

// KV exposes the client as a kv.Store backed by the kv_entries table.
func (c *Client) KV() kv.Store {
	return stateStore{client: c}
}

type stateStore struct {
	client *Client
}

func (s stateStore) Get(ctx context.Context, key string) (string, error) {
	var entry StateEntry
	err := s.client.conn.WithContext(ctx).Where("state_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

func (s stateStore) Set(ctx context.Context, key, value string) error {
	return upsert(s.client.conn.WithContext(ctx), key, value)
}

func (s stateStore) SetMany(ctx context.Context, entries map[string]string) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		for k, v := range entries {
			if err := upsert(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s stateStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.conn.WithContext(ctx).Where("state_key IN ?", keys).Delete(&StateEntry{}).Error
}

func (s stateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func upsert(tx *gorm.DB, key, value string) error {
	entry := StateEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"state_value", "updated_at"}),
	}).Create(&entry).Error
}
