package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/datapult/insightsync/internal/models"
)

type KeyValueStore interface {
	Put(ctx context.Context, key string, value []byte) error
	PutString(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) ([]byte, error)
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type KeyValueStoreConfig struct {
	StoreName string
	TTL       time.Duration
}

type NATSKeyValueStore struct {
	KVstore jetstream.KeyValue
}

func NewNATSKeyValueStore(ctx context.Context, js jetstream.JetStream, cfg KeyValueStoreConfig) (*NATSKeyValueStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{ //nolint:exhaustruct // optional config
		Bucket: cfg.StoreName,
		TTL:    cfg.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get KeyValue store: %w", err)
	}

	return &NATSKeyValueStore{
		KVstore: kv,
	}, nil
}

func (k *NATSKeyValueStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := k.KVstore.Put(ctx, key, value)
	if err != nil {
		return fmt.Errorf("failed to put value in KeyValue store: %w", err)
	}

	return nil
}

func (k *NATSKeyValueStore) PutString(ctx context.Context, key, value string) error {
	_, err := k.KVstore.PutString(ctx, key, value)
	if err != nil {
		return fmt.Errorf("failed to put string in KeyValue store: %w", err)
	}

	return nil
}

func (k *NATSKeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	item, err := k.KVstore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, models.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get value from KeyValue store: %w", err)
	}

	return item.Value(), nil
}

func (k *NATSKeyValueStore) GetString(ctx context.Context, key string) (string, error) {
	value, err := k.Get(ctx, key)
	if err != nil {
		return "", err
	}

	return string(value), nil
}

func (k *NATSKeyValueStore) Delete(ctx context.Context, key string) error {
	err := k.KVstore.Delete(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete value from KeyValue store: %w", err)
	}

	return nil
}
