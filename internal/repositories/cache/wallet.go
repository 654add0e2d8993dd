package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"airswitch/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	walletKeyPrefix = "airswitch:wallet:v1:"

	DefaultWalletTTL = 10 * time.Minute
	// MaxWalletTTL bounds how long a missed invalidation can serve a stale
	// balance.
	MaxWalletTTL = time.Hour
)

// WalletCache keeps wallet balances in redis between ledger writes. Every
// balance change invalidates the entry. Misses are (nil, nil).
type WalletCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewWalletCache(client *redis.Client, ttl time.Duration) *WalletCache {
	return &WalletCache{client: client, ttl: walletTTL(ttl)}
}

func walletTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultWalletTTL
	case ttl > MaxWalletTTL:
		return MaxWalletTTL
	}
	return ttl
}

// WalletKey is the redis key of a user's cached wallet.
func WalletKey(userID uint) string {
	return walletKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}

// walletEntry is the cached form. Balances are fixed-point strings.
type walletEntry struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	USD       string    `json:"usd"`
	NGN       string    `json:"ngn"`
	UpdatedAt time.Time `json:"updated_at"`
}

func encodeWallet(w *models.Wallet) ([]byte, error) {
	return json.Marshal(walletEntry{
		ID:        w.ID,
		UserID:    w.UserID,
		USD:       w.BalanceUSD.StringFixed(2),
		NGN:       w.BalanceNGN.StringFixed(2),
		UpdatedAt: w.UpdatedAt,
	})
}

// decodeWallet returns nil for an entry that belongs to another user.
func decodeWallet(data []byte, userID uint) (*models.Wallet, error) {
	var e walletEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cached wallet: %w", err)
	}
	if e.UserID != userID {
		return nil, nil
	}
	usd, err := decimal.NewFromString(e.USD)
	if err != nil {
		return nil, fmt.Errorf("cached wallet has invalid USD balance: %w", err)
	}
	ngn, err := decimal.NewFromString(e.NGN)
	if err != nil {
		return nil, fmt.Errorf("cached wallet has invalid NGN balance: %w", err)
	}
	return &models.Wallet{
		ID:         e.ID,
		UserID:     e.UserID,
		BalanceUSD: usd,
		BalanceNGN: ngn,
		UpdatedAt:  e.UpdatedAt,
	}, nil
}

func (c *WalletCache) CacheWallet(ctx context.Context, w *models.Wallet) error {
	data, err := encodeWallet(w)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, WalletKey(w.UserID), data, c.ttl).Err()
}

func (c *WalletCache) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	data, err := c.client.Get(ctx, WalletKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached wallet: %w", err)
	}
	return decodeWallet(data, userID)
}

func (c *WalletCache) InvalidateWallet(ctx context.Context, userID uint) error {
	return c.client.Del(ctx, WalletKey(userID)).Err()
}
