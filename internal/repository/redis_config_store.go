package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/domain/repository"
	"QuoteForge/pkg/cache"
)

const (
	priceCfgKey   = "cfg:price:"
	riskCfgKey    = "cfg:risk:"
	symbolsSetKey = "cfg:symbols"
)

// RedisConfigStore persists per-symbol configuration as JSON documents behind
// a cache.Service, typically the layered memory+Redis cache so hot reads skip
// the network. Admin edits write through; a symbol index key supports listing.
type RedisConfigStore struct {
	cache cache.Service
}

// NewRedisConfigStore creates the store.
func NewRedisConfigStore(c cache.Service) repository.ConfigStore {
	return &RedisConfigStore{cache: c}
}

func (s *RedisConfigStore) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.cache.Get(ctx, symbolsSetKey, &symbols)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load symbol index: %w", err)
	}
	return symbols, nil
}

func (s *RedisConfigStore) LoadPriceConfig(ctx context.Context, symbol string) (*models.PriceConfig, error) {
	var cfg models.PriceConfig
	err := s.cache.Get(ctx, priceCfgKey+symbol, &cfg)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load price config %s: %w", symbol, err)
	}
	return &cfg, nil
}

func (s *RedisConfigStore) LoadRiskConfig(ctx context.Context, symbol string) (*models.RiskConfig, error) {
	var cfg models.RiskConfig
	err := s.cache.Get(ctx, riskCfgKey+symbol, &cfg)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load risk config %s: %w", symbol, err)
	}
	return &cfg, nil
}

func (s *RedisConfigStore) SavePriceConfig(ctx context.Context, cfg *models.PriceConfig) error {
	if err := s.cache.Set(ctx, priceCfgKey+cfg.Symbol, cfg, 0); err != nil {
		return fmt.Errorf("save price config %s: %w", cfg.Symbol, err)
	}
	return s.index(ctx, cfg.Symbol)
}

func (s *RedisConfigStore) SaveRiskConfig(ctx context.Context, cfg *models.RiskConfig) error {
	if err := s.cache.Set(ctx, riskCfgKey+cfg.Symbol, cfg, 0); err != nil {
		return fmt.Errorf("save risk config %s: %w", cfg.Symbol, err)
	}
	return s.index(ctx, cfg.Symbol)
}

func (s *RedisConfigStore) index(ctx context.Context, symbol string) error {
	symbols, err := s.Symbols(ctx)
	if err != nil {
		return err
	}
	for _, sym := range symbols {
		if sym == symbol {
			return nil
		}
	}
	symbols = append(symbols, symbol)
	sort.Strings(symbols)
	return s.cache.Set(ctx, symbolsSetKey, symbols, 0)
}

func (s *RedisConfigStore) Close() error { return nil }
