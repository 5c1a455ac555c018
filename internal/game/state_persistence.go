package game

import (
	"context"
	"sync"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/repository"
)

// StatePersister 当前比赛持久化接口
type StatePersister interface {
	Save(ctx context.Context, data *SessionData) error
	Load(ctx context.Context) (*SessionData, error)
	Delete(ctx context.Context) error
}

// copySessionData 深拷贝
func copySessionData(data *SessionData) *SessionData {
	c := *data
	c.Events = append(c.Events[:0:0], data.Events...)
	return &c
}

// MemoryStatePersister 内存状态持久化（用于测试和缓存层）
type MemoryStatePersister struct {
	mu    sync.RWMutex
	state *SessionData
}

// NewMemoryStatePersister 创建内存持久化器
func NewMemoryStatePersister() *MemoryStatePersister {
	return &MemoryStatePersister{}
}

// Save 保存状态
func (p *MemoryStatePersister) Save(ctx context.Context, data *SessionData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = copySessionData(data)
	return nil
}

// Load 加载状态
func (p *MemoryStatePersister) Load(ctx context.Context) (*SessionData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "当前比赛")
	}
	return copySessionData(p.state), nil
}

// Delete 删除状态
func (p *MemoryStatePersister) Delete(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = nil
	return nil
}

// KVStatePersister 键值存储状态持久化
type KVStatePersister struct {
	store repository.KVStore
	key   string
}

// NewKVStatePersister 创建键值存储持久化器
func NewKVStatePersister(store repository.KVStore, key string) *KVStatePersister {
	if key == "" {
		key = "game.current"
	}
	return &KVStatePersister{store: store, key: key}
}

// Save 保存状态
func (p *KVStatePersister) Save(ctx context.Context, data *SessionData) error {
	return p.store.Set(ctx, p.key, data)
}

// Load 加载状态
func (p *KVStatePersister) Load(ctx context.Context) (*SessionData, error) {
	var data SessionData
	if err := p.store.Get(ctx, p.key, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Delete 删除状态
func (p *KVStatePersister) Delete(ctx context.Context) error {
	return p.store.Delete(ctx, p.key)
}

// CacheStatePersister 带缓存的持久化器（装饰器模式）
type CacheStatePersister struct {
	cache   StatePersister // 缓存层（内存）
	storage StatePersister // 存储层（键值存储）
}

// NewCacheStatePersister 创建带缓存的持久化器
func NewCacheStatePersister(cache, storage StatePersister) *CacheStatePersister {
	return &CacheStatePersister{cache: cache, storage: storage}
}

// Save 保存状态（同时保存到缓存和存储）
func (p *CacheStatePersister) Save(ctx context.Context, data *SessionData) error {
	// 先保存到存储层
	if err := p.storage.Save(ctx, data); err != nil {
		return err
	}

	// 再保存到缓存层（缓存失败不影响主流程）
	_ = p.cache.Save(ctx, data)
	return nil
}

// Load 加载状态（优先从缓存加载）
func (p *CacheStatePersister) Load(ctx context.Context) (*SessionData, error) {
	if data, err := p.cache.Load(ctx); err == nil {
		return data, nil
	}

	data, err := p.storage.Load(ctx)
	if err != nil {
		return nil, err
	}

	_ = p.cache.Save(ctx, data)
	return data, nil
}

// Delete 删除状态（同时删除缓存和存储）
func (p *CacheStatePersister) Delete(ctx context.Context) error {
	_ = p.cache.Delete(ctx)
	return p.storage.Delete(ctx)
}
