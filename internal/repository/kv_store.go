package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/dneimke/simple-coding-sub000/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVStore 键值存储接口
//
// 所有键都带有命名空间前缀，值以JSON编码保存。读写失败以错误值返回，不会panic。
type KVStore interface {
	BaseRepository
	Get(ctx context.Context, key string, dest interface{}) error
	GetRaw(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Usage(ctx context.Context) (int64, error)
	Quota() int64
}

// KVOptions 键值存储选项
type KVOptions struct {
	Namespace  string // 键前缀
	QuotaBytes int64  // 命名空间配额，<=0 表示不限制
}

// kvStore 键值存储实现
type kvStore struct {
	*BaseRepo
	namespace string
	quota     int64
	mu        sync.Mutex // 串行化写入，保证配额检查与写入一致
	log       *zap.Logger
}

// NewKVStore 创建键值存储
func NewKVStore(db *gorm.DB, opts KVOptions) KVStore {
	return &kvStore{
		BaseRepo:  NewBaseRepo(db),
		namespace: opts.Namespace,
		quota:     opts.QuotaBytes,
		log:       logger.GetModuleLogger(logger.ModuleStorage),
	}
}

func (r *kvStore) fullKey(key string) string {
	return r.namespace + key
}

// Get 读取并解码值
func (r *kvStore) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := r.load(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.log.Warn("存储值解码失败", zap.String("key", key), zap.Error(err))
		return apperrors.Wrapf(err, apperrors.ErrStorageRead, "解码键 %s", key)
	}
	return nil
}

// GetRaw 读取原始JSON，键不存在时返回 ErrNotFound，读取失败时返回 ErrStorageRead
func (r *kvStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	return r.load(ctx, key)
}

func (r *kvStore) load(ctx context.Context, key string) ([]byte, error) {
	var entry models.KVEntry
	err := r.db.WithContext(ctx).
		Where(&models.KVEntry{Key: r.fullKey(key)}).
		First(&entry).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, key)
		}
		r.log.Error("读取存储失败", zap.String("key", key), zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrStorageRead)
	}
	return []byte(entry.Value), nil
}

// Set 编码并写入值（创建或更新）
func (r *kvStore) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrStorageWrite, "编码键 %s", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.fullKey(key)
	start := time.Now()

	err = r.Transaction(ctx, func(tx *gorm.DB) error {
		if r.quota > 0 {
			used, err := r.usage(tx, full)
			if err != nil {
				return err
			}
			needed := used + int64(len(full)+len(data))
			if needed > r.quota {
				return apperrors.Newf(apperrors.ErrStorageQuotaExceeded,
					"需要 %d 字节，配额 %d 字节", needed, r.quota)
			}
		}

		entry := models.KVEntry{Key: full, Value: string(data)}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entry).Error
	})

	logger.LogDatabaseOperation("set", models.KVEntry{}.TableName(), time.Since(start), err)
	if err != nil {
		if apperrors.IsQuotaExceeded(err) {
			r.log.Warn("存储配额不足", zap.String("key", key), zap.Error(err))
			return err
		}
		return apperrors.Wrap(err, apperrors.ErrStorageWrite, key)
	}
	return nil
}

// Delete 删除键
func (r *kvStore) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.WithContext(ctx).
		Where(&models.KVEntry{Key: r.fullKey(key)}).
		Delete(&models.KVEntry{}).Error
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageWrite, key)
	}
	return nil
}

// Keys 列出命名空间下的所有键（不含前缀）
func (r *kvStore) Keys(ctx context.Context) ([]string, error) {
	entries, err := r.scan(r.db.WithContext(ctx), "key")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, strings.TrimPrefix(e.Key, r.namespace))
	}
	return keys, nil
}

// Usage 命名空间下所有键值占用的字节数估算
func (r *kvStore) Usage(ctx context.Context) (int64, error) {
	return r.usage(r.db.WithContext(ctx), "")
}

// Quota 配额字节数
func (r *kvStore) Quota() int64 {
	return r.quota
}

// usage 统计占用字节数，exclude 指定的键不计入（用于替换写入前的估算）
func (r *kvStore) usage(db *gorm.DB, exclude string) (int64, error) {
	entries, err := r.scan(db, "key", "value")
	if err != nil {
		return 0, err
	}
	var total int64
	for i := range entries {
		if entries[i].Key == exclude {
			continue
		}
		total += entries[i].Size()
	}
	return total, nil
}

func (r *kvStore) scan(db *gorm.DB, columns ...string) ([]models.KVEntry, error) {
	var entries []models.KVEntry
	q := db.Model(&models.KVEntry{}).Select(columns).Order("id")
	if r.namespace != "" {
		q = q.Where(clause.Like{Column: clause.Column{Name: "key"}, Value: r.namespace + "%"})
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	// LIKE 中的通配符可能匹配到其他前缀
	filtered := entries[:0]
	for _, e := range entries {
		if strings.HasPrefix(e.Key, r.namespace) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
