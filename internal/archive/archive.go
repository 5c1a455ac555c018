package archive

import (
	"context"
	"encoding/json"
	"sync"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/dneimke/simple-coding-sub000/internal/repository"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Options 归档选项
type Options struct {
	Key              string  // 键值存储中的键
	MaxGames         int     // 最多保存的比赛数
	WarningThreshold float64 // 使用率告警阈值 (0,1]
	Clock            clockwork.Clock
}

// Archive 已完成比赛的有界集合，最近完成的在前
type Archive struct {
	mu        sync.Mutex
	store     repository.KVStore
	opts      Options
	clock     clockwork.Clock
	migrateMu sync.Mutex
	migrated  bool
	log       *zap.Logger
}

// New 创建归档
func New(store repository.KVStore, opts Options) *Archive {
	if opts.Key == "" {
		opts.Key = "games"
	}
	if opts.MaxGames < 1 {
		opts.MaxGames = DefaultMaxGames
	}
	if opts.WarningThreshold <= 0 || opts.WarningThreshold > 1 {
		opts.WarningThreshold = 0.8
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Archive{
		store: store,
		opts:  opts,
		clock: clock,
		log:   logger.GetModuleLogger(logger.ModuleArchive),
	}
}

// MaxGames 容量上限
func (a *Archive) MaxGames() int {
	return a.opts.MaxGames
}

// Migrate 将旧版记录转换为当前版本并写回，只执行一次
func (a *Archive) Migrate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.loadLocked(ctx)
	return err
}

// loadLocked 读取归档，首次读取时执行迁移
func (a *Archive) loadLocked(ctx context.Context) ([]SavedGame, error) {
	raw, err := a.store.GetRaw(ctx, a.opts.Key)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return []SavedGame{}, nil
		}
		return nil, apperrors.New(apperrors.ErrStorageRead, "读取归档").WithCause(err)
	}

	rec, needsMigration, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}

	a.migrateMu.Lock()
	defer a.migrateMu.Unlock()
	if needsMigration && !a.migrated {
		a.log.Info("迁移旧版归档记录", zap.Int("games", len(rec.Games)))
		if len(rec.Games) > a.opts.MaxGames {
			rec.Games = rec.Games[:a.opts.MaxGames]
		}
		if err := a.store.Set(ctx, a.opts.Key, rec); err != nil {
			a.log.Warn("写回迁移后的归档失败", zap.Error(err))
		}
	}
	a.migrated = true

	if rec.Games == nil {
		rec.Games = []SavedGame{}
	}
	return rec.Games, nil
}

// loadExistingLocked 读取归档用于追加写入
//
// 记录损坏时按空归档处理，下一次写入会覆盖它；存储读取失败时返回错误，调用方不得写入。
func (a *Archive) loadExistingLocked(ctx context.Context) ([]SavedGame, error) {
	games, err := a.loadLocked(ctx)
	if err == nil {
		return games, nil
	}
	if apperrors.Is(err, apperrors.ErrStorageRead) {
		a.log.Error("读取归档失败，放弃写入", zap.Error(err))
		return nil, err
	}
	a.log.Warn("归档记录损坏，将覆盖为新记录", zap.Error(err))
	return []SavedGame{}, nil
}

// persistLocked 写入完整归档
func (a *Archive) persistLocked(ctx context.Context, games []SavedGame) error {
	if err := a.store.Set(ctx, a.opts.Key, record{Version: SchemaVersion, Games: games}); err != nil {
		a.log.Warn("保存归档失败", zap.Int("games", len(games)), zap.Error(err))
		return apperrors.Wrap(err, apperrors.ErrStorageWrite, "保存归档")
	}
	return nil
}

// truncate 截断到容量上限
func (a *Archive) truncate(games []SavedGame) []SavedGame {
	if len(games) > a.opts.MaxGames {
		return games[:a.opts.MaxGames]
	}
	return games
}

// Save 将完成的比赛插入最前面，超出容量时丢弃最旧的
func (a *Archive) Save(ctx context.Context, game SavedGame) error {
	if game.CompletedAt.IsZero() {
		return apperrors.New(apperrors.ErrMissingCompletedAt)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	games, err := a.loadExistingLocked(ctx)
	if err != nil {
		return err
	}

	game.Events = normalizeEvents(game.Events)
	games = a.truncate(append([]SavedGame{game}, games...))

	if err := a.persistLocked(ctx, games); err != nil {
		return err
	}
	a.log.Info("比赛已归档",
		zap.Int("events", len(game.Events)),
		zap.Int64("elapsed_ms", game.ElapsedMs),
		zap.Int("total", len(games)),
	)
	return nil
}

// GetAll 返回全部归档，读取失败时返回空列表
func (a *Archive) GetAll(ctx context.Context) []SavedGame {
	a.mu.Lock()
	defer a.mu.Unlock()

	games, err := a.loadLocked(ctx)
	if err != nil {
		a.log.Warn("读取归档失败", zap.Error(err))
		return []SavedGame{}
	}
	return games
}

// GetByIndex 按索引获取
func (a *Archive) GetByIndex(ctx context.Context, index int) (SavedGame, bool) {
	games := a.GetAll(ctx)
	if index < 0 || index >= len(games) {
		return SavedGame{}, false
	}
	return games[index], true
}

// Update 浅合并更新指定比赛，事件等未提供的字段保持不变
func (a *Archive) Update(ctx context.Context, index int, update GameUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	games, err := a.loadLocked(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageRead)
	}
	if index < 0 || index >= len(games) {
		return apperrors.Newf(apperrors.ErrNotFound, "比赛索引 %d", index)
	}

	game := games[index]
	if update.Label != nil {
		if *update.Label == "" {
			game.Label = nil
		} else {
			game.Label = StringPtr(*update.Label)
		}
	}
	if update.CompletedAt != nil {
		if update.CompletedAt.IsZero() {
			return apperrors.New(apperrors.ErrMissingCompletedAt)
		}
		game.CompletedAt = *update.CompletedAt
	}
	games[index] = game

	return a.persistLocked(ctx, games)
}

// Remove 删除指定比赛，后面的比赛依次前移
func (a *Archive) Remove(ctx context.Context, index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	games, err := a.loadLocked(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageRead)
	}
	if index < 0 || index >= len(games) {
		return apperrors.Newf(apperrors.ErrNotFound, "比赛索引 %d", index)
	}

	games = append(games[:index:index], games[index+1:]...)
	return a.persistLocked(ctx, games)
}

// ImportMany 批量导入比赛，返回实际导入的数量
//
// 没有有效事件的候选项被跳过。导入的比赛按输入顺序放在最前面，replace 为 true 时先清空现有归档。
// 全部候选项都被跳过时不修改归档。
func (a *Archive) ImportMany(ctx context.Context, candidates []SavedGame, replace bool) (int, error) {
	accepted := make([]SavedGame, 0, len(candidates))
	now := a.clock.Now()
	for i, c := range candidates {
		events := normalizeEvents(c.Events)
		if len(events) == 0 {
			a.log.Debug("跳过没有事件的导入项", zap.Int("index", i))
			continue
		}
		c.Events = events
		if c.CompletedAt.IsZero() {
			c.CompletedAt = now
		}
		accepted = append(accepted, c)
	}

	// 没有可导入的比赛时保持现有归档不变，replace 也不清空
	if len(accepted) == 0 {
		a.log.Warn("没有可导入的比赛",
			zap.Int("candidates", len(candidates)),
			zap.Bool("replace", replace),
		)
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var existing []SavedGame
	if !replace {
		games, err := a.loadExistingLocked(ctx)
		if err != nil {
			return 0, err
		}
		existing = games
	}

	games := a.truncate(append(accepted, existing...))
	if err := a.persistLocked(ctx, games); err != nil {
		return 0, err
	}

	imported := len(accepted)
	if imported > a.opts.MaxGames {
		imported = a.opts.MaxGames
	}
	a.log.Info("批量导入完成",
		zap.Int("candidates", len(candidates)),
		zap.Int("imported", imported),
		zap.Bool("replace", replace),
	)
	return imported, nil
}

// Usage 估算存储使用情况
func (a *Archive) Usage(ctx context.Context) UsageReport {
	games := a.GetAll(ctx)

	report := UsageReport{GameCount: len(games), QuotaBytes: a.store.Quota()}
	if data, err := json.Marshal(record{Version: SchemaVersion, Games: games}); err == nil {
		report.ArchiveBytes = int64(len(data))
	}

	total, err := a.store.Usage(ctx)
	if err != nil {
		a.log.Warn("统计存储用量失败", zap.Error(err))
		total = report.ArchiveBytes
	}
	report.TotalBytes = total

	if report.QuotaBytes > 0 {
		report.Percent = float64(report.TotalBytes) / float64(report.QuotaBytes) * 100
		report.Warning = report.Percent >= a.opts.WarningThreshold*100
	}
	return report
}
