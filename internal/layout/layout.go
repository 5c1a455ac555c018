package layout

import (
	"context"
	"encoding/json"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/dneimke/simple-coding-sub000/internal/repository"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// StorageKey 键值存储中的键
const StorageKey = "layout"

// Config 事件按钮布局
type Config struct {
	RowDefs []RowDef `json:"rowDefs" yaml:"rowDefs"`
}

// RowDef 一行按钮
type RowDef struct {
	GridCols string   `json:"gridCols" yaml:"gridCols"`
	Buttons  []Button `json:"buttons" yaml:"buttons"`
}

// Button 单个事件按钮
type Button struct {
	Event string `json:"event" yaml:"event"`
	Text  string `json:"text" yaml:"text"`
	Color string `json:"color" yaml:"color"`
}

// Default 内置的曲棍球布局
func Default() Config {
	return Config{RowDefs: []RowDef{
		{GridCols: "grid-cols-2", Buttons: []Button{
			{Event: "Goal", Text: "Goal", Color: "green"},
			{Event: "Shot", Text: "Shot", Color: "blue"},
		}},
		{GridCols: "grid-cols-3", Buttons: []Button{
			{Event: "Short Corner", Text: "Short Corner", Color: "orange"},
			{Event: "Long Corner", Text: "Long Corner", Color: "orange"},
			{Event: "Penalty Stroke", Text: "Penalty Stroke", Color: "red"},
		}},
		{GridCols: "grid-cols-3", Buttons: []Button{
			{Event: "Circle Entry", Text: "Circle Entry", Color: "purple"},
			{Event: "Turnover", Text: "Turnover", Color: "gray"},
			{Event: "Free Hit", Text: "Free Hit", Color: "gray"},
		}},
		{GridCols: "grid-cols-3", Buttons: []Button{
			{Event: "Green Card", Text: "Green Card", Color: "green"},
			{Event: "Yellow Card", Text: "Yellow Card", Color: "yellow"},
			{Event: "Red Card", Text: "Red Card", Color: "red"},
		}},
	}}
}

// Validate 校验布局：必须有 rowDefs，每个按钮都要有事件名
func (c Config) Validate() error {
	if c.RowDefs == nil {
		return apperrors.New(apperrors.ErrConfigValidate, "缺少 rowDefs")
	}
	for i, row := range c.RowDefs {
		for j, b := range row.Buttons {
			if b.Event == "" {
				return apperrors.Newf(apperrors.ErrConfigValidate, "第 %d 行第 %d 个按钮缺少 event", i+1, j+1)
			}
		}
	}
	return nil
}

// Events 布局中出现的全部事件名（按出现顺序，去重）
func (c Config) Events() []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range c.RowDefs {
		for _, b := range row.Buttons {
			if !seen[b.Event] {
				seen[b.Event] = true
				out = append(out, b.Event)
			}
		}
	}
	return out
}

// ParseJSON 解析JSON布局
func ParseJSON(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, apperrors.Wrap(err, apperrors.ErrConfigParse)
	}
	return c, c.Validate()
}

// ParseYAML 解析YAML布局
func ParseYAML(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, apperrors.Wrap(err, apperrors.ErrConfigParse)
	}
	return c, c.Validate()
}

// ToYAML 导出为YAML
func ToYAML(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}

// Store 布局持久化
type Store struct {
	kv  repository.KVStore
	log *zap.Logger
}

// NewStore 创建布局存储
func NewStore(kv repository.KVStore) *Store {
	return &Store{kv: kv, log: logger.GetModuleLogger(logger.ModuleStorage)}
}

// Load 读取保存的布局，缺失或无效时返回内置布局
func (s *Store) Load(ctx context.Context) Config {
	var c Config
	if err := s.kv.Get(ctx, StorageKey, &c); err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			s.log.Warn("读取布局失败，使用默认布局", zap.Error(err))
		}
		return Default()
	}
	if err := c.Validate(); err != nil {
		s.log.Warn("保存的布局无效，使用默认布局", zap.Error(err))
		return Default()
	}
	return c
}

// Save 校验并保存布局
func (s *Store) Save(ctx context.Context, c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.kv.Set(ctx, StorageKey, c)
}

// Reset 删除保存的布局，恢复默认
func (s *Store) Reset(ctx context.Context) error {
	return s.kv.Delete(ctx, StorageKey)
}
