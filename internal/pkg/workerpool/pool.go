package workerpool

import (
	"errors"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config Worker Pool 配置
type Config struct {
	// Workers 并发 worker 数量
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{Workers: 4}
}

// Pool 基于 ants 的固定大小任务池
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger
}

// New 创建 Pool
func New(cfg *Config, logger *zap.Logger) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	antsPool, err := ants.NewPool(cfg.Workers,
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("worker panic recovered", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Pool{pool: antsPool, logger: logger}, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	if p.pool.IsClosed() {
		return ErrPoolClosed
	}
	return p.pool.Submit(task)
}

// Running 当前运行中的 worker 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Free 空闲 worker 数量
func (p *Pool) Free() int {
	return p.pool.Free()
}

// Shutdown 关闭池并等待任务完成
func (p *Pool) Shutdown() {
	p.pool.Release()
}
