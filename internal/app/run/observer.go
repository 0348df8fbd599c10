package run

import (
	"time"

	"github.com/xavivs/la-quiniela/internal/config"
	"github.com/xavivs/la-quiniela/internal/domain"
)

// Observer 用于把“运行进度/阶段/来源尝试”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：HTTP 服务下事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在操作开始时调用（op 例如 "parse" / "teams" / "results"）。
	OnStart(op string, eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnAttempt 在每次页面来源尝试结束时调用（cache / web / browser）。
	OnAttempt(a domain.ProviderAttempt, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(string, config.EffectiveConfig)            {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnAttempt(domain.ProviderAttempt, time.Duration)   {}
