// Package pipeline 各生成阶段共享的运行上下文
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"radio-station/internal/artifact"
	"radio-station/internal/models"
	"radio-station/internal/session"
)

// 阶段间约定: 每个阶段可以读取全部会话状态, 但只写自己前缀下的键.
// 并发运行的子任务只写以自己task id命名的键, 因此不需要加锁.

// RunContext 一次节目生成的上下文, 按引用传给每个阶段
type RunContext struct {
	RunID      string
	ProgramID  string
	ListenerID string
	DryRun     bool

	State     *session.State
	Artifacts *artifact.RunArtifacts

	Program  *models.ListenerProgram
	Segments []models.ProgramSegment
	Casts    []models.RadioCast

	Clock models.Clock
	emit  func(models.Event)
}

// NewRunContext 创建运行上下文, emit需要支持并发调用
func NewRunContext(runID string, state *session.State, artifacts *artifact.RunArtifacts, emit func(models.Event)) *RunContext {
	return &RunContext{
		RunID:     runID,
		State:     state,
		Artifacts: artifacts,
		Clock:     time.Now,
		emit:      emit,
	}
}

// Now 当前时间
func (rc *RunContext) Now() time.Time {
	if rc.Clock == nil {
		return time.Now()
	}
	return rc.Clock()
}

// Emit 输出进度事件
func (rc *RunContext) Emit(author, content string) {
	rc.send(models.Event{RunID: rc.RunID, Author: author, Content: content, Timestamp: rc.Now()})
}

// EmitError 输出终止错误事件
func (rc *RunContext) EmitError(author, code, message string) {
	rc.send(models.Event{RunID: rc.RunID, Author: author, ErrorCode: code, ErrorMessage: message, Timestamp: rc.Now()})
}

func (rc *RunContext) send(e models.Event) {
	if rc.emit != nil {
		rc.emit(e)
	}
}

// Logf 带run id的日志
func (rc *RunContext) Logf(format string, args ...any) {
	log.Output(2, fmt.Sprintf("[run %s] ", rc.RunID)+fmt.Sprintf(format, args...))
}

// Stage 一个生成阶段
type Stage interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) error
}

// AlreadyFinished 阶段已完成时输出的内容
const AlreadyFinished = "already finished this task"
