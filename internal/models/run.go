package models

import "time"

// RunState 生成任务的生命周期
type RunState string

const (
	RunPending RunState = "pending"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunFailure RunState = "failure"
)

// Terminal 是否为终止状态
func (s RunState) Terminal() bool {
	return s == RunDone || s == RunFailure
}

// Run 一次节目生成
type Run struct {
	ID         string    `json:"id"`
	ProgramID  string    `json:"program_id"`
	ListenerID string    `json:"listener_id"`
	DryRun     bool      `json:"dry_run"`
	State      RunState  `json:"state"`
	Error      string    `json:"error,omitempty"`
	Resumed    bool      `json:"resumed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event 生成过程中的进度事件
type Event struct {
	RunID        string    `json:"run_id"`
	Author       string    `json:"author"`
	Content      string    `json:"content,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// IsError 是否为错误事件
func (e Event) IsError() bool {
	return e.ErrorCode != ""
}

// Clock 当前时间, 测试可替换
type Clock func() time.Time
