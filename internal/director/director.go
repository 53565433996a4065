// Package director 串联各个阶段, 执行一次完整的节目生成
package director

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/catalog"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/session"
)

const author = "Director"

// ErrorCode 终止错误事件的错误码
const ErrorCode = "500"

// ErrRunNotFound run不存在
var ErrRunNotFound = errors.New("run not found")

// ErrRunActive 同一个run正在执行
var ErrRunActive = errors.New("run already in progress")

// Stages 流水线上的各个阶段
type Stages struct {
	Research   pipeline.Stage
	Planner    pipeline.Stage
	Writer     pipeline.Stage
	Recorder   pipeline.Stage
	Composer   pipeline.Stage
	Mastering  pipeline.Stage
	Newsletter pipeline.Stage
}

// Request 生成请求
type Request struct {
	ProgramID       string `json:"program_id"`
	ListenerID      string `json:"listener_id"`
	DryRun          bool   `json:"dry_run"`
	ResumeHistoryID string `json:"resume_history_id,omitempty"`
}

// Director 节目生成的入口
type Director struct {
	programs  catalog.ProgramStore
	persister session.Persister
	artifacts artifact.Store
	stages    Stages
	hub       *Hub

	newID func() string
	clock models.Clock

	mu     sync.Mutex
	active map[string]struct{}
}

// New 创建Director
func New(programs catalog.ProgramStore, persister session.Persister, artifacts artifact.Store, stages Stages, hub *Hub) *Director {
	if hub == nil {
		hub = NewHub()
	}
	return &Director{
		programs:  programs,
		persister: persister,
		artifacts: artifacts,
		stages:    stages,
		hub:       hub,
		newID:     uuid.NewString,
		clock:     time.Now,
		active:    make(map[string]struct{}),
	}
}

// Hub 返回事件中心
func (d *Director) Hub() *Hub { return d.hub }

// StartRun 在后台启动一次生成, 返回run和进度事件流. 事件流在run结束后关闭.
// 事件流不会丢弃事件, 调用方必须把它读完.
func (d *Director) StartRun(ctx context.Context, req Request) (models.Run, <-chan models.Event, error) {
	if req.ProgramID == "" {
		return models.Run{}, nil, apperr.New(apperr.KindPrecondition, "program id is required")
	}
	run := models.Run{
		ID:         req.ResumeHistoryID,
		ProgramID:  req.ProgramID,
		ListenerID: req.ListenerID,
		DryRun:     req.DryRun,
		State:      models.RunPending,
		Resumed:    req.ResumeHistoryID != "",
		CreatedAt:  d.clock(),
	}
	if run.ID == "" {
		run.ID = d.newID()
	}
	if err := d.acquire(run.ID); err != nil {
		return models.Run{}, nil, err
	}

	d.hub.Open(run.ID)
	events := d.hub.Follow(run.ID)
	go func() {
		defer d.release(run.ID)
		defer d.hub.Close(run.ID)
		if _, err := d.execute(context.WithoutCancel(ctx), run); err != nil {
			log.Printf("[run %s] 节目生成失败: %v", run.ID, err)
		}
	}()
	return run, events, nil
}

// Run 同步执行一次生成, 事件写入Hub, 返回最终状态
func (d *Director) Run(ctx context.Context, req Request) (models.Run, error) {
	run, events, err := d.StartRun(ctx, req)
	if err != nil {
		return run, err
	}
	for range events {
	}
	return d.Status(ctx, run.ID)
}

func (d *Director) acquire(runID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.active[runID]; ok {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	d.active[runID] = struct{}{}
	return nil
}

func (d *Director) release(runID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, runID)
}

func (d *Director) execute(ctx context.Context, run models.Run) (models.Run, error) {
	state, existed, err := session.Open(ctx, run.ID, d.persister)
	if err != nil {
		return d.abort(ctx, run, nil, err)
	}
	state.SetClock(d.clock)
	if run.Resumed && !existed {
		log.Printf("[run %s] 没有可续跑的会话状态，从头开始", run.ID)
	}

	rc := pipeline.NewRunContext(run.ID, state, artifact.ForRun(d.artifacts, run.ID), d.hub.Publish)
	rc.ProgramID = run.ProgramID
	rc.ListenerID = run.ListenerID
	rc.DryRun = run.DryRun
	rc.Clock = d.clock

	if err := state.Update(ctx, map[string]any{
		session.KeyRunState:  models.RunPending,
		session.KeyRunDryRun: run.DryRun,
	}); err != nil {
		return d.abort(ctx, run, rc, err)
	}
	rc.Emit(author, fmt.Sprintf("开始生成节目 %s", run.ProgramID))

	if err := d.prepare(ctx, rc); err != nil {
		return d.abort(ctx, run, rc, err)
	}
	run.State = models.RunRunning
	// 续跑时清掉上一次失败留下的错误
	if err := state.Update(ctx, map[string]any{
		session.KeyRunState: run.State,
		session.KeyRunError: "",
	}); err != nil {
		return d.abort(ctx, run, rc, err)
	}

	if err := d.runStages(ctx, rc); err != nil {
		return d.abort(ctx, run, rc, err)
	}

	run.State = models.RunDone
	if err := state.Set(ctx, session.KeyRunState, run.State); err != nil {
		return d.abort(ctx, run, rc, err)
	}
	if run.DryRun {
		rc.Emit(author, "试运行完成，已生成台本和简报")
	} else {
		rc.Emit(author, "节目生成完成")
	}
	rc.Logf("节目生成完成")
	return run, nil
}

// prepare 读取节目、段落和出演者, 续跑时使用会话里保存的版本
func (d *Director) prepare(ctx context.Context, rc *pipeline.RunContext) error {
	program, ok, err := session.Value[models.ListenerProgram](rc.State, session.KeyRunProgram)
	if err != nil {
		return err
	}
	if ok {
		segments, _, err := session.Value[[]models.ProgramSegment](rc.State, session.KeyRunSegments)
		if err != nil {
			return err
		}
		casts, _, err := session.Value[[]models.RadioCast](rc.State, session.KeyRunCasts)
		if err != nil {
			return err
		}
		rc.Program, rc.Segments, rc.Casts = &program, segments, casts
		return validate(rc)
	}

	p, err := d.programs.GetProgram(ctx, rc.ProgramID)
	if errors.Is(err, catalog.ErrNotFound) {
		return apperr.Newf(apperr.KindPrecondition, "listener program not found: %s", rc.ProgramID)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.KindTransient, "load listener program")
	}
	segments, err := d.programs.GetSegments(ctx, rc.ProgramID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return apperr.Wrap(err, apperr.KindTransient, "load program segments")
	}
	casts, err := d.programs.GetCasts(ctx, castIDs(p, segments))
	if err != nil {
		return apperr.Wrap(err, apperr.KindTransient, "load radio casts")
	}
	if rc.ListenerID == "" {
		rc.ListenerID = p.ListenerID
	}
	rc.Program, rc.Segments, rc.Casts = p, segments, casts
	if err := validate(rc); err != nil {
		return err
	}
	return rc.State.Update(ctx, map[string]any{
		session.KeyRunProgram:  p,
		session.KeyRunSegments: segments,
		session.KeyRunCasts:    casts,
	})
}

func validate(rc *pipeline.RunContext) error {
	if rc.Program == nil {
		return apperr.Newf(apperr.KindPrecondition, "listener program not found: %s", rc.ProgramID)
	}
	if len(rc.Segments) == 0 {
		return apperr.Newf(apperr.KindPrecondition, "program segments not found: %s", rc.ProgramID)
	}
	have := make(map[string]bool, len(rc.Casts))
	for _, c := range rc.Casts {
		have[c.ID] = true
	}
	for _, id := range rc.Program.BaseRadioCastIDs {
		if have[id] {
			return nil
		}
	}
	return apperr.Newf(apperr.KindPrecondition, "radio casts not found: %s", rc.ProgramID)
}

func castIDs(p *models.ListenerProgram, segments []models.ProgramSegment) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(list []string) {
		for _, id := range list {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	add(p.BaseRadioCastIDs)
	for _, s := range segments {
		add(s.OverrideRadioCastIDs)
		add(s.AdditionalGuestIDs)
	}
	return ids
}

// runStages 正式运行: 调查 → 策划 → ((写作 → [录音 ∥ 简报]) ∥ 作曲) → 母带.
// 试运行: 调查 → 策划 → 写作 → 简报.
// 一个分支失败时另一个分支不会被取消, 等全部结束后返回错误.
func (d *Director) runStages(ctx context.Context, rc *pipeline.RunContext) error {
	if err := runAll(ctx, rc, d.stages.Research, d.stages.Planner); err != nil {
		return err
	}
	if rc.DryRun {
		return runAll(ctx, rc, d.stages.Writer, d.stages.Newsletter)
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := runStage(ctx, rc, d.stages.Writer); err != nil {
			return err
		}
		var after errgroup.Group
		after.Go(func() error { return runStage(ctx, rc, d.stages.Recorder) })
		after.Go(func() error { return runStage(ctx, rc, d.stages.Newsletter) })
		return after.Wait()
	})
	g.Go(func() error { return runStage(ctx, rc, d.stages.Composer) })
	if err := g.Wait(); err != nil {
		return err
	}
	return runStage(ctx, rc, d.stages.Mastering)
}

func runAll(ctx context.Context, rc *pipeline.RunContext, stages ...pipeline.Stage) error {
	for _, s := range stages {
		if err := runStage(ctx, rc, s); err != nil {
			return err
		}
	}
	return nil
}

func runStage(ctx context.Context, rc *pipeline.RunContext, s pipeline.Stage) error {
	if s == nil {
		return nil
	}
	start := time.Now()
	rc.Logf("开始阶段 %s", s.Name())
	if err := s.Run(ctx, rc); err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	rc.Logf("阶段 %s 完成，耗时 %v", s.Name(), time.Since(start).Round(time.Millisecond))
	return nil
}

// abort 记录失败状态并输出终止错误事件
func (d *Director) abort(ctx context.Context, run models.Run, rc *pipeline.RunContext, cause error) (models.Run, error) {
	run.State = models.RunFailure
	run.Error = cause.Error()
	if rc == nil {
		d.hub.Publish(models.Event{RunID: run.ID, Author: author, ErrorCode: ErrorCode, ErrorMessage: run.Error, Timestamp: d.clock()})
		return run, cause
	}
	if err := rc.State.Update(ctx, map[string]any{
		session.KeyRunState: run.State,
		session.KeyRunError: run.Error,
	}); err != nil {
		rc.Logf("保存失败状态出错: %v", err)
	}
	rc.EmitError(author, ErrorCode, run.Error)
	return run, cause
}

// Status 从持久化的会话状态读取run状态
func (d *Director) Status(ctx context.Context, runID string) (models.Run, error) {
	state, ok, err := session.Open(ctx, runID, d.persister)
	if err != nil {
		return models.Run{}, err
	}
	if !ok {
		return models.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run := models.Run{ID: runID}
	if s, _, err := session.Value[models.RunState](state, session.KeyRunState); err == nil {
		run.State = s
	}
	if msg, _, err := session.Value[string](state, session.KeyRunError); err == nil {
		run.Error = msg
	}
	if dry, _, err := session.Value[bool](state, session.KeyRunDryRun); err == nil {
		run.DryRun = dry
	}
	if p, ok, err := session.Value[models.ListenerProgram](state, session.KeyRunProgram); err == nil && ok {
		run.ProgramID = p.ID
		run.ListenerID = p.ListenerID
	}
	return run, nil
}

// Script 返回试运行或正式运行生成的台本和简报
func (d *Director) Script(ctx context.Context, runID string) (script, newsletter string, err error) {
	state, ok, err := session.Open(ctx, runID, d.persister)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	script, _, err = session.Value[string](state, session.KeyWriterScript)
	if err != nil {
		return "", "", err
	}
	newsletter, _, err = session.Value[string](state, session.KeyNewsletterContents)
	if err != nil {
		return "", "", err
	}
	return script, newsletter, nil
}
