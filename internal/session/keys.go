package session

import "fmt"

// 各阶段拥有的键前缀
const (
	PrefixResearch   = "research:"
	PrefixProgram    = "program:"
	PrefixWriter     = "writer:"
	PrefixComposer   = "composer:"
	PrefixRecorder   = "recorder:"
	PrefixNewsletter = "newsletter:"
	PrefixMastering  = "mastering:"
	PrefixRun        = "run:"
)

const (
	KeyResearchTaskIDs = "research:task_ids"
	KeyResearchResults = "research:results"

	KeyProgramStructure = "program:structure"

	KeyWriterSegments = "writer:talk_script_segments"
	KeyWriterState    = "writer:state"
	KeyWriterScript   = "writer:talk_script"

	KeyComposerTaskIDs = "composer:task_ids"

	KeyRecorderState    = "recorder:state"
	KeyRecorderTaskIDs  = "recorder:task_ids"
	KeyRecorderSegments = "recorder:talk_script_segments"

	KeyNewsletterContents = "newsletter:contents"

	KeyMasteringState = "mastering:state"

	KeyRunState    = "run:state"
	KeyRunError    = "run:error"
	KeyRunProgram  = "run:program"
	KeyRunSegments = "run:segments"
	KeyRunCasts    = "run:casts"
	KeyRunDryRun   = "run:dry_run"
)

// StateDone 阶段完成标记
const StateDone = "done"

// ResearchResultKey 单个内容来源的调查结果
func ResearchResultKey(taskID string) string {
	return fmt.Sprintf("research:%s:result", taskID)
}

// WriterTaskKey 单个段落(含续写)的台词
func WriterTaskKey(taskID string) string {
	return fmt.Sprintf("writer:%s:segments", taskID)
}

// MusicPlanKey 单个作曲任务的音乐计划
func MusicPlanKey(taskID string) string {
	return fmt.Sprintf("composer:%s:music_plan", taskID)
}
