package audio

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

//go:generate moq -out mocks/command_runner.go -pkg mocks -skip-ensure -fmt goimports . CommandRunner

// CommandRunner 执行外部命令, stdin作为输入, 返回stdout
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// ExecRunner 使用os/exec执行命令
type ExecRunner struct{}

// Run 执行命令, 失败时把stderr附在错误中
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	// #nosec G204 -- 参数由程序内部构造
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s 执行失败: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// MP3Encoder 通过ffmpeg编码mp3
type MP3Encoder struct {
	runner  CommandRunner
	bitrate string
}

// NewMP3Encoder 创建编码器, runner为nil时使用ExecRunner
func NewMP3Encoder(runner CommandRunner, bitrate string) *MP3Encoder {
	if runner == nil {
		runner = ExecRunner{}
	}
	if bitrate == "" {
		bitrate = "96k"
	}
	return &MP3Encoder{runner: runner, bitrate: bitrate}
}

// Encode 把音轨编码为mp3
func (e *MP3Encoder) Encode(ctx context.Context, t *Track) ([]byte, error) {
	wavData, err := EncodeWAV(t)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "wav",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", e.bitrate,
		"-f", "mp3",
		"pipe:1",
	}
	log.Printf("使用ffmpeg编码mp3，时长 %v，码率 %s", t.Duration(), e.bitrate)
	out, err := e.runner.Run(ctx, "ffmpeg", args, wavData)
	if err != nil {
		return nil, fmt.Errorf("编码mp3失败: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("编码mp3失败: ffmpeg没有输出")
	}
	return out, nil
}
