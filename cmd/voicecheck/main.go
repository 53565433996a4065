package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"radio-station/config"
	"radio-station/internal/audio"
	"radio-station/internal/tts"
)

func main() {
	text := flag.String("text", "这是一段测试文本，用于验证语音合成服务是否正常工作。", "测试文本")
	voices := flag.String("voices", "", "逗号分隔的声音名称, 为空时使用默认声音")
	provider := flag.String("provider", "", "覆盖TTS_PROVIDER")
	rate := flag.Float64("rate", 1.0, "语速")
	out := flag.String("out", ".", "输出目录")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig()
	if *provider != "" {
		cfg.TTS.Provider = *provider
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	synth, err := tts.Factory(ctx, cfg)
	if err != nil {
		log.Fatalf("创建TTS服务失败: %v", err)
	}
	log.Printf("开始测试 %s 语音合成...", synth.Provider())

	names := []string{""}
	if *voices != "" {
		names = strings.Split(*voices, ",")
	}
	failed := 0
	for _, voice := range names {
		voice = strings.TrimSpace(voice)
		label := voice
		if label == "" {
			label = "default"
		}

		start := time.Now()
		track, err := tts.Render(ctx, synth, []tts.Utterance{{Text: *text, Voice: voice, Rate: *rate}}, cfg.Radio.SampleRate)
		if err != nil {
			log.Printf("❌ %s 合成失败: %v", label, err)
			failed++
			continue
		}
		data, err := audio.EncodeWAV(track)
		if err != nil {
			log.Printf("❌ %s 编码失败: %v", label, err)
			failed++
			continue
		}
		filename := fmt.Sprintf("%s/voicecheck_%s_%s.wav", strings.TrimRight(*out, "/"), synth.Provider(), label)
		if err := os.WriteFile(filename, data, 0o644); err != nil {
			log.Printf("❌ 保存音频文件失败: %v", err)
			failed++
			continue
		}
		log.Printf("✅ %s 合成成功! 文件: %s, 时长: %v, 耗时: %v", label, filename, track.Duration().Round(time.Millisecond), time.Since(start))
	}

	if failed > 0 {
		log.Fatalf("测试完成，%d 个声音失败", failed)
	}
	log.Println("测试完成！")
}
