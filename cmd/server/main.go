package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"radio-station/config"
	"radio-station/internal/ai"
	"radio-station/internal/api"
	"radio-station/internal/artifact"
	"radio-station/internal/audio"
	"radio-station/internal/catalog"
	"radio-station/internal/composer"
	"radio-station/internal/crawler"
	"radio-station/internal/director"
	"radio-station/internal/mastering"
	"radio-station/internal/models"
	"radio-station/internal/music"
	"radio-station/internal/newsletter"
	"radio-station/internal/planner"
	"radio-station/internal/recorder"
	"radio-station/internal/research"
	"radio-station/internal/session"
	"radio-station/internal/storage"
	"radio-station/internal/tts"
	"radio-station/internal/writer"
)

// 单页正文的最大字符数
const maxPageChars = 20000

func main() {
	// 设置日志格式
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("启动 Radio Station 服务")

	// 加载配置
	cfg := config.LoadConfig()
	ctx := context.Background()

	objects, err := storage.NewMinioClient(&cfg.MinIO)
	if err != nil {
		log.Fatalf("创建MinIO客户端失败: %v", err)
	}
	programs := catalog.NewObjectCatalog(objects)

	stages, err := buildStages(ctx, cfg, programs)
	if err != nil {
		log.Fatalf("初始化生成流程失败: %v", err)
	}
	d := director.New(programs, session.NewObjectPersister(objects), artifact.NewObjectStore(objects), stages, director.NewHub())
	server := api.NewServer(cfg, d, objects)

	// 创建定时任务
	c := cron.New(cron.WithSeconds())
	if n := schedulePrograms(ctx, c, cfg, programs, d); n > 0 {
		c.Start()
		log.Printf("定时任务已启动，共 %d 个节目", n)
	}

	// 启动服务器（非阻塞）
	srv := server.HTTPServer()
	go func() {
		log.Printf("服务器正在监听端口 %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务器运行失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到退出信号，正在关闭服务")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭服务器失败: %v", err)
	}
	<-c.Stop().Done()
}

// buildStages 按配置创建各个阶段
func buildStages(ctx context.Context, cfg *config.Config, programs *catalog.ObjectCatalog) (director.Stages, error) {
	llm, err := ai.NewCompleter(ctx, cfg)
	if err != nil {
		return director.Stages{}, err
	}
	synth, err := tts.Factory(ctx, cfg)
	if err != nil {
		return director.Stages{}, err
	}
	gen, err := music.Factory(ctx, cfg)
	if err != nil {
		return director.Stages{}, err
	}

	lang := cfg.LLM.Language
	fetcher := crawler.NewFetcher(cfg.Google.ResearchWebTimeout, maxPageChars)
	oauthCfg := research.NewOAuthConfig(&cfg.Google)
	var weather research.Forecaster
	if cfg.Google.MapsAPIKey != "" {
		weather = research.NewWeatherService(cfg.Google.MapsAPIKey, cfg.Google.WeatherBaseURL)
	}
	researchers := map[models.SegmentKind]research.Researcher{
		models.SegmentRSS:      research.NewRSSResearcher(llm, lang, fetcher),
		models.SegmentWeb:      research.NewWebResearcher(llm, lang, fetcher, cfg.Google.ResearchWebTimeout),
		models.SegmentGmail:    research.NewGmailResearcher(llm, lang, programs, research.NewGoogleMailFactory(oauthCfg)),
		models.SegmentCalendar: research.NewCalendarResearcher(llm, lang, programs, research.NewGoogleCalendarFactory(oauthCfg), weather),
	}

	return director.Stages{
		Research:   research.NewStage(researchers, programs),
		Planner:    planner.NewStage(llm, lang),
		Writer:     writer.NewStage(llm, lang, cfg.Radio),
		Recorder:   recorder.NewStage(synth, cfg.Radio),
		Composer:   composer.NewStage(llm, gen, cfg.Radio),
		Mastering:  mastering.NewStage(audio.NewMP3Encoder(nil, cfg.Radio.MP3Bitrate), cfg.Radio),
		Newsletter: newsletter.NewStage(llm, lang),
	}, nil
}

// schedulePrograms 按节目的播出时间注册定时任务, 返回注册成功的数量
func schedulePrograms(ctx context.Context, c *cron.Cron, cfg *config.Config, programs catalog.ProgramStore, d *director.Director) int {
	var list []models.ListenerProgram
	if len(cfg.Schedule.ProgramIDs) > 0 {
		for _, id := range cfg.Schedule.ProgramIDs {
			p, err := programs.GetProgram(ctx, id)
			if err != nil {
				log.Printf("读取节目 %s 失败: %v", id, err)
				continue
			}
			list = append(list, *p)
		}
	} else {
		all, err := programs.ListPrograms(ctx)
		if err != nil {
			log.Printf("读取节目列表失败: %v", err)
			return 0
		}
		for _, p := range all {
			if p.Schedule != "" {
				list = append(list, p)
			}
		}
	}

	n := 0
	for _, p := range list {
		spec := p.Schedule
		if spec == "" {
			spec = cfg.Schedule.DefaultSchedule
		}
		programID, listenerID := p.ID, p.ListenerID
		_, err := c.AddFunc(spec, func() {
			log.Printf("定时任务触发：生成节目 %s", programID)
			_, events, err := d.StartRun(context.Background(), director.Request{ProgramID: programID, ListenerID: listenerID})
			if err != nil {
				log.Printf("启动节目 %s 失败: %v", programID, err)
				return
			}
			for range events {
			}
		})
		if err != nil {
			log.Printf("添加定时任务失败 (%s, %q): %v", programID, spec, err)
			continue
		}
		n++
	}
	return n
}
