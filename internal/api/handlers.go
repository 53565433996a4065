package api

import (
	"errors"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"radio-station/config"
	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/director"
	"radio-station/internal/models"
	"radio-station/internal/storage"
)

const presignExpiry = 24 * time.Hour

// Server 是API服务器结构
type Server struct {
	config   *config.Config
	router   *gin.Engine
	director *director.Director
	objects  storage.ObjectStore
	upgrader websocket.Upgrader
}

// NewServer 创建一个新的API服务器
func NewServer(cfg *config.Config, d *director.Director, objects storage.ObjectStore) *Server {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// 启用CORS
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"}
	if allowAll(cfg.Server.CORSOrigins) {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.CORSOrigins
	}
	router.Use(cors.New(corsCfg))

	s := &Server{
		config:   cfg,
		router:   router,
		director: d,
		objects:  objects,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.registerRoutes()
	return s
}

func allowAll(origins []string) bool {
	return len(origins) == 0 || slices.Contains(origins, "*")
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || allowAll(s.config.Server.CORSOrigins) || slices.Contains(s.config.Server.CORSOrigins, origin)
}

// registerRoutes 注册API路由
func (s *Server) registerRoutes() {
	// 健康检查
	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/runs", s.startRunHandler)
		v1.GET("/runs/:id", s.getRunHandler)
		v1.GET("/runs/:id/events", s.getEventsHandler)
		v1.GET("/runs/:id/ws", s.streamEventsHandler)
		v1.GET("/runs/:id/audio", s.getAudioHandler)
		v1.GET("/runs/:id/script", s.getScriptHandler)
	}
}

// Handler 返回HTTP处理器
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer 创建监听配置端口的http.Server, 由调用方负责启动和关闭
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.config.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// healthHandler 健康检查处理程序
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"env":    s.config.Server.Env,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// startRunHandler 启动一次节目生成
func (s *Server) startRunHandler(c *gin.Context) {
	var req director.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	run, events, err := s.director.StartRun(c.Request.Context(), req)
	switch {
	case apperr.IsKind(err, apperr.KindPrecondition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, director.ErrRunActive):
		c.JSON(http.StatusConflict, gin.H{"error": "该任务正在处理中"})
		return
	case err != nil:
		log.Printf("启动节目生成失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "启动节目生成失败"})
		return
	}
	// 事件已经记录在Hub中, 这里只需要把通道读空
	go func() {
		for range events {
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"run":     run,
		"message": "处理已开始",
	})
}

// getRunHandler 获取生成状态
func (s *Server) getRunHandler(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// getEventsHandler 获取已记录的进度事件
func (s *Server) getEventsHandler(c *gin.Context) {
	runID := c.Param("id")
	events, ok := s.director.Hub().Events(runID)
	if !ok {
		// 服务重启后事件记录不在内存中, 只确认run存在
		if _, ok := s.loadRun(c); !ok {
			return
		}
		events = []models.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "events": events})
}

// streamEventsHandler 通过websocket推送进度事件, 先推送历史记录
func (s *Server) streamEventsHandler(c *gin.Context) {
	runID := c.Param("id")
	if _, ok := s.director.Hub().Events(runID); !ok {
		if _, ok := s.loadRun(c); !ok {
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	history, live, cancel := s.director.Hub().Subscribe(runID)
	defer cancel()

	// 客户端断开时结束推送
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, e := range history {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
	for {
		select {
		case e, ok := <-live:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// getAudioHandler 获取节目音频的预签名URL
func (s *Server) getAudioHandler(c *gin.Context) {
	runID := c.Param("id")
	key := artifact.ObjectKey(runID, artifact.AudioName)
	ctx := c.Request.Context()

	exists, err := s.objects.Exists(ctx, key)
	if err != nil {
		log.Printf("检查音频是否存在失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取音频失败"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "音频不存在"})
		return
	}

	url, err := s.objects.PresignedURL(ctx, key, presignExpiry)
	if err != nil {
		log.Printf("获取预签名URL失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取音频失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":   runID,
		"audioUrl": url,
		"expires":  time.Now().Add(presignExpiry).Format(time.RFC3339),
	})
}

// getScriptHandler 获取台本和简报
func (s *Server) getScriptHandler(c *gin.Context) {
	runID := c.Param("id")
	script, newsletter, err := s.director.Script(c.Request.Context(), runID)
	if errors.Is(err, director.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	if err != nil {
		log.Printf("获取台本失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取台本失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     runID,
		"script":     script,
		"newsletter": newsletter,
	})
}

// loadRun 读取run状态, 失败时直接写入响应
func (s *Server) loadRun(c *gin.Context) (models.Run, bool) {
	run, err := s.director.Status(c.Request.Context(), c.Param("id"))
	if errors.Is(err, director.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return models.Run{}, false
	}
	if err != nil {
		log.Printf("获取任务状态失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取任务状态失败"})
		return models.Run{}, false
	}
	return run, true
}
