package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/toshiotawa/jazzify-lab-sub004/api/rest"
	"github.com/toshiotawa/jazzify-lab-sub004/audit"
	"github.com/toshiotawa/jazzify-lab-sub004/cache"
	"github.com/toshiotawa/jazzify-lab-sub004/config"
	dbadapter "github.com/toshiotawa/jazzify-lab-sub004/db"
	"github.com/toshiotawa/jazzify-lab-sub004/guild"
	mw "github.com/toshiotawa/jazzify-lab-sub004/middleware"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"github.com/toshiotawa/jazzify-lab-sub004/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Guild Core ----
	publisher := guild.NewPublisher(pubsub, logger)
	guildSvc := guild.NewService(db, cfg.Guild, logger, publisher)
	ledger := guild.NewLedger(db, logger)
	ranking := guild.NewRanking(db, c, cfg.Guild, logger)
	quest := guild.NewQuestRunner(db, cfg.Guild, guildSvc, logger)

	// ---- Periodic Scheduler Tasks ----
	sched.AddHourly("guild_quest", func(rollover time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := quest.Run(ctx, rollover); err != nil {
			logger.Error("scheduled quest run failed", zap.Error(err))
		}
	})
	sched.AddTicker("ranking_refresh", 10*time.Minute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := ranking.Refresh(ctx, time.Now().UTC()); err != nil {
			logger.Error("ranking refresh failed", zap.Error(err))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS),
		cfg.Security.RateLimitBurst, cfg.Security.RateLimitSweep))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	guildH := apirest.NewGuildHandler(guildSvc, auditSvc, logger)
	xpH := apirest.NewXPHandler(ledger, logger)
	rankH := apirest.NewRankingHandler(ranking, logger)
	adminH := apirest.NewAdminHandler(db, quest, ranking, guildSvc, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		guildsG := api.Group("/guilds")
		guildsG.Use(mw.Auth(cfg.Security, c))
		guildsG.POST("", guildH.Create)
		guildsG.GET("/mine", guildH.Mine)
		guildsG.GET("/ranking", rankH.Standings)
		guildsG.GET("/ranking/me", rankH.MyRank)
		guildsG.GET("/invitations", guildH.MyInvitations)
		guildsG.POST("/invitations", guildH.Invite)
		guildsG.POST("/invitations/:id/accept", guildH.AcceptInvitation)
		guildsG.POST("/invitations/:id/reject", guildH.RejectInvitation)
		guildsG.POST("/invitations/:id/cancel", guildH.CancelInvitation)
		guildsG.POST("/requests/:id/approve", guildH.ApproveRequest)
		guildsG.POST("/requests/:id/reject", guildH.RejectRequest)
		guildsG.POST("/requests/:id/cancel", guildH.CancelRequest)
		guildsG.POST("/leave", guildH.Leave)
		guildsG.GET("/:id", guildH.Detail)
		guildsG.POST("/:id/requests", guildH.RequestJoin)
		guildsG.GET("/:id/requests", guildH.PendingRequests)
		guildsG.POST("/:id/kick", guildH.Kick)
		guildsG.POST("/:id/transfer", guildH.TransferLeadership)
		guildsG.POST("/:id/disband", guildH.Disband)

		xpG := api.Group("/xp")
		xpG.Use(mw.Auth(cfg.Security, c))
		xpG.POST("", xpH.Report)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs))
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/quest/run", adminH.RunQuest)
		adminG.POST("/ranking/refresh", adminH.RefreshRanking)
		adminG.POST("/guilds/:id/disband", adminH.DisbandGuild)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
