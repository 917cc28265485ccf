package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"party-arena/internal/ai"
	"party-arena/internal/api"
	"party-arena/internal/config"
	"party-arena/internal/game"
	"party-arena/internal/lobby"
	"party-arena/internal/persistence"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  PARTY ARENA - GO ENGINE")
	log.Println("🎮 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Printf("⚠️ Mode tuning file ignored, using defaults: %v", err)
	} else if appConfig.TuningPath != "" {
		log.Printf("🎛️ Mode tuning loaded from %s", appConfig.TuningPath)
	}
	roomCfg := appConfig.GameRoomConfig()
	log.Printf("🎮 Config: %d TPS, %.0fs countdown, chain=%v, %d rooms max",
		roomCfg.TickRate, roomCfg.CountdownSeconds, roomCfg.Chain, appConfig.Lobby.MaxRooms)

	metrics := api.NewMetrics()

	// Start event log
	journal := game.NewJournal()
	if err := journal.Start(appConfig.Persistence.JournalPath); err != nil {
		log.Printf("⚠️ Event log file disabled, keeping events in memory: %v", err)
		journal.Start("")
	} else if appConfig.Persistence.JournalPath != "" {
		log.Printf("📝 Event log: %s", appConfig.Persistence.JournalPath)
	}
	metrics.TrackJournal(journal.Stats)

	// Result sinks
	sinks, history := openSinks(appConfig.Persistence)
	recorder := persistence.NewRecorder(sinks, persistence.RecorderConfig{
		QueueSize: appConfig.Persistence.QueueSize,
	}, metrics)
	recorder.Start()

	// Start debug server
	debugCfg := api.DefaultObservabilityConfig()
	debugCfg.Enabled = appConfig.Debug.Enabled
	debugCfg.ListenAddr = appConfig.Debug.ListenAddr
	debugCfg.BasicAuthUser = os.Getenv("DEBUG_USER")
	debugCfg.BasicAuthPass = os.Getenv("DEBUG_PASS")
	if err := api.StartDebugServer(debugCfg); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	hub := api.NewHub(api.HubConfig{
		InputsPerSec: appConfig.Server.InputsPerSec,
		Origins:      appConfig.Server.CORSOrigins,
	})

	lobbyMgr := lobby.NewManager(lobby.Config{
		MaxRooms:    appConfig.Lobby.MaxRooms,
		DefaultMode: appConfig.Lobby.DefaultMode,
		Room:        roomCfg,
	}, game.NewRegistry(appConfig.Tuning.Modes), game.Deps{
		Broadcaster: hub,
		Results:     recorder,
		Telemetry:   metrics,
		Journal:     journal,
	})
	metrics.TrackRooms(lobbyMgr.Count)

	log.Printf("🏟️ Modes: %v", lobbyMgr.Modes())

	// AI director
	aiCtx, stopAI := context.WithCancel(context.Background())
	var director *ai.Director
	if appConfig.AI.Enabled {
		client := ai.NewClient(ai.Config{
			Endpoint:          appConfig.AI.Endpoint,
			APIKey:            appConfig.AI.APIKey,
			Timeout:           appConfig.AI.Timeout,
			RequestsPerSecond: appConfig.AI.RequestsPerSecond,
		})
		if !client.Enabled() {
			log.Println("⚠️ AI_ENDPOINT not set - director runs on the fallback rotation")
		}
		director = ai.NewDirector(client, lobbyMgr, appConfig.AI.Interval, metrics)
		go director.Run(aiCtx)
	} else {
		log.Println("⚠️ AI director disabled (AI_ENABLED=false)")
	}

	if appConfig.Server.AdminToken == "" {
		log.Println("⚠️ ADMIN_TOKEN not set - admin mutation endpoint disabled")
	}

	addr := ":" + strconv.Itoa(appConfig.Server.Port)
	rc := api.RouterConfig{
		Lobby:       lobbyMgr,
		Hub:         hub,
		AdminToken:  appConfig.Server.AdminToken,
		CORSOrigins: appConfig.Server.CORSOrigins,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: appConfig.Server.RequestsPerSec,
			Burst:             appConfig.Server.Burst,
			CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
		},
	}
	if history != nil {
		rc.History = history
	}
	server := api.NewServer(addr, rc)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API server shutdown: %v", err)
	}
	stopAI()
	if director != nil {
		director.Wait()
	}
	if err := lobbyMgr.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Rooms did not stop in time: %v", err)
	}

	// Rooms are stopped, so nothing records after this point
	recorder.Stop()
	if err := sinks.Close(); err != nil {
		log.Printf("⚠️ Closing result sinks: %v", err)
	}
	journal.Stop()
	log.Println("👋 Goodbye!")
}

// openSinks opens every configured result sink. A sink that fails to open is
// logged and skipped; the server runs without it.
func openSinks(cfg config.PersistenceConfig) (persistence.Multi, *persistence.SQLiteStore) {
	var sinks persistence.Multi
	var history *persistence.SQLiteStore

	if cfg.SQLitePath != "" {
		store, err := persistence.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Printf("⚠️ SQLite match history disabled: %v", err)
		} else {
			log.Printf("🗄️ Match history: %s", cfg.SQLitePath)
			sinks = append(sinks, store)
			history = store
		}
	}

	if cfg.RedisAddr != "" {
		pub := persistence.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := pub.Ping(ctx)
		cancel()
		if err != nil {
			// Publishing is best effort; keep the sink so it recovers when Redis does
			log.Printf("⚠️ Redis at %s unreachable, results will be dropped until it is: %v", cfg.RedisAddr, err)
		}
		sinks = append(sinks, pub)
	}

	if len(sinks) == 0 {
		log.Println("⚠️ No result sinks configured - match results are discarded")
	}
	return sinks, history
}
