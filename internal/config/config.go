// Package config provides centralized configuration management.
// Every section has a Default*() and a *FromEnv() that applies overrides;
// per-mode tuning comes from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"party-arena/internal/game"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	CORSOrigins     []string // nil uses the api defaults
	AdminToken      string   // Empty disables the admin endpoints
	ShutdownTimeout time.Duration
	RequestsPerSec  float64 // Per IP
	Burst           int
	InputsPerSec    float64 // Per WebSocket session
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            3000,
		ShutdownTimeout: 10 * time.Second,
		RequestsPerSec:  10,
		Burst:           20,
		InputsPerSec:    60,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if v := getEnvFloat("RATE_LIMIT_RPS", 0); v > 0 {
		cfg.RequestsPerSec = v
	}
	if v := getEnvInt("RATE_LIMIT_BURST", 0); v > 0 {
		cfg.Burst = v
	}
	if v := getEnvFloat("WS_INPUTS_PER_SEC", 0); v > 0 {
		cfg.InputsPerSec = v
	}

	return cfg
}

// =============================================================================
// ROOM & LOBBY CONFIGURATION
// =============================================================================

// RoomConfig holds lifecycle settings shared by every room.
type RoomConfig struct {
	TickRate         int
	CountdownSeconds float64
	EndDelaySeconds  float64
	IdleGraceSeconds float64
	SuccessorTimeout time.Duration
	Chain            bool
	InboxSize        int
	MaxHazards       int
}

// DefaultRoom mirrors game.DefaultRoomConfig.
func DefaultRoom() RoomConfig {
	def := game.DefaultRoomConfig()
	return RoomConfig{
		TickRate:         def.TickRate,
		CountdownSeconds: def.CountdownSeconds,
		EndDelaySeconds:  def.EndDelaySeconds,
		IdleGraceSeconds: def.IdleGraceSeconds,
		SuccessorTimeout: def.SuccessorTimeout,
		Chain:            def.Chain,
		InboxSize:        def.InboxSize,
		MaxHazards:       def.Hazards.MaxActive,
	}
}

// RoomFromEnv returns room configuration with environment variable overrides.
func RoomFromEnv() RoomConfig {
	cfg := DefaultRoom()

	if v := getEnvInt("TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvFloat("COUNTDOWN_SECONDS", -1); v >= 0 {
		cfg.CountdownSeconds = v
	}
	if v := getEnvFloat("END_DELAY_SECONDS", -1); v >= 0 {
		cfg.EndDelaySeconds = v
	}
	if v := getEnvFloat("IDLE_GRACE_SECONDS", -1); v >= 0 {
		cfg.IdleGraceSeconds = v
	}
	cfg.SuccessorTimeout = getEnvDuration("SUCCESSOR_TIMEOUT", cfg.SuccessorTimeout)
	cfg.Chain = getEnvBool("CHAIN_ROOMS", cfg.Chain)
	if v := getEnvInt("ROOM_INBOX_SIZE", 0); v > 0 {
		cfg.InboxSize = v
	}
	if v := getEnvInt("MAX_HAZARDS", 0); v > 0 {
		cfg.MaxHazards = v
	}

	return cfg
}

// LobbyConfig holds room registry settings.
type LobbyConfig struct {
	MaxRooms    int
	DefaultMode string
}

// DefaultLobby returns the default lobby configuration.
func DefaultLobby() LobbyConfig {
	return LobbyConfig{
		MaxRooms:    200,
		DefaultMode: game.ModeHarvest,
	}
}

// LobbyFromEnv returns lobby configuration with environment variable overrides.
func LobbyFromEnv() LobbyConfig {
	cfg := DefaultLobby()

	if v := getEnvInt("MAX_ROOMS", 0); v > 0 {
		cfg.MaxRooms = v
	}
	if v := os.Getenv("DEFAULT_MODE"); v != "" {
		cfg.DefaultMode = v
	}

	return cfg
}

// =============================================================================
// AI DIRECTOR CONFIGURATION
// =============================================================================

// AIConfig holds the AI collaborator settings. An empty endpoint runs the
// director on its fallback rotation only.
type AIConfig struct {
	Enabled           bool
	Endpoint          string
	APIKey            string
	Timeout           time.Duration
	Interval          time.Duration
	RequestsPerSecond float64
}

// DefaultAI returns the default AI configuration.
func DefaultAI() AIConfig {
	return AIConfig{
		Enabled:           true,
		Timeout:           4 * time.Second,
		Interval:          8 * time.Second,
		RequestsPerSecond: 2,
	}
}

// AIFromEnv returns AI configuration with environment variable overrides.
func AIFromEnv() AIConfig {
	cfg := DefaultAI()

	cfg.Enabled = getEnvBool("AI_ENABLED", cfg.Enabled)
	cfg.Endpoint = os.Getenv("AI_ENDPOINT")
	cfg.APIKey = os.Getenv("AI_API_KEY")
	cfg.Timeout = getEnvDuration("AI_TIMEOUT", cfg.Timeout)
	cfg.Interval = getEnvDuration("AI_INTERVAL", cfg.Interval)
	if v := getEnvFloat("AI_RPS", 0); v > 0 {
		cfg.RequestsPerSecond = v
	}

	return cfg
}

// =============================================================================
// PERSISTENCE CONFIGURATION
// =============================================================================

// PersistenceConfig holds the result sinks. Each sink is off when its
// address is empty.
type PersistenceConfig struct {
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string
	QueueSize     int
	JournalPath   string // Room event JSONL; empty keeps events in memory
}

// DefaultPersistence returns the default persistence configuration.
func DefaultPersistence() PersistenceConfig {
	return PersistenceConfig{
		SQLitePath:  "matches.db",
		QueueSize:   128,
		JournalPath: "events.jsonl",
	}
}

// PersistenceFromEnv returns persistence configuration with environment variable overrides.
func PersistenceFromEnv() PersistenceConfig {
	cfg := DefaultPersistence()

	if v, ok := os.LookupEnv("SQLITE_PATH"); ok {
		cfg.SQLitePath = v
	}
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RedisChannel = os.Getenv("REDIS_CHANNEL")
	if v := getEnvInt("RESULT_QUEUE_SIZE", 0); v > 0 {
		cfg.QueueSize = v
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.JournalPath = v
	}

	return cfg
}

// =============================================================================
// DEBUG SERVER CONFIGURATION
// =============================================================================

// DebugConfig holds the pprof/metrics server settings.
type DebugConfig struct {
	Enabled    bool
	ListenAddr string // Localhost only unless ALLOW_DEBUG_EXTERNAL=true
}

// DefaultDebug returns the default debug configuration.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugFromEnv returns debug configuration with environment variable overrides.
func DebugFromEnv() DebugConfig {
	cfg := DefaultDebug()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	return cfg
}

// =============================================================================
// MODE TUNING (YAML)
// =============================================================================

// TuningFile is the layout of the optional YAML tuning file. Omitted fields
// keep their defaults.
type TuningFile struct {
	Modes   game.Tuning        `yaml:"modes"`
	Hazards game.HazardConfig  `yaml:"hazards"`
	Physics game.PhysicsConfig `yaml:"physics"`
}

// DefaultTuningFile returns the built-in tuning
func DefaultTuningFile() TuningFile {
	return TuningFile{
		Modes:   game.DefaultTuning(),
		Hazards: game.DefaultHazards(),
		Physics: game.DefaultPhysics(),
	}
}

// LoadTuning reads the YAML file at path over the defaults. An empty path
// returns the defaults. Unknown keys are an error so typos do not pass silently.
func LoadTuning(path string) (TuningFile, error) {
	t := DefaultTuningFile()
	if path == "" {
		return t, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return t, fmt.Errorf("open tuning file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return DefaultTuningFile(), fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return DefaultTuningFile(), fmt.Errorf("tuning file %s: %w", path, err)
	}
	return t, nil
}

// Validate rejects player bounds the room lifecycle cannot run with
func (t TuningFile) Validate() error {
	bounds := map[string][2]int{
		game.ModeHarvest:  {t.Modes.Harvest.MinPlayers, t.Modes.Harvest.MaxPlayers},
		game.ModeDynamite: {t.Modes.Dynamite.MinPlayers, t.Modes.Dynamite.MaxPlayers},
		game.ModeSoccer:   {t.Modes.Soccer.MinPlayers, t.Modes.Soccer.MaxPlayers},
		game.ModeSurvival: {t.Modes.Survival.MinPlayers, t.Modes.Survival.MaxPlayers},
	}
	for mode, b := range bounds {
		if b[0] < 1 || b[1] < b[0] {
			return fmt.Errorf("%s: invalid player bounds %d..%d", mode, b[0], b[1])
		}
	}
	if t.Physics.Friction <= 0 || t.Physics.Friction > 1 {
		return fmt.Errorf("physics: friction %.2f outside (0, 1]", t.Physics.Friction)
	}
	return nil
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server      ServerConfig
	Room        RoomConfig
	Lobby       LobbyConfig
	AI          AIConfig
	Persistence PersistenceConfig
	Debug       DebugConfig
	TuningPath  string
	Tuning      TuningFile
}

// Load returns the complete configuration with environment overrides. The
// tuning file (MODES_FILE) is the only part that can fail.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		Server:      ServerFromEnv(),
		Room:        RoomFromEnv(),
		Lobby:       LobbyFromEnv(),
		AI:          AIFromEnv(),
		Persistence: PersistenceFromEnv(),
		Debug:       DebugFromEnv(),
		TuningPath:  os.Getenv("MODES_FILE"),
	}
	tuning, err := LoadTuning(cfg.TuningPath)
	cfg.Tuning = tuning
	return cfg, err
}

// GameRoomConfig combines the room section with the tuning file
func (c AppConfig) GameRoomConfig() game.RoomConfig {
	hazards := c.Tuning.Hazards
	if c.Room.MaxHazards > 0 {
		hazards.MaxActive = c.Room.MaxHazards
	}
	return game.RoomConfig{
		TickRate:         c.Room.TickRate,
		CountdownSeconds: c.Room.CountdownSeconds,
		EndDelaySeconds:  c.Room.EndDelaySeconds,
		IdleGraceSeconds: c.Room.IdleGraceSeconds,
		SuccessorTimeout: c.Room.SuccessorTimeout,
		Chain:            c.Room.Chain,
		InboxSize:        c.Room.InboxSize,
		Physics:          c.Tuning.Physics,
		Hazards:          hazards,
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
