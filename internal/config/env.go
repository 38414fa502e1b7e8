package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3900"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
}

type StoreEnv struct {
	DBPath string `envconfig:"DB_PATH" default:".agentq/agentq.db"`
}

type RunnerEnv struct {
	ScratchRoot    string        `envconfig:"SCRATCH_ROOT" default:""` // empty means os.TempDir()
	RunTimeout     time.Duration `envconfig:"RUN_TIMEOUT" default:"15m"`
	KillGrace      time.Duration `envconfig:"KILL_GRACE" default:"10s"`
	MaxConcurrent  int           `envconfig:"MAX_CONCURRENT" default:"4"`
	WorkerCount    int           `envconfig:"WORKER_COUNT" default:"4"`
	ClaimInterval  time.Duration `envconfig:"CLAIM_INTERVAL" default:"500ms"`
	SeedConfigPath string        `envconfig:"SEED_CONFIG" default:""`
}

type AdapterEnv struct {
	ClaudeBin   string `envconfig:"CLAUDE_BIN" default:""`
	GeminiBin   string `envconfig:"GEMINI_BIN" default:""`
	CodexBin    string `envconfig:"CODEX_BIN" default:""`
	OpencodeBin string `envconfig:"OPENCODE_BIN" default:""`
}

type ArchiveEnv struct {
	Type     string `envconfig:"ARCHIVE_TYPE" default:"local"`
	BaseDir  string `envconfig:"ARCHIVE_BASE_DIR" default:".agentq/archive"`
	S3Bucket string `envconfig:"ARCHIVE_S3_BUCKET"`
	S3Prefix string `envconfig:"ARCHIVE_S3_PREFIX" default:"agentq/"`
	S3Region string `envconfig:"ARCHIVE_S3_REGION" default:"us-east-1"`

	SweepInterval time.Duration `envconfig:"ARCHIVE_SWEEP_INTERVAL" default:"1h"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@example.com"`
}

type Env struct {
	BaseEnv
	StoreEnv
	RunnerEnv
	AdapterEnv
	ArchiveEnv
	VAPIDEnv
}

const namespace = "AGENTQ"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
