package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`
	Version     string `env:"VERSION,default=1.0.0"`

	JWTSecret   string        `env:"JWT_SECRET,required=true"`
	JWTIssuer   string        `env:"JWT_ISSUER,default=todo-app"`
	JWTAudience string        `env:"JWT_AUDIENCE,default=todo-app-users"`
	TokenTTL    time.Duration `env:"TOKEN_TTL,default=168h"`

	StorageDriver   string `env:"STORAGE_DRIVER,default=memory"`
	DatabaseURL     string `env:"DATABASE_URL"`
	MongoDBURI      string `env:"MONGODB_URI"`
	MongoDBDatabase string `env:"MONGODB_DATABASE,default=todoapp"`

	HeartbeatTimeout      time.Duration `env:"HEARTBEAT_TIMEOUT,default=120s"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL,default=30s"`
	NotificationWorkers   int           `env:"NOTIFICATION_WORKERS,default=4"`
	NotificationQueueSize int           `env:"NOTIFICATION_QUEUE_SIZE,default=1024"`
	SendBufferSize        int           `env:"SEND_BUFFER_SIZE,default=64"`

	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
	AuthRateLimit  int    `env:"AUTH_RATE_LIMIT,default=10"`

	SMTPHost      string `env:"SMTP_HOST,default=smtp.gmail.com"`
	SMTPPort      int    `env:"SMTP_PORT,default=587"`
	SMTPUsername  string `env:"SMTP_USERNAME"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	SMTPFromEmail string `env:"SMTP_FROM_EMAIL,default=noreply@todoapp.com"`
	SMTPFromName  string `env:"SMTP_FROM_NAME,default=Todo App"`

	ShareLinkBase string `env:"SHARE_LINK_BASE,default=todoapp://tasks/"`
}

func (s Settings) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(s.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	return origins
}

// loadSettings reads the optional YAML file at configPath and overlays the
// process environment on top of it. File keys map to variable names by
// upper-casing them and replacing dots with underscores, so `jwt.secret`
// sets JWT_SECRET.
func loadSettings(configPath string, environ []string) (Settings, error) {
	envSet := env.EnvSet{}

	if configPath != "" {
		fileSet, err := readSettingsFile(configPath)
		if err != nil {
			return Settings{}, err
		}

		envSet = fileSet
	}

	processSet, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	for key, value := range processSet {
		envSet[key] = value
	}

	var settings Settings
	if err := env.Unmarshal(envSet, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	return settings, nil
}

func readSettingsFile(path string) (env.EnvSet, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
	}

	envSet := env.EnvSet{}
	for key, value := range k.All() {
		name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))

		switch v := value.(type) {
		case []any:
			items := make([]string, len(v))
			for i, item := range v {
				items[i] = fmt.Sprint(item)
			}
			envSet[name] = strings.Join(items, ",")
		default:
			envSet[name] = fmt.Sprint(v)
		}
	}

	return envSet, nil
}
