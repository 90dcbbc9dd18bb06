package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/websocket"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LOBBY"

const (
	KeyServerAddr            = "server.addr"
	KeyServerReadTimeout     = "server.read_timeout"
	KeyServerWriteTimeout    = "server.write_timeout"
	KeyServerShutdownTimeout = "server.shutdown_timeout"
	KeyWSWriteWait           = "websocket.write_wait"
	KeyWSPongWait            = "websocket.pong_wait"
	KeyWSPingPeriod          = "websocket.ping_period"
	KeyWSMaxMessageSize      = "websocket.max_message_size"
	KeyWSSendBuffer          = "websocket.send_buffer"
	KeyCORSAllowedOrigins    = "cors.allowed_origins"
	KeyLogLevel              = "log.level"
	KeyLogFile               = "log.file"
	KeyLogPretty             = "log.pretty"
)

type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	File   string
	Pretty bool
}

type Config struct {
	Server         Server
	WebSocket      websocket.Config
	AllowedOrigins []string
	Log            Log
}

// New returns a viper instance with defaults and LOBBY_* environment binding, e.g.
// LOBBY_SERVER_ADDR overrides server.addr.
func New() *viper.Viper {
	v := viper.New()
	ws := websocket.DefaultConfig()

	v.SetDefault(KeyServerAddr, ":8080")
	v.SetDefault(KeyServerReadTimeout, 15*time.Second)
	v.SetDefault(KeyServerWriteTimeout, 15*time.Second)
	v.SetDefault(KeyServerShutdownTimeout, 10*time.Second)
	v.SetDefault(KeyWSWriteWait, ws.WriteWait)
	v.SetDefault(KeyWSPongWait, ws.PongWait)
	v.SetDefault(KeyWSPingPeriod, ws.PingPeriod)
	v.SetDefault(KeyWSMaxMessageSize, ws.MaxMessageSize)
	v.SetDefault(KeyWSSendBuffer, ws.SendBuffer)
	v.SetDefault(KeyCORSAllowedOrigins, []string{"*"})
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogPretty, false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none are given. A
// missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the optional config file into v and decodes the result. An empty path skips the
// file; a named file that does not exist is an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:            v.GetString(KeyServerAddr),
			ReadTimeout:     v.GetDuration(KeyServerReadTimeout),
			WriteTimeout:    v.GetDuration(KeyServerWriteTimeout),
			ShutdownTimeout: v.GetDuration(KeyServerShutdownTimeout),
		},
		WebSocket: websocket.Config{
			WriteWait:      v.GetDuration(KeyWSWriteWait),
			PongWait:       v.GetDuration(KeyWSPongWait),
			PingPeriod:     v.GetDuration(KeyWSPingPeriod),
			MaxMessageSize: v.GetInt64(KeyWSMaxMessageSize),
			SendBuffer:     v.GetInt(KeyWSSendBuffer),
			AllowedOrigins: v.GetStringSlice(KeyCORSAllowedOrigins),
		},
		AllowedOrigins: v.GetStringSlice(KeyCORSAllowedOrigins),
		Log: Log{
			Level:  v.GetString(KeyLogLevel),
			File:   v.GetString(KeyLogFile),
			Pretty: v.GetBool(KeyLogPretty),
		},
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is empty")
	}
	if c.WebSocket.PingPeriod <= 0 || c.WebSocket.PongWait <= 0 || c.WebSocket.WriteWait <= 0 {
		return errors.New("websocket timings must be positive")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket.ping_period (%s) must be less than websocket.pong_wait (%s)",
			c.WebSocket.PingPeriod, c.WebSocket.PongWait)
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("websocket.max_message_size must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return errors.New("websocket.send_buffer must be positive")
	}
	return nil
}
