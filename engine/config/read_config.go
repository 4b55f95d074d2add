package config

import (
	"encoding/json"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/gwlog"
)

const (
	_DEFAULT_CONFIG_FILE = "gostream.ini"
	_DEFAULT_LOG_LEVEL   = "debug"
	_DEFAULT_LISTEN_ADDR = "0.0.0.0:7788"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	serverConfig   *Config
	configLock     sync.Mutex
)

// ServerConfig defines fields of the [server] section
type ServerConfig struct {
	ListenAddr    string
	KCPAddr       string
	WebSocketAddr string
	HTTPAddr      string
	LogFile       string
	LogStderr     bool
	LogLevel      string
	GoMaxProcs    int
	TickInterval  time.Duration
}

// StreamingConfig defines the streaming, migration, colshape and sync worker knobs
type StreamingConfig struct {
	MaxStreamingPeds       int
	MaxStreamingObjects    int
	MaxStreamingVehicles   int
	StreamerThreadCount    int
	StreamingTickRate      time.Duration
	StreamingDistance      float32
	MigrationThreadCount   int
	MigrationTickRate      time.Duration
	MigrationDistance      float32
	ColShapeTickRate       time.Duration
	SyncReceiveThreadCount int
	SyncSendThreadCount    int
}

// EventProtectionConfig defines the client event rate protection
type EventProtectionConfig struct {
	Enabled              bool
	CleanupInterval      time.Duration
	MaxEventsPerInterval int
	CustomEventMax       map[string]int
}

// RPCConfig defines fields of the [rpc] section
type RPCConfig struct {
	Timeout time.Duration
}

// Config is the whole server configuration
type Config struct {
	Server          ServerConfig
	Streaming       StreamingConfig
	EventProtection EventProtectionConfig
	RPC             RPCConfig
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   _DEFAULT_LISTEN_ADDR,
			LogFile:      "streamserver.log",
			LogStderr:    true,
			LogLevel:     _DEFAULT_LOG_LEVEL,
			TickInterval: consts.SERVER_TICK_INTERVAL,
		},
		Streaming: StreamingConfig{
			MaxStreamingPeds:       128,
			MaxStreamingObjects:    120,
			MaxStreamingVehicles:   128,
			StreamerThreadCount:    1,
			StreamingTickRate:      100 * time.Millisecond,
			StreamingDistance:      400,
			MigrationThreadCount:   1,
			MigrationTickRate:      100 * time.Millisecond,
			MigrationDistance:      150,
			ColShapeTickRate:       200 * time.Millisecond,
			SyncReceiveThreadCount: 1,
			SyncSendThreadCount:    1,
		},
		EventProtection: EventProtectionConfig{
			Enabled:              false,
			CleanupInterval:      5000 * time.Millisecond,
			MaxEventsPerInterval: 20,
			CustomEventMax:       map[string]int{},
		},
		RPC: RPCConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// SetConfigFile sets the config file path (gostream.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the server config, reading the config file on first use
func Get() *Config {
	configLock.Lock()
	defer configLock.Unlock()
	if serverConfig == nil {
		gwlog.Infof("Using config file: %s", configFilePath)
		cfg, err := Load(configFilePath)
		checkConfigError(err, "")
		serverConfig = cfg
	}
	return serverConfig
}

// Reload forces the server to reload the whole config
func Reload() *Config {
	configLock.Lock()
	serverConfig = nil
	configLock.Unlock()

	return Get()
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

// Load reads a config file on top of the defaults
func Load(file string) (*Config, error) {
	iniFile, err := ini.Load(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", file)
	}
	return parse(iniFile)
}

// LoadBytes reads config content on top of the defaults
func LoadBytes(data []byte) (*Config, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "load config data")
	}
	return parse(iniFile)
}

func parse(iniFile *ini.File) (cfg *Config, err error) {
	cfg = Default()
	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		switch secName {
		case ini.DefaultSection:
			if len(sec.Keys()) > 0 {
				err = errors.Errorf("keys outside of any section: %v", sec.KeyStrings())
			}
		case "server":
			err = readServerConfig(sec, &cfg.Server)
		case "streaming":
			err = readStreamingConfig(sec, &cfg.Streaming)
		case "event_protection":
			err = readEventProtectionConfig(sec, &cfg.EventProtection)
		case "event_protection.custom":
			for _, key := range sec.Keys() {
				cfg.EventProtection.CustomEventMax[key.Name()] = key.MustInt(cfg.EventProtection.MaxEventsPerInterval)
			}
		case "rpc":
			err = readRPCConfig(sec, &cfg.RPC)
		default:
			gwlog.Errorf("unknown section: %s", sec.Name())
		}
		if err != nil {
			return nil, err
		}
	}

	if err = validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func millis(key *ini.Key, def time.Duration) time.Duration {
	return time.Millisecond * time.Duration(key.MustInt(int(def/time.Millisecond)))
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) error {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "listen_addr" {
			sc.ListenAddr = key.MustString(sc.ListenAddr)
		} else if name == "kcp_addr" {
			sc.KCPAddr = key.MustString(sc.KCPAddr)
		} else if name == "websocket_addr" {
			sc.WebSocketAddr = key.MustString(sc.WebSocketAddr)
		} else if name == "http_addr" {
			sc.HTTPAddr = key.MustString(sc.HTTPAddr)
		} else if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else if name == "gomaxprocs" {
			sc.GoMaxProcs = key.MustInt(sc.GoMaxProcs)
		} else if name == "tick_interval_ms" {
			sc.TickInterval = millis(key, sc.TickInterval)
		} else {
			return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return nil
}

func readStreamingConfig(sec *ini.Section, sc *StreamingConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "max_streaming_peds":
			sc.MaxStreamingPeds = key.MustInt(sc.MaxStreamingPeds)
		case "max_streaming_objects":
			sc.MaxStreamingObjects = key.MustInt(sc.MaxStreamingObjects)
		case "max_streaming_vehicles":
			sc.MaxStreamingVehicles = key.MustInt(sc.MaxStreamingVehicles)
		case "streamer_thread_count":
			sc.StreamerThreadCount = key.MustInt(sc.StreamerThreadCount)
		case "streaming_tick_rate":
			sc.StreamingTickRate = millis(key, sc.StreamingTickRate)
		case "streaming_distance":
			sc.StreamingDistance = float32(key.MustFloat64(float64(sc.StreamingDistance)))
		case "migration_thread_count":
			sc.MigrationThreadCount = key.MustInt(sc.MigrationThreadCount)
		case "migration_tick_rate":
			sc.MigrationTickRate = millis(key, sc.MigrationTickRate)
		case "migration_distance":
			sc.MigrationDistance = float32(key.MustFloat64(float64(sc.MigrationDistance)))
		case "col_shape_tick_rate":
			sc.ColShapeTickRate = millis(key, sc.ColShapeTickRate)
		case "sync_receive_thread_count":
			sc.SyncReceiveThreadCount = key.MustInt(sc.SyncReceiveThreadCount)
		case "sync_send_thread_count":
			sc.SyncSendThreadCount = key.MustInt(sc.SyncSendThreadCount)
		default:
			return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return nil
}

func readEventProtectionConfig(sec *ini.Section, ec *EventProtectionConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "enabled":
			ec.Enabled = key.MustBool(ec.Enabled)
		case "cleanup_interval":
			ec.CleanupInterval = millis(key, ec.CleanupInterval)
		case "max_events_per_interval":
			ec.MaxEventsPerInterval = key.MustInt(ec.MaxEventsPerInterval)
		default:
			return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return nil
}

func readRPCConfig(sec *ini.Section, rc *RPCConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "timeout_ms":
			rc.Timeout = millis(key, rc.Timeout)
		default:
			return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return nil
}

func validateConfig(cfg *Config) error {
	sc := &cfg.Streaming
	if sc.StreamerThreadCount <= 0 || sc.MigrationThreadCount <= 0 {
		return errors.Errorf("thread counts must be positive: streamer=%d migration=%d", sc.StreamerThreadCount, sc.MigrationThreadCount)
	}
	if sc.SyncReceiveThreadCount <= 0 || sc.SyncSendThreadCount <= 0 {
		return errors.Errorf("sync thread counts must be positive: receive=%d send=%d", sc.SyncReceiveThreadCount, sc.SyncSendThreadCount)
	}
	if sc.StreamingTickRate <= 0 || sc.MigrationTickRate <= 0 || sc.ColShapeTickRate <= 0 {
		return errors.Errorf("tick rates must be positive")
	}
	if sc.StreamingDistance <= 0 {
		return errors.Errorf("streaming_distance must be positive: %v", sc.StreamingDistance)
	}
	if cfg.Server.TickInterval <= 0 {
		return errors.Errorf("tick_interval_ms must be positive")
	}
	ec := &cfg.EventProtection
	if ec.Enabled && (ec.CleanupInterval <= 0 || ec.MaxEventsPerInterval < 0) {
		return errors.Errorf("invalid event protection: cleanup_interval=%s max_events_per_interval=%d", ec.CleanupInterval, ec.MaxEventsPerInterval)
	}
	if cfg.RPC.Timeout <= 0 {
		return errors.Errorf("rpc timeout must be positive")
	}
	return nil
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		gwlog.Panicf("read config error: %s", msg)
	}
}
