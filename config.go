package recorderd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrConfig is wrapped by every configuration validation failure.
var ErrConfig = errors.New("configuration error")

const (
	DefaultDataDirectory = "."
	DefaultSubscribePort = 2138
	DefaultRequestPort   = 2139
	DefaultWorkers       = 1
	DefaultQueue         = "fifo"

	DefaultLogDirectory = "log"
	DefaultLogFile      = "recorder.log"
	DefaultLogSize      = 10000
	DefaultLogCount     = 1
	DefaultLogLevel     = "error"
)

type MinerConfig struct {
	DataDirectory   string             `json:"data_directory"`
	ClientPublicKey string             `json:"client_public_key"`
	ClientSecretKey string             `json:"client_secret_key"`
	Connections     []ConnectionConfig `json:"connections"`
	Logging         LoggingConfig      `json:"logging"`
	Tracing         TracingConfig      `json:"tracing"`
}

// ConnectionConfig describes one remote service: a publisher of jobs and a
// request endpoint accepting found nonces.
type ConnectionConfig struct {
	Number        int    `json:"number"`
	Enable        bool   `json:"enable"`
	Workers       int    `json:"workers"`
	UseIPv4       bool   `json:"use_ipv4"`
	Host          string `json:"host"`
	PublicKey     string `json:"public_key"`
	SubscribePort int    `json:"subscribe_port"`
	RequestPort   int    `json:"request_port"`
	Queue         string `json:"queue"`
}

type LoggingConfig struct {
	Directory string `json:"directory"`
	File      string `json:"file"`
	Size      int64  `json:"size"`
	Count     int    `json:"count"`
	Console   bool   `json:"console"`
	Level     string `json:"level"`
}

type TracingConfig struct {
	ServerAddress string `json:"server_address"`
	Identity      string `json:"identity"`
	Secret        []byte `json:"secret"`
}

// ReadConfig loads a configuration file, choosing the format from its
// extension, then fills defaults and validates the result.
func ReadConfig(filename string, config *MinerConfig) error {
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		err = ReadJSONConfig(filename, config)
	default:
		err = ReadLuaConfig(filename, config)
	}
	if err != nil {
		return err
	}
	config.SetDefaults()
	return config.Validate()
}

func ReadJSONConfig(filename string, config interface{}) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, config); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}

func (c *MinerConfig) SetDefaults() {
	c.DataDirectory = strings.TrimSpace(c.DataDirectory)
	if c.DataDirectory == "" {
		c.DataDirectory = DefaultDataDirectory
	}
	for i := range c.Connections {
		cn := &c.Connections[i]
		if cn.Number == 0 {
			cn.Number = i + 1
		}
		if cn.Workers <= 0 {
			cn.Workers = DefaultWorkers
		}
		if cn.SubscribePort <= 0 {
			cn.SubscribePort = DefaultSubscribePort
		}
		if cn.RequestPort <= 0 {
			cn.RequestPort = DefaultRequestPort
		}
		if cn.Queue == "" {
			cn.Queue = DefaultQueue
		}
	}

	lg := &c.Logging
	lg.Directory = strings.TrimSpace(lg.Directory)
	if lg.Directory == "" {
		lg.Directory = DefaultLogDirectory
	}
	if !filepath.IsAbs(lg.Directory) {
		lg.Directory = filepath.Join(c.DataDirectory, lg.Directory)
	}
	lg.File = strings.TrimSpace(lg.File)
	if lg.File == "" {
		lg.File = DefaultLogFile
	}
	if lg.Size <= 0 {
		lg.Size = DefaultLogSize
	}
	if lg.Count <= 0 {
		lg.Count = DefaultLogCount
	}
	if lg.Level == "" {
		lg.Level = DefaultLogLevel
	}
}

func (c *MinerConfig) Validate() error {
	enabled := 0
	for _, cn := range c.Connections {
		if !cn.Active() {
			continue
		}
		enabled++
		if cn.Host == "" {
			return fmt.Errorf("%w: connection %d: missing host", ErrConfig, cn.Number)
		}
		if _, err := DecodeKey(cn.PublicKey); err != nil {
			return fmt.Errorf("%w: connection %d: public_key: %v", ErrConfig, cn.Number, err)
		}
		if cn.Queue != "fifo" && cn.Queue != "latest" {
			return fmt.Errorf("%w: connection %d: queue %q is not fifo or latest", ErrConfig, cn.Number, cn.Queue)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("%w: no enabled connections", ErrConfig)
	}
	if (c.ClientPublicKey == "") != (c.ClientSecretKey == "") {
		return fmt.Errorf("%w: client_public_key and client_secret_key must be set together", ErrConfig)
	}
	if c.ClientPublicKey != "" {
		if _, err := DecodeKey(c.ClientPublicKey); err != nil {
			return fmt.Errorf("%w: client_public_key: %v", ErrConfig, err)
		}
		if _, err := DecodeKey(c.ClientSecretKey); err != nil {
			return fmt.Errorf("%w: client_secret_key: %v", ErrConfig, err)
		}
	}
	return nil
}

// Active reports whether the connection should be opened.
func (cn ConnectionConfig) Active() bool {
	return cn.Enable && cn.PublicKey != ""
}

// SubscribeAddress is the publisher endpoint, e.g. tcp://host:2138.
func (cn ConnectionConfig) SubscribeAddress() string {
	return fmt.Sprintf("tcp://%s:%d", cn.Host, cn.SubscribePort)
}

func (cn ConnectionConfig) RequestAddress() string {
	return fmt.Sprintf("tcp://%s:%d", cn.Host, cn.RequestPort)
}

// DecodeKey decodes a 32-byte curve key written as 64 hex digits.
func DecodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key length %d, want 32", len(key))
	}
	return key, nil
}
