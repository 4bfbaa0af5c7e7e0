package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Task     TaskConfig     `mapstructure:"task"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // 秒
	WriteTimeout int    `mapstructure:"write_timeout"` // 秒
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN 返回 postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// ChainConfig 单链配置
type ChainConfig struct {
	ChainType     string                    `mapstructure:"chain_type"`    // 链类型 (ethereum, polygon, etc.)
	ChainId       int64                     `mapstructure:"chain_id"`      // 链ID
	RpcUrl        string                    `mapstructure:"rpc_url"`       // RPC节点URL，为空时链适配器不可用
	Contracts     map[string]ContractConfig `mapstructure:"contracts"`     // 该链上的合约配置
	ReadTimeout   int                       `mapstructure:"read_timeout"`  // 单次链上读取超时（秒）
	PollInterval  int                       `mapstructure:"poll_interval"` // 事件轮询间隔（秒）
	BatchSize     int64                     `mapstructure:"batch_size"`    // 每批拉取的区块数
	Confirmations int64                     `mapstructure:"confirmations"` // 落后链头的确认区块数
}

// ReadTimeoutDuration 链上读取超时
func (c ChainConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// PollIntervalDuration 事件轮询间隔
func (c ChainConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// ContractConfig 单个合约配置
type ContractConfig struct {
	Address  string `mapstructure:"address"`   // 合约地址
	ABIPath  string `mapstructure:"abi_path"`  // ABI文件路径，为空时使用内置ABI
	Enabled  bool   `mapstructure:"enabled"`   // 是否启用此合约
	BlockNum int64  `mapstructure:"block_num"` // 合约部署区块号
}

type TaskConfig struct {
	VerifyInterval int `mapstructure:"verify_interval"` // 秒
	AuditInterval  int `mapstructure:"audit_interval"`  // 秒
	RetryInterval  int `mapstructure:"retry_interval"`  // 失败链上事件重试间隔（秒）
	Workers        int `mapstructure:"workers"`         // 协程池大小
	GracePeriod    int `mapstructure:"grace_period"`    // 待确认投资的最短等待时间（秒）
	BatchSize      int `mapstructure:"batch_size"`      // 每次任务处理的最大记录数
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
	TTL     int    `mapstructure:"ttl"` // 秒
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.Config 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.Config 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.Config 接口
func (l LogConfig) GetFile() string {
	return l.File
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "infrachain")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "infrachain.db")
	v.SetDefault("database.max_open_conns", 30)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("chain.chain_type", "ethereum")
	v.SetDefault("chain.read_timeout", 10)
	v.SetDefault("chain.poll_interval", 15)
	v.SetDefault("chain.batch_size", 500)
	v.SetDefault("chain.confirmations", 2)
	v.SetDefault("task.verify_interval", 60)
	v.SetDefault("task.audit_interval", 600)
	v.SetDefault("task.retry_interval", 120)
	v.SetDefault("task.workers", 8)
	v.SetDefault("task.grace_period", 30)
	v.SetDefault("task.batch_size", 200)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 加载配置。configFile 为空时按默认路径查找 config.yaml。
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/infrachain")
	}

	setDefaults(v)

	// 自动读取环境变量，例如 INFRACHAIN_DATABASE_HOST
	v.SetEnvPrefix("INFRACHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return errors.New("database.host and database.dbname are required for postgres")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Chain.ReadTimeout <= 0 || c.Chain.PollInterval <= 0 || c.Chain.BatchSize <= 0 {
		return errors.New("chain.read_timeout, chain.poll_interval and chain.batch_size must be positive")
	}
	if c.Chain.Confirmations < 0 {
		return errors.New("chain.confirmations must not be negative")
	}
	if c.Task.VerifyInterval <= 0 || c.Task.AuditInterval <= 0 || c.Task.RetryInterval <= 0 ||
		c.Task.Workers <= 0 || c.Task.BatchSize <= 0 {
		return errors.New("task intervals and workers must be positive")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}
