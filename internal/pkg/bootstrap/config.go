// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是整个服务的配置树，从 yaml 文件加载，部分字段可被环境变量覆盖。
type Config struct {
	App struct {
		FeatureFlags struct {
			// EnableRedisFastPath 打开后，claim 请求先经过 Redis 预检，
			// 明显售罄的请求不再进入数据库事务。
			EnableRedisFastPath bool `yaml:"enable_redis_fast_path"`
			// EnableAutoClaim 打开后，里程碑事件会触发自动发奖。
			EnableAutoClaim bool `yaml:"enable_auto_claim"`
		} `yaml:"feature_flags"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers string `yaml:"brokers"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"zookeeper"`
		Nacos struct {
			Enabled     bool   `yaml:"enabled"`
			ServerAddrs string `yaml:"server_addrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`
}

var currentConfig atomic.Pointer[Config]

// Init 加载配置文件并设置为全局配置。
// 路径默认 configs/config.yaml，可用 CONFIG_PATH 覆盖。
func Init() error {
	path := getEnv("CONFIG_PATH", "configs/config.yaml")

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrapf(err, "failed to parse config file %s", path)
		}
	case os.IsNotExist(err):
		// 没有配置文件时使用默认值 + 环境变量，方便本地开发
	default:
		return errors.Wrapf(err, "failed to read config file %s", path)
	}

	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
	return nil
}

// GetCurrentConfig 返回当前生效的配置。必须在 Init 之后调用。
func GetCurrentConfig() *Config {
	cfg := currentConfig.Load()
	if cfg == nil {
		panic("bootstrap.Init must be called before GetCurrentConfig")
	}
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/ecoquiz?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addrs = "localhost:6379"
	cfg.Infra.Kafka.Brokers = "localhost:9092"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Zookeeper.Addrs = "localhost:2181"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.Mysql.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		cfg.Infra.Redis.Addrs = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = v
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("ZOOKEEPER_ADDRS"); ok {
		cfg.Infra.Zookeeper.Addrs = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.Enabled = true
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.Nacos.Group = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
