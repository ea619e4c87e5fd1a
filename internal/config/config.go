package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Milvus    MilvusConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Wiki      WikiConfig
	GPU       GPUConfig
	Embedding EmbeddingConfig
	Backends  BackendsConfig
	Retry     RetryConfig
	Sync      SyncConfig
}

type MilvusConfig struct {
	Host string
	Port string
}

// Address Milvus连接地址
func (c MilvusConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type RedisConfig struct {
	Host     string
	Port     string
	Login    string
	Password string
	DB       int
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// DSN 拼接gorm的Postgres连接串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// WikiConfig BookStack（MySQL）数据源配置
type WikiConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	BaseURL  string
}

// DSN 拼接gorm的MySQL连接串
func (c WikiConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type GPUConfig struct {
	LockPath       string
	AcquireTimeout int // 秒，0表示无限等待
}

type EmbeddingConfig struct {
	RuntimeURL   string
	Dimension    int
	MaxSeqLength int
	BatchSize    int
	TextCap      int // 单条文本进入向量库前的长度上限
	Device       string
}

type BackendsConfig struct {
	MistralAPIKey  string
	MistralModel   string
	OpenAIAPIKey   string
	OpenAIModel    string
	DeepSeekAPIKey string
	DeepSeekModel  string
	DefaultOrder   []string
	Proxy          string
}

type RetryConfig struct {
	MaxAttempts    int
	BackoffSeconds int
}

type SyncConfig struct {
	RedisScanCount  int
	RedisBatchSize  int
	InsertChunkSize int
	EmbedBatchSize  int
	DedupThreshold  float64
}

var AppConfig *Config

func LoadConfig() error {
	// 原服务通过.env传递环境变量
	_ = godotenv.Load()

	// 设置默认值
	viper.SetDefault("milvus.host", "127.0.0.1")
	viper.SetDefault("milvus.port", "19530")
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.database", "frida")
	viper.SetDefault("wiki.host", "localhost")
	viper.SetDefault("wiki.port", "3306")
	viper.SetDefault("wiki.base_url", "http://wiki.freedom1.ru:8080")

	// GPU锁默认值
	viper.SetDefault("gpu.lock_path", "/shared/gpu.lock")
	viper.SetDefault("gpu.acquire_timeout", 0)

	// 向量化配置默认值
	viper.SetDefault("embedding.runtime_url", "http://localhost:8080")
	viper.SetDefault("embedding.dimension", 1024)
	viper.SetDefault("embedding.max_seq_length", 512)
	viper.SetDefault("embedding.batch_size", 16)
	viper.SetDefault("embedding.text_cap", 20000)
	viper.SetDefault("embedding.device", "cuda")

	// 模型后端默认值
	viper.SetDefault("backends.mistral_model", "mistral-large-latest")
	viper.SetDefault("backends.openai_model", "gpt-4o-mini")
	viper.SetDefault("backends.deepseek_model", "deepseek/deepseek-chat-v3-0324:free")
	viper.SetDefault("backends.default_order", []string{"mistral", "deepseek", "openai"})

	// 重试策略默认值
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.backoff_seconds", 2)

	// 同步任务默认值
	viper.SetDefault("sync.redis_scan_count", 10000)
	viper.SetDefault("sync.redis_batch_size", 1024)
	viper.SetDefault("sync.insert_chunk_size", 10000)
	viper.SetDefault("sync.embed_batch_size", 16)
	viper.SetDefault("sync.dedup_threshold", 1.0)

	// 读取环境变量
	viper.SetEnvPrefix("FRIDA")
	viper.AutomaticEnv()

	// 从环境变量读取
	if host := os.Getenv("MILVUS_HOST"); host != "" {
		viper.Set("milvus.host", host)
	}
	if port := os.Getenv("MILVUS_PORT"); port != "" {
		viper.Set("milvus.port", port)
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("redis.password", redisPassword)
	}
	if redisLogin := os.Getenv("REDIS_LOGIN"); redisLogin != "" {
		viper.Set("redis.login", redisLogin)
	}
	if pgHost := os.Getenv("POSTGRES_HOST"); pgHost != "" {
		viper.Set("postgres.host", pgHost)
	}
	if pgPort := os.Getenv("POSTGRES_PORT"); pgPort != "" {
		viper.Set("postgres.port", pgPort)
	}
	if pgUser := os.Getenv("POSTGRES_USER"); pgUser != "" {
		viper.Set("postgres.user", pgUser)
	}
	if pgPassword := os.Getenv("POSTGRES_PASSWORD"); pgPassword != "" {
		viper.Set("postgres.password", pgPassword)
	}
	if pgDB := os.Getenv("POSTGRES_DB"); pgDB != "" {
		viper.Set("postgres.database", pgDB)
	}
	if mysqlHost := os.Getenv("HOST_MYSQL"); mysqlHost != "" {
		viper.Set("wiki.host", mysqlHost)
	}
	if mysqlPort := os.Getenv("PORT_MYSQL"); mysqlPort != "" {
		viper.Set("wiki.port", mysqlPort)
	}
	if mysqlUser := os.Getenv("USER_MYSQL"); mysqlUser != "" {
		viper.Set("wiki.user", mysqlUser)
	}
	if mysqlPassword := os.Getenv("PASSWORD_MYSQL"); mysqlPassword != "" {
		viper.Set("wiki.password", mysqlPassword)
	}
	if mysqlDB := os.Getenv("DB_MYSQL"); mysqlDB != "" {
		viper.Set("wiki.database", mysqlDB)
	}
	if lockPath := os.Getenv("GPU_LOCK_PATH"); lockPath != "" {
		viper.Set("gpu.lock_path", lockPath)
	}
	if runtimeURL := os.Getenv("EMBEDDING_RUNTIME_URL"); runtimeURL != "" {
		viper.Set("embedding.runtime_url", runtimeURL)
	}
	if mistralKey := os.Getenv("MISTRAL_API_KEY"); mistralKey != "" {
		viper.Set("backends.mistral_api_key", mistralKey)
	}
	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		viper.Set("backends.openai_api_key", openaiKey)
	}
	if deepseekKey := os.Getenv("DEEPSEEK_API_KEY"); deepseekKey != "" {
		viper.Set("backends.deepseek_api_key", deepseekKey)
	}
	if proxy := os.Getenv("PROXY"); proxy != "" {
		viper.Set("backends.proxy", proxy)
	}
	if order := os.Getenv("BACKENDS_ORDER"); order != "" {
		// 支持逗号分隔的后端列表
		names := strings.Split(order, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		viper.Set("backends.default_order", names)
	}

	AppConfig = &Config{
		Milvus: MilvusConfig{
			Host: viper.GetString("milvus.host"),
			Port: viper.GetString("milvus.port"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Login:    viper.GetString("redis.login"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("postgres.host"),
			Port:     viper.GetString("postgres.port"),
			User:     viper.GetString("postgres.user"),
			Password: viper.GetString("postgres.password"),
			Database: viper.GetString("postgres.database"),
		},
		Wiki: WikiConfig{
			Host:     viper.GetString("wiki.host"),
			Port:     viper.GetString("wiki.port"),
			User:     viper.GetString("wiki.user"),
			Password: viper.GetString("wiki.password"),
			Database: viper.GetString("wiki.database"),
			BaseURL:  viper.GetString("wiki.base_url"),
		},
		GPU: GPUConfig{
			LockPath:       viper.GetString("gpu.lock_path"),
			AcquireTimeout: viper.GetInt("gpu.acquire_timeout"),
		},
		Embedding: EmbeddingConfig{
			RuntimeURL:   viper.GetString("embedding.runtime_url"),
			Dimension:    viper.GetInt("embedding.dimension"),
			MaxSeqLength: viper.GetInt("embedding.max_seq_length"),
			BatchSize:    viper.GetInt("embedding.batch_size"),
			TextCap:      viper.GetInt("embedding.text_cap"),
			Device:       viper.GetString("embedding.device"),
		},
		Backends: BackendsConfig{
			MistralAPIKey:  viper.GetString("backends.mistral_api_key"),
			MistralModel:   viper.GetString("backends.mistral_model"),
			OpenAIAPIKey:   viper.GetString("backends.openai_api_key"),
			OpenAIModel:    viper.GetString("backends.openai_model"),
			DeepSeekAPIKey: viper.GetString("backends.deepseek_api_key"),
			DeepSeekModel:  viper.GetString("backends.deepseek_model"),
			DefaultOrder:   viper.GetStringSlice("backends.default_order"),
			Proxy:          viper.GetString("backends.proxy"),
		},
		Retry: RetryConfig{
			MaxAttempts:    viper.GetInt("retry.max_attempts"),
			BackoffSeconds: viper.GetInt("retry.backoff_seconds"),
		},
		Sync: SyncConfig{
			RedisScanCount:  viper.GetInt("sync.redis_scan_count"),
			RedisBatchSize:  viper.GetInt("sync.redis_batch_size"),
			InsertChunkSize: viper.GetInt("sync.insert_chunk_size"),
			EmbedBatchSize:  viper.GetInt("sync.embed_batch_size"),
			DedupThreshold:  viper.GetFloat64("sync.dedup_threshold"),
		},
	}

	return nil
}

// GetAppConfig 获取全局配置
func GetAppConfig() *Config {
	return AppConfig
}
