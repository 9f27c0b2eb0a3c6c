// =============================================================================
// 📦 默认配置
// =============================================================================
package config

import "time"

// 模型与递归上限默认值
const (
	DefaultModel          = "openai/gpt-4o-2024-11-20"
	DefaultRecursionLimit = 150
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Auth:      AuthConfig{},
		Session:   DefaultSessionConfig(),
		LLM:       DefaultLLMConfig(),
		Search:    DefaultSearchConfig(),
		Sandbox:   DefaultSandboxConfig(),
		Cache:     DefaultCacheConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		HTTPPort:        8000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DirPrefix:      "agent_session_",
		MaxAge:         24 * time.Hour,
		ReapInterval:   time.Hour,
		RecursionLimit: DefaultRecursionLimit,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:         "openrouter",
		BaseURL:          "https://openrouter.ai/api",
		Model:            DefaultModel,
		Temperature:      0,
		Timeout:          2 * time.Minute,
		MaxIterations:    10,
		ToolOutputTokens: 4000,
	}
}

// DefaultSearchConfig 返回默认搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		BaseURL:           "https://api.tavily.com",
		MaxResults:        5,
		Timeout:           15 * time.Second,
		CacheTTL:          time.Hour,
		ScrapeConcurrency: 4,
		ScrapeMaxBytes:    2 << 20,
	}
}

// DefaultSandboxConfig 返回默认代码执行配置
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Interpreter:    "python3",
		Timeout:        30 * time.Second,
		MaxOutputBytes: 64 * 1024,
	}
}

// DefaultCacheConfig 返回默认 Redis 配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		KeyPrefix:    "hateams:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "hateams",
		Name:            "hateams.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "hateams",
		SampleRate:   0.1,
	}
}
