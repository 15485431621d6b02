package config

import (
	"sync"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig is shared by the task queue and the worker.
type RedisConfig struct {
	Addr        string
	DB          int
	Concurrency int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		redisConfig = loadRedisConfig(getFileConfig())
	})
	return redisConfig
}

func loadRedisConfig(fc *FileConfig) *RedisConfig {
	return &RedisConfig{
		Addr:        getEnv("REDIS_ADDR", orDefault(fc.Redis.Addr, "localhost:6379")),
		DB:          getEnvInt("REDIS_DB", fc.Redis.DB),
		Concurrency: getEnvInt("WORKER_CONCURRENCY", 10),
	}
}
