package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	Port        string
	APIKey      string // 空文字の場合は認証なし
	Environment string

	ModelsDir       string
	ModelKind       string // "auto" | "random_forest" | "gradient_boosting" | "ridge" | "linear"
	ModelMaxAgeDays int    // この日数を超えた学習済みモデルは再学習

	HistoryDays        int     // 学習に使う履歴の日数
	OutlierZUpper      float64 // 外れ値クリップ上限のσ係数
	OutlierZLower      float64 // 外れ値クリップ下限のσ係数
	SafetyFactor       float64 // 仕入れ推奨の安全係数
	UrgencyHighDays    float64 // 在庫日数がこれ未満なら緊急度 alta
	UrgencyMediumDays  float64 // 在庫日数がこれ未満なら緊急度 media
	SmoothingAlpha     float64 // 指数平滑の係数
	BlendPrimaryWeight float64 // アンサンブル時の主モデル重み
	DefaultTier        string  // データ量ティア（rapido/estandar/optimo）
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		APIKey:      getEnv("API_KEY", ""),
		Environment: getEnv("ENVIRONMENT", "development"),

		ModelsDir:       getEnv("MODELS_DIR", "modelos_guardados"),
		ModelKind:       getEnv("MODEL_KIND", "auto"),
		ModelMaxAgeDays: getEnvInt("MODEL_MAX_AGE_DAYS", 7),

		HistoryDays:        getEnvInt("HISTORY_DAYS", 365),
		OutlierZUpper:      getEnvFloat("OUTLIER_Z_UPPER", 4.0),
		OutlierZLower:      getEnvFloat("OUTLIER_Z_LOWER", 2.0),
		SafetyFactor:       getEnvFloat("SAFETY_FACTOR", 1.2),
		UrgencyHighDays:    getEnvFloat("URGENCY_HIGH_DAYS", 7),
		UrgencyMediumDays:  getEnvFloat("URGENCY_MEDIUM_DAYS", 15),
		SmoothingAlpha:     getEnvFloat("SMOOTHING_ALPHA", 0.3),
		BlendPrimaryWeight: getEnvFloat("BLEND_PRIMARY_WEIGHT", 0.7),
		DefaultTier:        getEnv("DATA_TIER", TierStandard),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
