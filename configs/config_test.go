package config

import (
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	// テスト用の環境変数を設定
	testCases := map[string]string{
		"PORT":               "9090",
		"ENVIRONMENT":        "test",
		"MODELS_DIR":         "/tmp/modelos_test",
		"MODEL_KIND":         "gradient_boosting",
		"MODEL_MAX_AGE_DAYS": "3",
		"SAFETY_FACTOR":      "1.5",
		"DATA_TIER":          "optimo",
	}

	for key, value := range testCases {
		os.Setenv(key, value)
	}

	// テスト後にクリーンアップ
	defer func() {
		for key := range testCases {
			os.Unsetenv(key)
		}
	}()

	cfg := LoadConfig()

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be '9090', got '%s'", cfg.Port)
	}
	if cfg.Environment != "test" {
		t.Errorf("Expected Environment to be 'test', got '%s'", cfg.Environment)
	}
	if cfg.ModelsDir != "/tmp/modelos_test" {
		t.Errorf("Expected ModelsDir to be '/tmp/modelos_test', got '%s'", cfg.ModelsDir)
	}
	if cfg.ModelKind != "gradient_boosting" {
		t.Errorf("Expected ModelKind to be 'gradient_boosting', got '%s'", cfg.ModelKind)
	}
	if cfg.ModelMaxAgeDays != 3 {
		t.Errorf("Expected ModelMaxAgeDays to be 3, got %d", cfg.ModelMaxAgeDays)
	}
	if cfg.SafetyFactor != 1.5 {
		t.Errorf("Expected SafetyFactor to be 1.5, got %f", cfg.SafetyFactor)
	}
	if cfg.DefaultTier != "optimo" {
		t.Errorf("Expected DefaultTier to be 'optimo', got '%s'", cfg.DefaultTier)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	// 環境変数をクリア
	vars := []string{
		"PORT", "ENVIRONMENT", "MODELS_DIR", "MODEL_KIND",
		"MODEL_MAX_AGE_DAYS", "SAFETY_FACTOR", "DATA_TIER",
	}

	for _, v := range vars {
		os.Unsetenv(v)
	}

	cfg := LoadConfig()

	// デフォルト値の検証
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port to be '8080', got '%s'", cfg.Port)
	}
	if cfg.ModelKind != "auto" {
		t.Errorf("Expected default ModelKind to be 'auto', got '%s'", cfg.ModelKind)
	}
	if cfg.ModelMaxAgeDays != 7 {
		t.Errorf("Expected default ModelMaxAgeDays to be 7, got %d", cfg.ModelMaxAgeDays)
	}
	if cfg.SafetyFactor != 1.2 {
		t.Errorf("Expected default SafetyFactor to be 1.2, got %f", cfg.SafetyFactor)
	}
	if cfg.DefaultTier != TierStandard {
		t.Errorf("Expected default DefaultTier to be '%s', got '%s'", TierStandard, cfg.DefaultTier)
	}
	if cfg.OutlierZUpper != 4.0 {
		t.Errorf("Expected default OutlierZUpper to be 4.0, got %f", cfg.OutlierZUpper)
	}
	if cfg.OutlierZLower != 2.0 {
		t.Errorf("Expected default OutlierZLower to be 2.0, got %f", cfg.OutlierZLower)
	}
}

func TestGetTier(t *testing.T) {
	if tier := GetTier(TierFast); tier.MinUniqueDays != 7 {
		t.Errorf("Expected rapido tier to require 7 days, got %d", tier.MinUniqueDays)
	}
	if tier := GetTier(TierOptimal); tier.MinUniqueDays != 60 {
		t.Errorf("Expected optimo tier to require 60 days, got %d", tier.MinUniqueDays)
	}
	// 未知のティアは estandar にフォールバック
	if tier := GetTier("desconocido"); tier.Name != TierStandard {
		t.Errorf("Expected unknown tier to fall back to estandar, got '%s'", tier.Name)
	}
}
