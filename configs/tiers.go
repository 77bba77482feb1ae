package config

// データ量ティア。学習に要求するユニーク日数と期待できる信頼度が変わる
const (
	TierFast     = "rapido"
	TierStandard = "estandar"
	TierOptimal  = "optimo"
)

// TierConfig 1ティア分の設定
type TierConfig struct {
	Name               string `json:"name"`
	MinUniqueDays      int    `json:"min_unique_days"`
	ExpectedConfidence string `json:"expected_confidence"`
	Description        string `json:"description"`
}

var tierConfigs = map[string]TierConfig{
	TierFast: {
		Name:               TierFast,
		MinUniqueDays:      7,
		ExpectedConfidence: "baja",
		Description:        "最短1週間のデータで予測を開始（精度は低め）",
	},
	TierStandard: {
		Name:               TierStandard,
		MinUniqueDays:      20,
		ExpectedConfidence: "media",
		Description:        "約3週間のデータでバランスの取れた予測",
	},
	TierOptimal: {
		Name:               TierOptimal,
		MinUniqueDays:      60,
		ExpectedConfidence: "alta",
		Description:        "2ヶ月以上のデータで高精度な予測",
	},
}

// GetTier ティア名から設定を取得する。未知の名前は estandar にフォールバック
func GetTier(name string) TierConfig {
	if tc, ok := tierConfigs[name]; ok {
		return tc
	}
	return tierConfigs[TierStandard]
}

// AllTiers 全ティアの一覧（表示用）
func AllTiers() []TierConfig {
	return []TierConfig{tierConfigs[TierFast], tierConfigs[TierStandard], tierConfigs[TierOptimal]}
}
