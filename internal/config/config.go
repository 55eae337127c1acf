// Package config はアプリケーション設定の読み込みを提供する。
// .envファイル（存在する場合）と環境変数からViperで読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	Port     string `mapstructure:"PORT"`
	AppEnv   string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Database
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// CORS
	FrontendURL string `mapstructure:"FRONTEND_URL"`

	// Keycloak
	KeycloakURL      string `mapstructure:"KEYCLOAK_URL"`
	KeycloakRealm    string `mapstructure:"KEYCLOAK_REALM"`
	KeycloakClientID string `mapstructure:"KEYCLOAK_CLIENT_ID"`
	// VerifyAudience はaudクレームの検証を有効にする。
	// 同一レルムを複数クライアントで共有するため、デフォルトは無効。
	VerifyAudience bool `mapstructure:"KEYCLOAK_VERIFY_AUDIENCE"`
	// KeyTTL はレルム公開鍵キャッシュの有効期間。0は無期限。
	KeyTTL time.Duration `mapstructure:"KEYCLOAK_KEY_TTL"`
	// FetchTimeout はレルム公開鍵取得のタイムアウト。
	FetchTimeout time.Duration `mapstructure:"KEYCLOAK_FETCH_TIMEOUT"`
	// AllowPrivateIP はプライベートアドレス上のKeycloakへの接続を許可する。
	// falseの場合はSSRF防止付きクライアントを使用する。
	AllowPrivateIP bool `mapstructure:"KEYCLOAK_ALLOW_PRIVATE_IP"`

	// Rate Limit（req/min、0で無効）
	RateLimitGeneral int `mapstructure:"RATE_LIMIT_GENERAL"`
}

// requiredKeys は未設定時に起動を中止する環境変数。
var requiredKeys = []string{
	"DATABASE_URL",
	"KEYCLOAK_URL",
	"KEYCLOAK_REALM",
	"KEYCLOAK_CLIENT_ID",
}

// Load は.env（存在する場合）と環境変数からConfigを読み込む。
// 環境変数は.envの値より優先される。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーとして返す。
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .envが無い環境（CI等）では無視する

	v.AutomaticEnv()

	v.SetDefault("PORT", "5000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("KEYCLOAK_URL", "")
	v.SetDefault("KEYCLOAK_REALM", "")
	v.SetDefault("KEYCLOAK_CLIENT_ID", "")
	v.SetDefault("KEYCLOAK_VERIFY_AUDIENCE", false)
	v.SetDefault("KEYCLOAK_KEY_TTL", time.Duration(0))
	v.SetDefault("KEYCLOAK_FETCH_TIMEOUT", 10*time.Second)
	v.SetDefault("KEYCLOAK_ALLOW_PRIVATE_IP", true)
	v.SetDefault("RATE_LIMIT_GENERAL", 0)

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.KeycloakURL = strings.TrimSuffix(cfg.KeycloakURL, "/")
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.KeyTTL < 0 {
		return nil, fmt.Errorf("KEYCLOAK_KEY_TTL must not be negative: %s", cfg.KeyTTL)
	}
	if cfg.RateLimitGeneral < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_GENERAL must not be negative: %d", cfg.RateLimitGeneral)
	}

	return cfg, nil
}

// RealmURL はKeycloakレルムのメタデータURLを返す。
// レスポンスのpublic_keyフィールドがトークン検証用の公開鍵となる。
func (c *Config) RealmURL() string {
	return c.KeycloakURL + "/realms/" + c.KeycloakRealm
}

// IsProduction は本番環境で動作しているかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
