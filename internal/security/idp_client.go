package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はIdPのURLとして許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はプライベートアドレスを許可しない場合に拒否するネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（クラウドメタデータIPを含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// IdPClientConfig はIdP接続用HTTPクライアントの設定。
type IdPClientConfig struct {
	// BaseURL はKeycloakのベースURL（KEYCLOAK_URL）。
	BaseURL string
	// Timeout はリクエスト全体のタイムアウト。
	Timeout time.Duration
	// AllowPrivateIP はプライベート・ループバックアドレスへの接続を許可する。
	// 同一ホストやクラスタ内のKeycloakに接続する構成ではtrueにする。
	AllowPrivateIP bool
}

// NewIdPClient はレルム公開鍵の取得に使うHTTPクライアントを生成する。
//
// AllowPrivateIPがfalseの場合はsafeurlのクライアントを返す。
// safeurlはDNS解決後のIPアドレスをDialerで検証するため、
// 公開ホスト名がプライベートアドレスに解決される場合も接続しない。
// 許可ポートは80・443と、BaseURLに明示されたポート。
func NewIdPClient(cfg IdPClientConfig) (*http.Client, error) {
	parsed, err := ValidateIdPURL(cfg.BaseURL, cfg.AllowPrivateIP)
	if err != nil {
		return nil, err
	}

	if cfg.AllowPrivateIP {
		return &http.Client{Timeout: cfg.Timeout}, nil
	}

	ports := []int{80, 443}
	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in IdP URL: %s", p)
		}
		ports = append(ports, port)
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(cfg.Timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(ports...).
		Build()

	return safeurl.Client(config).Client, nil
}

// ValidateIdPURL はIdPのURLを静的に検証する。
// スキームはhttp/httpsのみ、ホストは必須。
// allowPrivateIPがfalseの場合はプライベートIPとlocalhostを拒否する。
func ValidateIdPURL(rawURL string, allowPrivateIP bool) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty IdP URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid IdP URL: %w", err)
	}

	if !isAllowedScheme(parsed.Scheme) {
		return nil, fmt.Errorf("disallowed scheme: %s (allowed: %v)", parsed.Scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("empty host in IdP URL: %s", rawURL)
	}

	if allowPrivateIP {
		return parsed, nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return nil, fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return parsed, nil
	}
	if strings.EqualFold(host, "localhost") {
		return nil, fmt.Errorf("blocked host: %s", host)
	}

	return parsed, nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
