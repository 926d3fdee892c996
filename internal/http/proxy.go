// Package http builds the proxy-aware, retrying HTTP transport the API
// client dispatches through.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/http2"

	"github.com/chordhq/chord/internal/config"
	"github.com/chordhq/chord/internal/constants"
)

// ConfigureHTTPClient builds an HTTP client honoring the configured proxy
// mode.
func ConfigureHTTPClient(cfg *config.Config) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}

	switch strings.ToLower(cfg.ProxyMode) {
	case "no-proxy", "":
		transport.Proxy = nil
		// Proxies often mishandle HTTP/2 multiplexing, so it is only
		// negotiated on direct connections.
		transport.ForceAttemptHTTP2 = true
		_ = http2.ConfigureTransport(transport)

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment

	case "ntlm":
		// Fall back to no-proxy if host is missing (incomplete saved
		// config) so the user can reconfigure instead of hard-failing.
		if cfg.ProxyHost == "" {
			log.Warn().Msg("proxy mode is ntlm but host is missing - falling back to no-proxy mode")
			transport.Proxy = nil
			break
		}

		proxyURL := buildProxyURL(cfg)
		transport.Proxy = proxyFuncWithBypass(proxyURL, cfg.NoProxy)

		client := &nethttp.Client{
			Transport: ntlmssp.Negotiator{
				RoundTripper: transport,
			},
		}
		if cfg.ProxyWarmup && cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
			if err := warmupProxy(client, cfg); err != nil {
				return nil, fmt.Errorf("proxy warmup failed: %w", err)
			}
		}
		return client, nil

	case "basic":
		if cfg.ProxyHost == "" {
			log.Warn().Msg("proxy mode is basic but host is missing - falling back to no-proxy mode")
			transport.Proxy = nil
			break
		}

		proxyURL := buildProxyURL(cfg)
		transport.Proxy = proxyFuncWithBypass(proxyURL, cfg.NoProxy)

		if cfg.ProxyUser != "" && cfg.ProxyPassword == "" {
			log.Warn().Msg("proxy user configured but password missing - proxy auth disabled until password is set")
		}

		client := &nethttp.Client{Transport: transport}
		if cfg.ProxyWarmup && cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
			if err := warmupProxy(client, cfg); err != nil {
				return nil, fmt.Errorf("proxy warmup failed: %w", err)
			}
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}

	client := &nethttp.Client{Transport: transport}
	if cfg.ProxyWarmup && cfg.ProxyMode == "system" {
		if err := warmupProxy(client, cfg); err != nil {
			return nil, fmt.Errorf("proxy warmup failed: %w", err)
		}
	}
	return client, nil
}

// buildProxyURL constructs a proxy URL from config.
func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", cfg.ProxyHost, port),
	}

	// Only embed credentials when both are present; an empty password in
	// the URL can break auth with some proxies.
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}
	return proxyURL
}

// warmupProxy performs one request through the proxy so auth failures
// surface at startup rather than on the first real call.
func warmupProxy(client *nethttp.Client, cfg *config.Config) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("no API base URL to warm up against")
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.APIConnectionTestTimeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, strings.TrimSuffix(cfg.APIBaseURL, "/")+"/", nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}
	return nil
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy
// bypass list. With an empty list it behaves identically to
// nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			log.Debug().Str("host", req.URL.Host).Msg("proxy bypass, direct connection")
		} else {
			log.Debug().Str("host", req.URL.Host).Str("proxy", result.Host).Msg("proxied")
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether the proxy configuration requires a
// password that has not been provided. The CLI uses it to decide whether to
// prompt interactively.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.ProxyMode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return cfg.ProxyUser != "" && cfg.ProxyPassword == ""
}
