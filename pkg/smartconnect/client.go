// Package smartconnect is a client for the Angel One SmartAPI REST and
// WebSocket endpoints: session management with TOTP, order placement and
// cancellation, order book, positions, and historical candles.
package smartconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config carries client construction options.
type Config struct {
	APIKey string

	RootURL string        // default: https://apiconnect.angelone.in
	Debug   bool
	Timeout time.Duration // default: 7s

	ClientPublicIP string // resolved when empty
	ClientLocalIP  string
	ClientMAC      string

	// RequestsPerSecond bounds REST calls; SmartAPI throttles aggressively.
	// Zero means the default of 3 req/s.
	RequestsPerSecond float64
}

// Client talks to the SmartAPI REST surface. All exported methods are safe
// for concurrent use; token state is updated only through the session layer.
type Client struct {
	apiKey string

	rootURL string
	debug   bool

	httpClient *http.Client
	limiter    *rate.Limiter

	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	session session

	// SessionExpiryHook is invoked when the API answers 403 TokenException.
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",

	"api.order.place":  "/rest/secure/angelbroking/order/v1/placeOrder",
	"api.order.modify": "/rest/secure/angelbroking/order/v1/modifyOrder",
	"api.order.cancel": "/rest/secure/angelbroking/order/v1/cancelOrder",
	"api.order.book":   "/rest/secure/angelbroking/order/v1/getOrderBook",
	"api.trade.book":   "/rest/secure/angelbroking/order/v1/getTradeBook",

	"api.ltp.data":     "/rest/secure/angelbroking/order/v1/getLtpData",
	"api.rms.limit":    "/rest/secure/angelbroking/user/v1/getRMS",
	"api.position":     "/rest/secure/angelbroking/order/v1/getPosition",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",
}

// NewClient initializes the REST client.
func NewClient(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 3
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = firstNonEmpty(localIP(), "127.0.0.1")
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = cfg.ClientLocalIP
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Client{
		apiKey:         cfg.APIKey,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		debug:          cfg.Debug,
		httpClient:     &http.Client{Transport: tr, Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return ""
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ---- Request plumbing ----

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.clientLocalIP)
	h.Set("X-ClientPublicIP", c.clientPublicIP)
	h.Set("X-MACAddress", c.clientMAC)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if tok := c.session.accessToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

// apiEnvelope is the common SmartAPI response wrapper.
type apiEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) doRequest(ctx context.Context, method, route string, params any) (*apiEnvelope, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("smartconnect: unknown route %q", route)
	}
	reqURL := c.rootURL + uri

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if method == http.MethodGet {
		if m, ok := params.(map[string]string); ok && len(m) > 0 {
			q := url.Values{}
			for k, v := range m {
				q.Set(k, v)
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()

	if c.debug {
		log.Printf("[smartconnect] %s %s params=%v", method, reqURL, params)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smartconnect: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.debug {
		log.Printf("[smartconnect] %s code=%d body=%s", route, resp.StatusCode, raw)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("smartconnect: parse response for %s: %w", route, err)
	}
	if env.ErrorType != "" {
		if resp.StatusCode == http.StatusForbidden && env.ErrorType == "TokenException" {
			if c.SessionExpiryHook != nil {
				c.SessionExpiryHook()
			}
		}
		return &env, fmt.Errorf("smartconnect: %s: %s", env.ErrorType, env.Message)
	}
	return &env, nil
}

func (c *Client) post(ctx context.Context, route string, params any) (*apiEnvelope, error) {
	return c.doRequest(ctx, http.MethodPost, route, params)
}

func (c *Client) get(ctx context.Context, route string, params map[string]string) (*apiEnvelope, error) {
	return c.doRequest(ctx, http.MethodGet, route, params)
}
