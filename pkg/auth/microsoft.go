package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xenonsan/eagpaas/pkg/connect"
)

// Default endpoints of the Microsoft/Xbox/Minecraft login chain.
const (
	defaultDeviceCodeURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode"
	defaultTokenURL      = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"
	defaultXBLURL        = "https://user.auth.xboxlive.com/user/authenticate"
	defaultXSTSURL       = "https://xsts.auth.xboxlive.com/xsts/authorize"
	defaultMCLoginURL    = "https://api.minecraftservices.com/authentication/login_with_xbox"
	defaultProfileURL    = "https://api.minecraftservices.com/minecraft/profile"

	// DefaultClientID is the public Minecraft client registration used for
	// the device-code grant.
	DefaultClientID = "389b1b32-b5d5-43b2-bddc-84ce938d6737"

	msaScope = "XboxLive.signin offline_access"
)

// Microsoft implements DeviceCodeFlow against the Microsoft account, Xbox
// Live, and Minecraft services endpoints.
type Microsoft struct {
	ClientID string
	HTTP     *http.Client

	// Endpoint overrides for tests. Zero values use the defaults above.
	DeviceCodeURL string
	TokenURL      string
	XBLURL        string
	XSTSURL       string
	MCLoginURL    string
	ProfileURL    string
}

// NewMicrosoft creates a flow with the public Minecraft client ID.
func NewMicrosoft() *Microsoft {
	return &Microsoft{ClientID: DefaultClientID, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

type xboxResponse struct {
	Token         string `json:"Token"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
		} `json:"xui"`
	} `json:"DisplayClaims"`
}

type mcLoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type mcProfileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Login walks the full chain: device code, token polling, Xbox Live, XSTS,
// Minecraft services, profile lookup. Expired device codes are reissued and
// reported through onCode until ctx is cancelled.
func (m *Microsoft) Login(ctx context.Context, onCode func(DeviceCode)) (*connect.Credential, error) {
	msaToken, err := m.acquireMSAToken(ctx, onCode)
	if err != nil {
		return nil, err
	}

	xblToken, uhs, err := m.authXBL(ctx, msaToken)
	if err != nil {
		return nil, err
	}

	xstsToken, err := m.authXSTS(ctx, xblToken)
	if err != nil {
		return nil, err
	}

	mcToken, expiresIn, err := m.loginMinecraft(ctx, uhs, xstsToken)
	if err != nil {
		return nil, err
	}

	profile, err := m.fetchProfile(ctx, mcToken)
	if err != nil {
		return nil, err
	}

	slog.Info("microsoft auth complete", "profile", profile.Name)
	return &connect.Credential{
		Username:    profile.Name,
		ProfileID:   profile.ID,
		AccessToken: mcToken,
		ClientToken: profile.ID,
		ExpiresOn:   time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// acquireMSAToken issues device codes and polls the token endpoint until the
// user approves, an unrecoverable error occurs, or ctx is cancelled.
func (m *Microsoft) acquireMSAToken(ctx context.Context, onCode func(DeviceCode)) (string, error) {
	for {
		code, err := m.requestDeviceCode(ctx)
		if err != nil {
			return "", err
		}
		if onCode != nil {
			onCode(DeviceCode{UserCode: code.UserCode, VerificationURI: code.VerificationURI})
		}

		token, expired, err := m.pollToken(ctx, code)
		if err != nil {
			return "", err
		}
		if expired {
			slog.Debug("microsoft auth: device code expired, reissuing")
			continue
		}
		return token, nil
	}
}

func (m *Microsoft) requestDeviceCode(ctx context.Context) (*deviceCodeResponse, error) {
	form := url.Values{
		"client_id": {m.ClientID},
		"scope":     {msaScope},
	}
	var out deviceCodeResponse
	if err := m.postForm(ctx, m.endpoint(m.DeviceCodeURL, defaultDeviceCodeURL), form, &out); err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}
	if out.DeviceCode == "" {
		return nil, fmt.Errorf("requesting device code: empty response")
	}
	if out.Interval <= 0 {
		out.Interval = 5
	}
	return &out, nil
}

// pollToken returns (token, false, nil) on approval, ("", true, nil) when the
// device code expired, or an error for everything else.
func (m *Microsoft) pollToken(ctx context.Context, code *deviceCodeResponse) (string, bool, error) {
	interval := time.Duration(code.Interval) * time.Second
	deadline := time.Now().Add(time.Duration(code.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(interval):
		}

		form := url.Values{
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
			"client_id":   {m.ClientID},
			"device_code": {code.DeviceCode},
		}
		var out tokenResponse
		if err := m.postForm(ctx, m.endpoint(m.TokenURL, defaultTokenURL), form, &out); err != nil {
			return "", false, fmt.Errorf("polling for token: %w", err)
		}

		switch out.Error {
		case "":
			if out.AccessToken == "" {
				return "", false, fmt.Errorf("polling for token: empty grant")
			}
			return out.AccessToken, false, nil
		case "authorization_pending":
			// keep polling
		case "slow_down":
			interval += 5 * time.Second
		case "expired_token":
			return "", true, nil
		default:
			return "", false, fmt.Errorf("device code grant failed: %s", firstNonEmpty(out.ErrorDesc, out.Error))
		}

		if code.ExpiresIn > 0 && time.Now().After(deadline) {
			return "", true, nil
		}
	}
}

func (m *Microsoft) authXBL(ctx context.Context, msaToken string) (token, uhs string, err error) {
	payload := map[string]any{
		"Properties": map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + msaToken,
		},
		"RelyingParty": "http://auth.xboxlive.com",
		"TokenType":    "JWT",
	}
	var out xboxResponse
	if err := m.postJSON(ctx, m.endpoint(m.XBLURL, defaultXBLURL), payload, &out); err != nil {
		return "", "", fmt.Errorf("xbox live auth: %w", err)
	}
	if out.Token == "" || len(out.DisplayClaims.XUI) == 0 {
		return "", "", fmt.Errorf("xbox live auth: malformed response")
	}
	return out.Token, out.DisplayClaims.XUI[0].UHS, nil
}

func (m *Microsoft) authXSTS(ctx context.Context, xblToken string) (string, error) {
	payload := map[string]any{
		"Properties": map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{xblToken},
		},
		"RelyingParty": "rp://api.minecraftservices.com/",
		"TokenType":    "JWT",
	}
	var out xboxResponse
	if err := m.postJSON(ctx, m.endpoint(m.XSTSURL, defaultXSTSURL), payload, &out); err != nil {
		return "", fmt.Errorf("xsts auth: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("xsts auth: malformed response")
	}
	return out.Token, nil
}

func (m *Microsoft) loginMinecraft(ctx context.Context, uhs, xstsToken string) (string, int, error) {
	payload := map[string]any{
		"identityToken": fmt.Sprintf("XBL3.0 x=%s;%s", uhs, xstsToken),
	}
	var out mcLoginResponse
	if err := m.postJSON(ctx, m.endpoint(m.MCLoginURL, defaultMCLoginURL), payload, &out); err != nil {
		return "", 0, fmt.Errorf("minecraft login: %w", err)
	}
	if out.AccessToken == "" {
		return "", 0, fmt.Errorf("minecraft login: malformed response")
	}
	return out.AccessToken, out.ExpiresIn, nil
}

func (m *Microsoft) fetchProfile(ctx context.Context, mcToken string) (*mcProfileResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint(m.ProfileURL, defaultProfileURL), nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+mcToken)

	resp, err := m.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("this Microsoft account does not own Minecraft")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching profile: status %d", resp.StatusCode)
	}

	var profile mcProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	return &profile, nil
}

func (m *Microsoft) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return m.do(req, out)
}

func (m *Microsoft) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return m.do(req, out)
}

// do decodes the body regardless of status: the MSA token endpoint reports
// pending/expired grants with a 400 plus an error field in the JSON.
func (m *Microsoft) do(req *http.Request, out any) error {
	resp, err := m.client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	return nil
}

func (m *Microsoft) client() *http.Client {
	if m.HTTP != nil {
		return m.HTTP
	}
	return http.DefaultClient
}

func (*Microsoft) endpoint(override, def string) string {
	if override != "" {
		return override
	}
	return def
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Verify interface compliance.
var _ DeviceCodeFlow = (*Microsoft)(nil)
