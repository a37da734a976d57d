package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/xenonsan/eagpaas/pkg/connect"
)

// defaultAlteningAuthURL is TheAltening's Yggdrasil-compatible auth server.
const defaultAlteningAuthURL = "http://authserver.thealtening.com/authenticate"

// alteningSessionTTL is how long an alt-token session is treated as usable.
// The pool rotates accounts, so sessions are short-lived by nature.
const alteningSessionTTL = 24 * time.Hour

// Altening implements TokenExchanger against TheAltening's authserver. The
// exchange is a single request/response with no intermediate events; any
// remote error is surfaced verbatim as the failure reason.
type Altening struct {
	AuthURL string
	HTTP    *http.Client
}

// NewAltening creates an exchanger with the public endpoint.
func NewAltening() *Altening {
	return &Altening{HTTP: &http.Client{Timeout: 15 * time.Second}}
}

type yggdrasilRequest struct {
	Agent struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	} `json:"agent"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientToken string `json:"clientToken"`
}

type yggdrasilResponse struct {
	AccessToken     string `json:"accessToken"`
	ClientToken     string `json:"clientToken"`
	SelectedProfile struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"selectedProfile"`
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage"`
}

// Exchange trades an alt token for a session credential.
func (a *Altening) Exchange(ctx context.Context, token string) (*connect.Credential, error) {
	reqBody := yggdrasilRequest{
		Username:    token,
		Password:    "anything", // the authserver only inspects the token
		ClientToken: uuid.NewString(),
	}
	reqBody.Agent.Name = "Minecraft"
	reqBody.Agent.Version = 1

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling exchange request: %w", err)
	}

	endpoint := a.AuthURL
	if endpoint == "" {
		endpoint = defaultAlteningAuthURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var out yggdrasilResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("authserver returned status %d", resp.StatusCode)
	}
	if out.ErrorMessage != "" {
		return nil, fmt.Errorf("%s", out.ErrorMessage)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s", out.Error)
	}
	if out.AccessToken == "" || out.SelectedProfile.Name == "" {
		return nil, fmt.Errorf("authserver returned an incomplete session")
	}

	return &connect.Credential{
		Username:    out.SelectedProfile.Name,
		ProfileID:   out.SelectedProfile.ID,
		AccessToken: out.AccessToken,
		ClientToken: out.ClientToken,
		ExpiresOn:   time.Now().Add(alteningSessionTTL),
		TheAltening: true,
	}, nil
}

// Verify interface compliance.
var _ TokenExchanger = (*Altening)(nil)
