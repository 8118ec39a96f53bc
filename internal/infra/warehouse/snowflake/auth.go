package snowflake

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CredentialKind enum
type CredentialKind string

const (
	KindKeyPair CredentialKind = "keypair"
	KindSession CredentialKind = "session"
)

const (
	clientAppID      = "SCODAC_NLQ"
	clientAppVersion = "1.0.0"
)

// Credential is short-lived and scoped to one request. It is never cached.
type Credential struct {
	Kind      CredentialKind
	Token     string
	Issuer    string
	Subject   string
	ExpiresAt time.Time
}

// Apply sets the authorization headers for the credential.
func (c Credential) Apply(h http.Header) {
	switch c.Kind {
	case KindKeyPair:
		h.Set("Authorization", "Bearer "+c.Token)
		h.Set("X-Snowflake-Authorization-Token-Type", "KEYPAIR_JWT")
	case KindSession:
		h.Set("Authorization", `Snowflake Token="`+c.Token+`"`)
	}
}

func (c Credential) String() string {
	return fmt.Sprintf("%s credential (expires %s)", c.Kind, c.ExpiresAt.Format(time.RFC3339))
}

// CredentialProvider produces a fresh credential per call.
type CredentialProvider interface {
	Kind() CredentialKind
	Credential(ctx context.Context) (Credential, error)
}

// Secrets is the long-lived warehouse configuration credentials are built from.
type Secrets struct {
	Account    string
	User       string
	Password   string
	PrivateKey string
	PublicKey  string
	Warehouse  string
	Database   string
	Schema     string
	Role       string
}

func (s Secrets) hasKeyPair() bool {
	return s.Account != "" && s.User != "" && strings.TrimSpace(s.PrivateKey) != ""
}

func (s Secrets) hasPassword() bool {
	return s.Account != "" && s.User != "" && s.Password != ""
}

// values that must never appear in logs or error details
func (s Secrets) sensitive() []string {
	out := make([]string, 0, 2)
	for _, v := range []string{s.Password, s.PrivateKey} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// BaseURL returns the account endpoint.
func BaseURL(account string) string {
	return "https://" + strings.ToLower(strings.TrimSpace(account)) + ".snowflakecomputing.com"
}

// KeyPairProvider signs RS256 JWTs with the configured private key.
type KeyPairProvider struct {
	account     string
	user        string
	key         *rsa.PrivateKey
	fingerprint string
	now         func() time.Time
}

// NewKeyPairProvider parses the keys once. publicPEM may be empty, in which
// case the public key is derived from the private key.
func NewKeyPairProvider(account, user, privatePEM, publicPEM string) (*KeyPairProvider, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	pub := &key.PublicKey
	if strings.TrimSpace(publicPEM) != "" {
		if pub, err = ParsePublicKey(publicPEM); err != nil {
			return nil, err
		}
	}
	fp, err := Fingerprint(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPairProvider{account: account, user: user, key: key, fingerprint: fp, now: time.Now}, nil
}

func (p *KeyPairProvider) Kind() CredentialKind { return KindKeyPair }

func (p *KeyPairProvider) Fingerprint() string { return p.fingerprint }

func (p *KeyPairProvider) Credential(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	token, claims, err := signKeyPairJWT(p.account, p.user, p.fingerprint, p.key, p.now().UTC())
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		Kind:      KindKeyPair,
		Token:     token,
		Issuer:    claims.Issuer,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// SessionProvider logs in with username and password.
type SessionProvider struct {
	baseURL string
	secrets Secrets
	client  *http.Client
	now     func() time.Time
}

func NewSessionProvider(baseURL string, secrets Secrets, client *http.Client) *SessionProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &SessionProvider{baseURL: strings.TrimRight(baseURL, "/"), secrets: secrets, client: client, now: time.Now}
}

func (p *SessionProvider) Kind() CredentialKind { return KindSession }

type loginRequest struct {
	Data loginData `json:"data"`
}

type loginData struct {
	AccountName      string `json:"ACCOUNT_NAME"`
	LoginName        string `json:"LOGIN_NAME"`
	Password         string `json:"PASSWORD"`
	ClientAppID      string `json:"CLIENT_APP_ID"`
	ClientAppVersion string `json:"CLIENT_APP_VERSION"`
}

type loginResponse struct {
	Data struct {
		Token             string `json:"token"`
		ValidityInSeconds int64  `json:"validityInSeconds"`
	} `json:"data"`
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (p *SessionProvider) Credential(ctx context.Context) (Credential, error) {
	body, err := json.Marshal(loginRequest{Data: loginData{
		AccountName:      p.secrets.Account,
		LoginName:        p.secrets.User,
		Password:         p.secrets.Password,
		ClientAppID:      clientAppID,
		ClientAppVersion: clientAppVersion,
	}})
	if err != nil {
		return Credential{}, err
	}

	q := url.Values{}
	if p.secrets.Database != "" {
		q.Set("databaseName", p.secrets.Database)
	}
	if p.secrets.Schema != "" {
		q.Set("schemaName", p.secrets.Schema)
	}
	if p.secrets.Warehouse != "" {
		q.Set("warehouse", p.secrets.Warehouse)
	}
	if p.secrets.Role != "" {
		q.Set("roleName", p.secrets.Role)
	}
	endpoint := p.baseURL + "/session/v1/login-request"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Credential{}, fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credential{}, &upstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	var lr loginResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return Credential{}, fmt.Errorf("decode login response: %w", err)
	}
	if lr.Success != nil && !*lr.Success {
		return Credential{}, &upstreamError{Status: resp.StatusCode, Body: lr.Message}
	}
	if lr.Data.Token == "" {
		return Credential{}, errors.New("login response carried no session token")
	}

	validity := time.Duration(lr.Data.ValidityInSeconds) * time.Second
	if validity <= 0 {
		validity = TokenLifetime
	}
	return Credential{Kind: KindSession, Token: lr.Data.Token, ExpiresAt: p.now().UTC().Add(validity)}, nil
}

// failingProvider stands in for a key-pair provider whose keys could not be
// parsed, so the fallback path still applies at request time.
type failingProvider struct {
	kind CredentialKind
	err  error
}

func (p failingProvider) Kind() CredentialKind { return p.kind }

func (p failingProvider) Credential(context.Context) (Credential, error) {
	return Credential{}, p.err
}

// NewProviders picks the primary and fallback providers from what is
// configured: key pair first, password session second. Either may be nil.
// keyErr reports a key pair that is configured but unusable.
func NewProviders(baseURL string, s Secrets, client *http.Client) (primary, fallback CredentialProvider, keyErr error) {
	var session CredentialProvider
	if s.hasPassword() {
		session = NewSessionProvider(baseURL, s, client)
	}
	if !s.hasKeyPair() {
		return session, nil, nil
	}
	kp, err := NewKeyPairProvider(s.Account, s.User, s.PrivateKey, s.PublicKey)
	if err != nil {
		return failingProvider{kind: KindKeyPair, err: err}, session, err
	}
	return kp, session, nil
}
