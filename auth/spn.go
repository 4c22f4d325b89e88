// auth/spn.go
// -----------
// SPNTokenProvider acquires Entra ID tokens for a service principal with the
// client credentials grant, using either a client secret or a certificate
// (signed JWT client assertion). Tokens are cached per scope and reused
// until they are about to expire.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/pkcs12"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultAuthorityHost = "https://login.microsoftonline.com"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	assertionLifetime   = 5 * time.Minute
)

// SPNConfig holds the service principal credentials. Exactly one of
// ClientSecret, CertPath or Certificate/PrivateKey must be set.
type SPNConfig struct {
	TenantID      string `mapstructure:"tenant_id"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	CertPath      string `mapstructure:"cert_path"` // PFX / PKCS#12
	CertPassword  string `mapstructure:"cert_password"`
	AuthorityHost string `mapstructure:"authority_host"`

	// Scopes overrides or extends DefaultAudienceScopes.
	Scopes map[string]string `mapstructure:"scopes"`

	Certificate *x509.Certificate `mapstructure:"-"`
	PrivateKey  *rsa.PrivateKey   `mapstructure:"-"`
	HTTPClient  *http.Client      `mapstructure:"-"`
}

func (c SPNConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TenantID, validation.Required),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.ClientSecret, validation.When(c.CertPath == "" && c.PrivateKey == nil,
			validation.Required.Error("a client secret or a certificate is required"))),
		validation.Field(&c.Certificate, validation.When(c.PrivateKey != nil, validation.NotNil)),
	)
}

// SPNTokenProvider acquires tokens with the client credentials flow and
// caches them per audience until shortly before they expire.
type SPNTokenProvider struct {
	cfg      SPNConfig
	tokenURL string
	cert     *x509.Certificate
	key      *rsa.PrivateKey
	now      func() time.Time

	mu     sync.Mutex
	tokens map[string]*oauth2.Token
}

// NewSPNTokenProvider validates cfg and loads the certificate, if any.
func NewSPNTokenProvider(cfg SPNConfig) (*SPNTokenProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service principal config: %w", err)
	}
	if cfg.AuthorityHost == "" {
		cfg.AuthorityHost = DefaultAuthorityHost
	}

	p := &SPNTokenProvider{
		cfg:      cfg,
		tokenURL: fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(cfg.AuthorityHost, "/"), url.PathEscape(cfg.TenantID)),
		cert:     cfg.Certificate,
		key:      cfg.PrivateKey,
		now:      time.Now,
		tokens:   make(map[string]*oauth2.Token),
	}

	if cfg.CertPath != "" && p.key == nil {
		pfx, err := os.ReadFile(cfg.CertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read cert file: %w", err)
		}
		p.key, p.cert, err = parsePfxCertificate(pfx, cfg.CertPassword)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Token returns a cached token for the audience's scope, acquiring a new one
// when none is cached or the cached one is expiring.
func (p *SPNTokenProvider) Token(ctx context.Context, audience string) (string, error) {
	scope, err := ScopeForAudience(audience, p.cfg.Scopes)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok, ok := p.tokens[scope]; ok && tok.Valid() {
		return tok.AccessToken, nil
	}

	tok, err := p.acquire(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("failed to acquire token for scope %s: %w", scope, err)
	}
	p.tokens[scope] = tok
	return tok.AccessToken, nil
}

func (p *SPNTokenProvider) acquire(ctx context.Context, scope string) (*oauth2.Token, error) {
	cc := clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     p.tokenURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if p.key != nil {
		assertion, err := p.clientAssertion()
		if err != nil {
			return nil, fmt.Errorf("failed to create client assertion: %w", err)
		}
		cc.ClientSecret = ""
		cc.EndpointParams = url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		}
	}
	if p.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}
	return cc.Token(ctx)
}

// clientAssertion signs a short-lived JWT with the certificate's key. The
// x5t header carries the certificate thumbprint so the token endpoint can
// find the matching public key.
func (p *SPNTokenProvider) clientAssertion() (string, error) {
	now := p.now()
	claims := jwt.MapClaims{
		"aud": p.tokenURL,
		"iss": p.cfg.ClientID,
		"sub": p.cfg.ClientID,
		"jti": uuid.NewString(),
		"exp": now.Add(assertionLifetime).Unix(),
		"nbf": now.Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if p.cert != nil {
		thumb := sha1.Sum(p.cert.Raw)
		token.Header["x5t"] = base64.RawURLEncoding.EncodeToString(thumb[:])
	}

	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// parsePfxCertificate returns the RSA key and certificate in a PKCS#12 blob.
func parsePfxCertificate(pfxData []byte, password string) (*rsa.PrivateKey, *x509.Certificate, error) {
	privateKey, cert, err := pkcs12.Decode(pfxData, password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode pkcs12: %w", err)
	}
	rsaKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, cert, nil
}
