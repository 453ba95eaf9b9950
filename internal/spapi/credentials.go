package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/sync/singleflight"

	"github.com/zigilabs/amazon-mcp/internal/common"
)

// defaultLWAEndpoint is the Login with Amazon token endpoint.
const defaultLWAEndpoint = "https://api.amazon.com/auth/o2/token"

// expirySafetyMargin is subtracted from every credential lifetime so a token
// is refreshed before it can expire mid-request.
const expirySafetyMargin = 60 * time.Second

const roleSessionName = "amazon-mcp-session"

// CredentialConfig carries the secrets the manager needs.
type CredentialConfig struct {
	LWAClientID     string
	LWAClientSecret string
	LWARefreshToken string

	AWSAccessKeyID     string
	AWSSecretAccessKey string
	RoleARN            string

	// LWAEndpoint overrides the token endpoint. Empty means production.
	LWAEndpoint string
}

// stsAPI is the slice of the STS client the manager uses.
type stsAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

type cachedToken struct {
	value  string
	expiry time.Time
}

type cachedCreds struct {
	creds  aws.Credentials
	expiry time.Time
}

// CredentialManager owns the LWA access token and the per-region signing
// credentials. Concurrent refreshes for the same credential are coalesced so
// exactly one upstream call is in flight at a time.
type CredentialManager struct {
	cfg    CredentialConfig
	client *http.Client
	log    *common.Logger

	sf singleflight.Group

	mu  sync.Mutex
	lwa cachedToken
	aws map[string]cachedCreds // keyed by region

	// newSTS builds a regional STS client. Replaced in tests.
	newSTS func(region string) stsAPI

	now func() time.Time
}

// NewCredentialManager validates the config and builds a manager.
func NewCredentialManager(cfg CredentialConfig, client *http.Client, log *common.Logger) (*CredentialManager, error) {
	if cfg.LWAClientID == "" || cfg.LWAClientSecret == "" || cfg.LWARefreshToken == "" {
		return nil, NewError(KindAuthFailed, "LWA credentials not configured (lwa_client_id, lwa_client_secret, lwa_refresh_token)", nil)
	}
	if cfg.AWSAccessKeyID == "" || cfg.AWSSecretAccessKey == "" {
		return nil, NewError(KindAuthFailed, "AWS credentials not configured (aws_access_key_id, aws_secret_access_key)", nil)
	}
	if cfg.LWAEndpoint == "" {
		cfg.LWAEndpoint = defaultLWAEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	m := &CredentialManager{
		cfg:    cfg,
		client: client,
		log:    log,
		aws:    make(map[string]cachedCreds),
		now:    time.Now,
	}
	m.newSTS = func(region string) stsAPI {
		return sts.New(sts.Options{
			Region: region,
			Credentials: credentials.NewStaticCredentialsProvider(
				cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		})
	}
	return m, nil
}

// AccessToken returns a valid LWA access token, refreshing when the cached
// one is within the safety margin of expiry.
func (m *CredentialManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.lwa.value != "" && m.now().Before(m.lwa.expiry) {
		tok := m.lwa.value
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	v, err, _ := m.sf.Do("lwa", func() (any, error) {
		// Another caller may have refreshed while we queued.
		m.mu.Lock()
		if m.lwa.value != "" && m.now().Before(m.lwa.expiry) {
			tok := m.lwa.value
			m.mu.Unlock()
			return tok, nil
		}
		m.mu.Unlock()
		return m.refreshLWA(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvalidateAccessToken drops the cached token so the next call refreshes.
// Called by the dispatcher after an upstream 401.
func (m *CredentialManager) InvalidateAccessToken() {
	m.mu.Lock()
	m.lwa = cachedToken{}
	m.mu.Unlock()
}

func (m *CredentialManager) refreshLWA(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.cfg.LWARefreshToken},
		"client_id":     {m.cfg.LWAClientID},
		"client_secret": {m.cfg.LWAClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.LWAEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", NewError(KindInternalError, "building LWA refresh request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", NewError(KindNetworkError, "LWA token refresh failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", NewError(KindNetworkError, "reading LWA token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Kind:    KindAuthFailed,
			Message: fmt.Sprintf("LWA token refresh returned %d", resp.StatusCode),
			Status:  resp.StatusCode,
			Details: string(body),
		}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", NewError(KindAuthFailed, "malformed LWA token response", err)
	}
	if parsed.AccessToken == "" {
		return "", NewError(KindAuthFailed, "LWA token response missing access_token", nil)
	}

	lifetime := time.Duration(parsed.ExpiresIn) * time.Second
	if lifetime <= expirySafetyMargin {
		lifetime = expirySafetyMargin + time.Second
	}
	m.mu.Lock()
	m.lwa = cachedToken{
		value:  parsed.AccessToken,
		expiry: m.now().Add(lifetime - expirySafetyMargin),
	}
	m.mu.Unlock()

	if m.log != nil {
		m.log.Debug().Int("expires_in", parsed.ExpiresIn).Msg("LWA access token refreshed")
	}
	return parsed.AccessToken, nil
}

// SignedCredentials returns the AWS credentials used for SigV4 in the given
// region. With no role configured the static pair is returned directly;
// otherwise temporary credentials from STS AssumeRole are cached per region.
func (m *CredentialManager) SignedCredentials(ctx context.Context, region string) (aws.Credentials, error) {
	if m.cfg.RoleARN == "" {
		return aws.Credentials{
			AccessKeyID:     m.cfg.AWSAccessKeyID,
			SecretAccessKey: m.cfg.AWSSecretAccessKey,
		}, nil
	}

	m.mu.Lock()
	if c, ok := m.aws[region]; ok && m.now().Before(c.expiry) {
		m.mu.Unlock()
		return c.creds, nil
	}
	m.mu.Unlock()

	v, err, _ := m.sf.Do("sts:"+region, func() (any, error) {
		m.mu.Lock()
		if c, ok := m.aws[region]; ok && m.now().Before(c.expiry) {
			m.mu.Unlock()
			return c.creds, nil
		}
		m.mu.Unlock()
		return m.assumeRole(ctx, region)
	})
	if err != nil {
		return aws.Credentials{}, err
	}
	return v.(aws.Credentials), nil
}

func (m *CredentialManager) assumeRole(ctx context.Context, region string) (aws.Credentials, error) {
	client := m.newSTS(region)
	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(m.cfg.RoleARN),
		RoleSessionName: aws.String(roleSessionName),
	})
	if err != nil {
		return aws.Credentials{}, NewError(KindAuthFailed, "STS AssumeRole failed", err)
	}
	if out.Credentials == nil || out.Credentials.AccessKeyId == nil ||
		out.Credentials.SecretAccessKey == nil || out.Credentials.SessionToken == nil {
		return aws.Credentials{}, NewError(KindAuthFailed, "STS AssumeRole returned incomplete credentials", nil)
	}

	creds := aws.Credentials{
		AccessKeyID:     *out.Credentials.AccessKeyId,
		SecretAccessKey: *out.Credentials.SecretAccessKey,
		SessionToken:    *out.Credentials.SessionToken,
	}
	expiry := m.now().Add(time.Hour)
	if out.Credentials.Expiration != nil {
		expiry = *out.Credentials.Expiration
	}

	m.mu.Lock()
	m.aws[region] = cachedCreds{creds: creds, expiry: expiry.Add(-expirySafetyMargin)}
	m.mu.Unlock()

	if m.log != nil {
		m.log.Debug().Str("region", region).Msg("assumed SP-API role")
	}
	return creds, nil
}
