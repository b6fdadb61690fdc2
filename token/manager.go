package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/radiantplatform/oauth-core/authcode"
	"github.com/radiantplatform/oauth-core/clients"
	"github.com/radiantplatform/oauth-core/internal/metrics"
	"github.com/radiantplatform/oauth-core/oauth2"
	"github.com/radiantplatform/oauth-core/token/keys"
	"github.com/radiantplatform/oauth-core/token/refresh"
	"github.com/radiantplatform/oauth-core/users"
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultIDTokenTTL      = time.Hour
)

// errRotationRaced signals that the conditional revoke of a refresh token
// lost to a concurrent rotation. The caller treats it like reuse.
var errRotationRaced = errors.New("refresh token rotation raced")

// Manager converts validated grants into signed tokens. All three grant
// paths converge on the shared mint routine once a principal and an
// authorized scope set are established.
type Manager struct {
	store    Atomic
	clients  clients.Repo
	users    users.Repo
	keys     *keys.Manager
	registry *oauth2.ScopeRegistry
	metrics  *metrics.Metrics

	issuer          string
	audience        string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	idTokenTTL      time.Duration
	nowTime         func() time.Time
}

// ManagerOption modifies a Manager.
type ManagerOption func(*Manager)

// WithIssuer sets the iss claim on minted tokens.
func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) { m.issuer = issuer }
}

// WithAudience sets the aud claim on minted access tokens.
func WithAudience(audience string) ManagerOption {
	return func(m *Manager) { m.audience = audience }
}

// WithTokenExpiry overrides the default TTLs applied when a client carries
// no policy of its own.
func WithTokenExpiry(accessTokenTTL, refreshTokenTTL, idTokenTTL time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenTTL = accessTokenTTL
		m.refreshTokenTTL = refreshTokenTTL
		m.idTokenTTL = idTokenTTL
	}
}

// WithScopeRegistry sets the registry requested scope strings are validated
// against.
func WithScopeRegistry(registry *oauth2.ScopeRegistry) ManagerOption {
	return func(m *Manager) { m.registry = registry }
}

// WithMetrics sets the metric instruments the manager emits to.
func WithMetrics(mm *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mm }
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowTime = now }
}

// New creates a token manager.
func New(store Atomic, clientRepo clients.Repo, userRepo users.Repo, keyManager *keys.Manager, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[token.New] store is required")
	}
	if clientRepo == nil {
		return nil, errors.New("[token.New] client repo is required")
	}
	if userRepo == nil {
		return nil, errors.New("[token.New] user repo is required")
	}
	if keyManager == nil {
		return nil, errors.New("[token.New] key manager is required")
	}

	m := &Manager{
		store:           store,
		clients:         clientRepo,
		users:           userRepo,
		keys:            keyManager,
		registry:        oauth2.NewScopeRegistry(),
		accessTokenTTL:  defaultAccessTokenTTL,
		refreshTokenTTL: defaultRefreshTokenTTL,
		idTokenTTL:      defaultIDTokenTTL,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Exchange is the token endpoint entry point: it authenticates the client,
// dispatches on grant type, and returns either a token response or a
// protocol error.
func (m *Manager) Exchange(ctx context.Context, p Params) (*oauth2.TokenResponse, error) {
	client, err := m.authenticateClient(ctx, p.ClientID, p.ClientSecret)
	if err != nil {
		m.metrics.CountGrantFailure(ctx, string(p.GrantType), string(oauth2.ErrInvalidClient))
		return nil, err
	}

	if !client.GrantAllowed(p.GrantType) {
		m.metrics.CountGrantFailure(ctx, string(p.GrantType), string(oauth2.ErrUnauthorizedClient))
		return nil, oauth2.NewError(oauth2.ErrUnauthorizedClient, "grant type not allowed for this client")
	}

	var resp *oauth2.TokenResponse
	switch p.GrantType {
	case oauth2.AuthorizationCodeGrant:
		resp, err = m.exchangeAuthorizationCode(ctx, client, p)
	case oauth2.RefreshTokenGrant:
		resp, err = m.exchangeRefreshToken(ctx, client, p)
	case oauth2.ClientCredentialsGrant:
		resp, err = m.exchangeClientCredentials(ctx, client, p)
	default:
		err = oauth2.NewError(oauth2.ErrUnsupportedGrantType, "unsupported grant_type")
	}

	if err != nil {
		m.metrics.CountGrantFailure(ctx, string(p.GrantType), string(oauth2.AsError(err).Code))
		return nil, err
	}
	m.metrics.CountGrant(ctx, string(p.GrantType))
	return resp, nil
}

// authenticateClient resolves and authenticates the requesting client.
// Confidential clients must present their secret; public clients must not.
func (m *Manager) authenticateClient(ctx context.Context, clientID, clientSecret string) (*clients.Client, error) {
	if clientID == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "client_id is required")
	}
	client, err := m.clients.Get(ctx, clientID)
	if err != nil {
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "client authentication failed")
	}
	if err := client.VerifySecret(clientSecret); err != nil {
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "client authentication failed")
	}
	return client, nil
}

func (m *Manager) exchangeAuthorizationCode(ctx context.Context, client *clients.Client, p Params) (*oauth2.TokenResponse, error) {
	if p.Code == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "code is required")
	}

	now := m.nowTime()
	var resp *oauth2.TokenResponse
	var denied error
	err := m.store.InTx(ctx, func(tx Stores) error {
		// Compare-and-set: only one of two concurrent redemptions can
		// observe the used=false state.
		code, err := tx.Codes.Redeem(ctx, authcode.Hash(p.Code), client.ID, now)
		if err != nil {
			if errors.Is(err, authcode.ErrCodeNotFound) {
				return oauth2.NewError(oauth2.ErrInvalidGrant, "authorization code is invalid or already used")
			}
			return errors.Wrap(err, "[exchangeAuthorizationCode] Redeem")
		}

		// A failed verification still commits, burning the code. Rolling
		// back the redeem would leave it live for repeated verifier guesses.
		if denied = verifyRedemption(code, p, now); denied != nil {
			return nil
		}

		resp, err = m.mint(ctx, tx, mintRequest{
			client:         client,
			userID:         code.UserID,
			tenantID:       code.TenantID,
			scopes:         code.Scopes,
			nonce:          code.Nonce,
			includeRefresh: code.Scopes.Contains(oauth2.ScopeOfflineAccess),
			includeID:      code.Scopes.Contains(oauth2.ScopeOpenID),
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if denied != nil {
		return nil, denied
	}
	return resp, nil
}

// verifyRedemption checks the redeemed code against the token request:
// expiry, exact redirect match, and the PKCE verifier.
func verifyRedemption(code *authcode.Code, p Params, now time.Time) error {
	if code.Expired(now) {
		return oauth2.NewError(oauth2.ErrInvalidGrant, "authorization code expired")
	}
	if code.RedirectURI != p.RedirectURI {
		return oauth2.NewError(oauth2.ErrInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if code.CodeChallenge != "" {
		if p.CodeVerifier == "" {
			return oauth2.NewError(oauth2.ErrInvalidRequest, "code_verifier is required")
		}
		if !oauth2.VerifyCodeChallenge(code.CodeChallenge, code.CodeChallengeMethod, p.CodeVerifier) {
			return oauth2.NewError(oauth2.ErrInvalidGrant, "code_verifier does not match the code_challenge")
		}
	}
	return nil
}

func (m *Manager) exchangeRefreshToken(ctx context.Context, client *clients.Client, p Params) (*oauth2.TokenResponse, error) {
	if p.RefreshToken == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "refresh_token is required")
	}

	now := m.nowTime()
	stores := m.store.Stores()

	presented, err := stores.RefreshTokens.GetByHash(ctx, refresh.Hash(p.RefreshToken))
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "refresh token is invalid")
		}
		return nil, errors.Wrap(err, "[exchangeRefreshToken] GetByHash")
	}
	if presented.ClientID != client.ID {
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "refresh token is invalid")
	}
	if presented.Revoked {
		// Replay of a rotated or revoked token: contain the lineage before
		// failing the request.
		if err := m.containLineage(ctx, stores.RefreshTokens, presented, now); err != nil {
			return nil, err
		}
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "refresh token is invalid")
	}
	if presented.Expired(now) {
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "refresh token expired")
	}

	scopes := presented.Scopes
	if p.Scope != "" {
		requested, err := m.registry.Parse(p.Scope)
		if err != nil {
			return nil, oauth2.NewError(oauth2.ErrInvalidScope, "unknown scope")
		}
		if !requested.SubsetOf(presented.Scopes) {
			return nil, oauth2.NewError(oauth2.ErrInvalidScope, "requested scope exceeds the original grant")
		}
		scopes = requested
	}

	var resp *oauth2.TokenResponse
	err = m.store.InTx(ctx, func(tx Stores) error {
		rotated, err := tx.RefreshTokens.Revoke(ctx, presented.ID, refresh.ReasonRotated, now)
		if err != nil {
			return errors.Wrap(err, "[exchangeRefreshToken] Revoke")
		}
		if !rotated {
			return errRotationRaced
		}

		successor, plain, err := presented.Successor(scopes, now, client.RefreshTokenTTL(m.refreshTokenTTL))
		if err != nil {
			return errors.Wrap(err, "[exchangeRefreshToken] Successor")
		}
		if err := tx.RefreshTokens.Create(ctx, successor); err != nil {
			return errors.Wrap(err, "[exchangeRefreshToken] Create")
		}

		resp, err = m.mint(ctx, tx, mintRequest{
			client:    client,
			userID:    presented.UserID,
			tenantID:  presented.TenantID,
			scopes:    scopes,
			includeID: scopes.Contains(oauth2.ScopeOpenID) && presented.UserID != "",
		}, now)
		if err != nil {
			return err
		}
		resp.RefreshToken = plain
		return nil
	})
	if errors.Is(err, errRotationRaced) {
		// A concurrent request rotated the token between our read and the
		// conditional revoke. Same containment as replay.
		if cerr := m.containLineage(ctx, stores.RefreshTokens, presented, now); cerr != nil {
			return nil, cerr
		}
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "refresh token is invalid")
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// containLineage revokes every still-live descendant of the presented token.
// Runs outside the grant transaction so the containment persists even though
// the request itself fails.
func (m *Manager) containLineage(ctx context.Context, repo refresh.Repo, presented *refresh.Token, now time.Time) error {
	descendants, err := repo.Descendants(ctx, presented.ID)
	if err != nil {
		return errors.Wrap(err, "[containLineage] Descendants")
	}
	for _, d := range descendants {
		if d.Revoked {
			continue
		}
		if _, err := repo.Revoke(ctx, d.ID, refresh.ReasonReuseDetected, now); err != nil {
			return errors.Wrap(err, "[containLineage] Revoke")
		}
	}
	m.metrics.CountReuseDetected(ctx)
	return nil
}

func (m *Manager) exchangeClientCredentials(ctx context.Context, client *clients.Client, p Params) (*oauth2.TokenResponse, error) {
	if client.IsPublic() {
		return nil, oauth2.NewError(oauth2.ErrUnauthorizedClient, "client_credentials requires a confidential client")
	}

	scopes := client.DefaultScopes
	if p.Scope != "" {
		requested, err := m.registry.Parse(p.Scope)
		if err != nil {
			return nil, oauth2.NewError(oauth2.ErrInvalidScope, "unknown scope")
		}
		scopes = requested
	}
	if err := client.ValidateScopes(scopes); err != nil {
		return nil, oauth2.NewError(oauth2.ErrInvalidScope, "requested scope exceeds client allowance")
	}

	now := m.nowTime()
	var resp *oauth2.TokenResponse
	err := m.store.InTx(ctx, func(tx Stores) error {
		var err error
		// Principal is the client itself: no user, no refresh, no ID token.
		resp, err = m.mint(ctx, tx, mintRequest{
			client:   client,
			tenantID: client.TenantID,
			scopes:   scopes,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// mintRequest carries the converged inputs of the three grant paths.
type mintRequest struct {
	client         *clients.Client
	userID         string
	tenantID       string
	scopes         oauth2.ScopeSet
	nonce          string
	includeRefresh bool
	includeID      bool
}

// mint signs the access token, stores its record, and optionally mints a
// generation-1 refresh token and an ID token.
func (m *Manager) mint(ctx context.Context, tx Stores, req mintRequest, now time.Time) (*oauth2.TokenResponse, error) {
	signer, err := m.keys.Signer(ctx, req.tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[mint] keys.Signer")
	}

	accessTTL := req.client.AccessTokenTTL(m.accessTokenTTL)
	expiresAt := now.Add(accessTTL)
	subject := req.userID
	if subject == "" {
		subject = req.client.ID
	}

	jti := uuid.New().String()
	claims := jwt.MapClaims{
		"iss":       m.issuer,
		"sub":       subject,
		"aud":       m.audience,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
		"jti":       jti,
		"client_id": req.client.ID,
		"tenant":    req.tenantID,
		"scope":     req.scopes.String(),
	}

	signed, err := signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[mint] signer.Sign")
	}

	if err := tx.AccessTokens.Create(ctx, &AccessToken{
		ID:          jti,
		TokenHash:   refresh.Hash(signed),
		TokenPrefix: refresh.Prefix(signed),
		ClientID:    req.client.ID,
		UserID:      req.userID,
		TenantID:    req.tenantID,
		Scopes:      req.scopes.Clone(),
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}); err != nil {
		return nil, errors.Wrap(err, "[mint] AccessTokens.Create")
	}

	resp := &oauth2.TokenResponse{
		AccessToken: signed,
		TokenType:   oauth2.TokenTypeBearer,
		ExpiresIn:   int(accessTTL.Seconds()),
		Scope:       req.scopes.String(),
	}

	if req.includeRefresh {
		rt, plain, err := refresh.NewToken(req.client.ID, req.userID, req.tenantID, req.scopes, now, req.client.RefreshTokenTTL(m.refreshTokenTTL))
		if err != nil {
			return nil, errors.Wrap(err, "[mint] refresh.NewToken")
		}
		if err := tx.RefreshTokens.Create(ctx, rt); err != nil {
			return nil, errors.Wrap(err, "[mint] RefreshTokens.Create")
		}
		resp.RefreshToken = plain
	}

	if req.includeID && req.userID != "" {
		idToken, err := m.createIDToken(ctx, signer, req, now)
		if err != nil {
			return nil, errors.Wrap(err, "[mint] createIDToken")
		}
		resp.IDToken = idToken
	}

	return resp, nil
}

// createIDToken signs the OIDC ID token for a user principal. Profile and
// email claims are gated by the granted scopes.
func (m *Manager) createIDToken(ctx context.Context, signer keys.Signer, req mintRequest, now time.Time) (string, error) {
	user, err := m.users.GetByID(ctx, req.userID)
	if err != nil {
		return "", errors.Wrap(err, "users.GetByID")
	}

	claims := jwt.MapClaims{
		"iss":    m.issuer,
		"sub":    user.ID,
		"aud":    req.client.ID,
		"iat":    now.Unix(),
		"exp":    now.Add(m.idTokenTTL).Unix(),
		"jti":    uuid.New().String(),
		"tenant": req.tenantID,
	}
	if req.nonce != "" {
		claims["nonce"] = req.nonce
	}
	if req.scopes.Contains(oauth2.ScopeEmail) {
		claims["email"] = user.Email
		claims["email_verified"] = user.EmailVerified
	}
	if req.scopes.Contains(oauth2.ScopeProfile) {
		claims["name"] = user.Name()
		claims["given_name"] = user.FirstName
		claims["family_name"] = user.LastName
		if user.Picture != "" {
			claims["picture"] = user.Picture
		}
	}

	return signer.Sign(claims)
}
