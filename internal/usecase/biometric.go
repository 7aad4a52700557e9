package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
	"github.com/arclightapps/identity-gateway/internal/infra/security"
	"github.com/arclightapps/identity-gateway/internal/repository"
)

const defaultNonceTTL = 2 * time.Minute

// BiometricService coordinates device-key enrollment and biometric
// re-authentication. The device holds the private key in its secure enclave;
// this service stores the public key, hands out single-use nonces, and checks
// signatures. Availability is checked before any attempt so an unenrolled
// account fails closed with a specific error instead of failing generically.
type BiometricService struct {
	provider port.CredentialProvider
	keys     port.BiometricKeyRepository
	nonces   port.BiometricNonceStore
	verifier port.BiometricVerifier
	security *SecurityService
	logger   *zap.Logger
	timeout  time.Duration
	nonceTTL time.Duration
	now      func() time.Time
}

// NewBiometricService constructs the biometric flow coordinator.
func NewBiometricService(
	provider port.CredentialProvider,
	keys port.BiometricKeyRepository,
	nonces port.BiometricNonceStore,
	verifier port.BiometricVerifier,
	securitySvc *SecurityService,
	log *zap.Logger,
) (*BiometricService, error) {
	if provider == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("biometric key repository is required")
	}
	if nonces == nil {
		return nil, fmt.Errorf("biometric nonce store is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("biometric verifier is required")
	}
	if securitySvc == nil {
		return nil, fmt.Errorf("security service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &BiometricService{
		provider: provider,
		keys:     keys,
		nonces:   nonces,
		verifier: verifier,
		security: securitySvc,
		logger:   log,
		nonceTTL: defaultNonceTTL,
		now:      time.Now,
	}, nil
}

// WithProviderTimeout bounds provider calls made during biometric flows.
func (s *BiometricService) WithProviderTimeout(timeout time.Duration) *BiometricService {
	s.timeout = timeout
	return s
}

// WithNonceTTL overrides the challenge nonce lifetime.
func (s *BiometricService) WithNonceTTL(ttl time.Duration) *BiometricService {
	if ttl > 0 {
		s.nonceTTL = ttl
	}
	return s
}

func (s *BiometricService) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// Available reports whether biometric authentication can be attempted for the
// authenticated user: the device must have reported a capability at enrollment
// time and a key must be on file.
func (s *BiometricService) Available(ctx context.Context, accessToken string) (bool, error) {
	userID, err := s.resolveUserID(ctx, accessToken)
	if err != nil {
		return false, err
	}

	exists, err := s.keys.ExistsByUserID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check biometric keys: %w", err)
	}

	return exists, nil
}

// Enroll stores the device public key for the authenticated user, replacing
// any previous enrollment.
func (s *BiometricService) Enroll(ctx context.Context, accessToken, publicKeyPEM, biometryType, deviceID string, client ClientInfo) error {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return fmt.Errorf("public key is required")
	}
	if strings.TrimSpace(biometryType) == "" {
		return ErrBiometricNotAvailable
	}

	userID, err := s.resolveUserID(ctx, accessToken)
	if err != nil {
		return err
	}

	key := port.BiometricKey{
		UserID:       userID,
		PublicKeyPEM: publicKeyPEM,
		BiometryType: biometryType,
		DeviceID:     deviceID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.keys.Save(ctx, key); err != nil {
		return fmt.Errorf("save biometric key: %w", err)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventBiometricEnabled,
		UserID:    userID,
		Severity:  domain.SeverityMedium,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"biometry_type": biometryType},
	})

	return nil
}

// Challenge issues a single-use nonce the device must sign. The nonce expires
// after a short TTL and is consumed by the next Authenticate call.
func (s *BiometricService) Challenge(ctx context.Context, accessToken string) (string, error) {
	userID, err := s.resolveUserID(ctx, accessToken)
	if err != nil {
		return "", err
	}

	exists, err := s.keys.ExistsByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("check biometric keys: %w", err)
	}
	if !exists {
		return "", ErrBiometricNotAvailable
	}

	nonce, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	if err := s.nonces.Put(ctx, userID, nonce, s.nonceTTL); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}

	return nonce, nil
}

// Authenticate verifies the device signature over the previously issued nonce
// and returns the authenticated user snapshot. The nonce is consumed before
// verification so a captured signature cannot be replayed.
func (s *BiometricService) Authenticate(ctx context.Context, accessToken, signature string, client ClientInfo) (*domain.AuthUser, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("signature is required")
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	user, err := s.provider.GetUser(pctx, accessToken)
	if err != nil {
		return nil, MapProviderError(err)
	}

	key, err := s.keys.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBiometricNotAvailable
		}
		return nil, fmt.Errorf("load biometric key: %w", err)
	}

	nonce, err := s.nonces.Consume(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordAuthFailure(ctx, user.ID, client, "challenge missing or expired")
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("consume nonce: %w", err)
	}

	if err := s.verifier.VerifySignature(key.PublicKeyPEM, nonce, signature); err != nil {
		s.recordAuthFailure(ctx, user.ID, client, "signature verification failed")
		return nil, ErrAuthenticationFailed
	}

	account, err := newAuthUserFromProvider(user)
	if err != nil {
		return nil, fmt.Errorf("normalize provider identity: %w", err)
	}
	account.Metadata.BiometricEnabled = true

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventBiometricAuthSuccess,
		UserID:    user.ID,
		Severity:  domain.SeverityLow,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"biometry_type": key.BiometryType},
	})

	return account, nil
}

// Unenroll deletes the stored device key.
func (s *BiometricService) Unenroll(ctx context.Context, accessToken string, client ClientInfo) error {
	userID, err := s.resolveUserID(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := s.keys.DeleteByUserID(ctx, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("delete biometric key: %w", err)
	}

	s.logger.Info("biometric enrollment removed", zap.String("user_id", userID))
	return nil
}

func (s *BiometricService) resolveUserID(ctx context.Context, accessToken string) (string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return "", ErrUserNotAuthenticated
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	user, err := s.provider.GetUser(pctx, accessToken)
	if err != nil {
		return "", MapProviderError(err)
	}

	return user.ID, nil
}

func (s *BiometricService) recordAuthFailure(ctx context.Context, userID string, client ClientInfo, reason string) {
	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventBiometricAuthFailed,
		UserID:    userID,
		Severity:  domain.SeverityMedium,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"reason": reason},
	})
}
