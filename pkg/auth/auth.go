package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// AnonymousSubject is the identity used when verification is disabled.
const AnonymousSubject = "anonymous"

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the verified caller of a request.
type Identity struct {
	Subject   string
	ExpiresAt time.Time
}

// Service verifies bearer tokens issued by the external identity provider.
type Service interface {
	Start(ctx context.Context) error
	Stop() error

	Enabled() bool
	ValidateToken(token string) (*Identity, error)
}

// service implements Service.
type service struct {
	log     logrus.FieldLogger
	enabled bool
	secret  []byte
	issuer  string
	parser  *jwt.Parser
}

// Ensure service implements Service.
var _ Service = (*service)(nil)

// NewService creates a new auth service.
func NewService(log logrus.FieldLogger, cfg config.AuthConfig) Service {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}

	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &service{
		log:     log.WithField("component", "auth"),
		enabled: cfg.IsEnabled(),
		secret:  []byte(cfg.JWTSecret),
		issuer:  cfg.Issuer,
		parser:  jwt.NewParser(opts...),
	}
}

// Start initializes the auth service.
func (s *service) Start(_ context.Context) error {
	if !s.enabled {
		s.log.Warn("Token verification is disabled, all requests are allowed")

		return nil
	}

	s.log.WithField("issuer", s.issuer).Info("Starting auth service")

	return nil
}

// Stop shuts down the auth service.
func (s *service) Stop() error {
	s.log.Info("Stopping auth service")

	return nil
}

// Enabled reports whether tokens are verified.
func (s *service) Enabled() bool {
	return s.enabled
}

// ValidateToken verifies an HS256 token and returns its subject.
func (s *service) ValidateToken(token string) (*Identity, error) {
	if !s.enabled {
		return &Identity{Subject: AnonymousSubject}, nil
	}

	if token == "" {
		return nil, ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}

	parsed, err := s.parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	identity := &Identity{Subject: claims.Subject}

	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	return identity, nil
}
