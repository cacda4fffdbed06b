package services

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/alphabatem/common/context"
	"github.com/scribeline/meter_api/dto"
)

// JWTService issues and verifies the bearer tokens guarding the admin
// endpoints (entitlement and plan management). Tokens carry an admin role
// claim and are minted out of band; setting MINT_ADMIN_TOKEN to an operator
// name logs a fresh token once at startup for bootstrap.
type JWTService struct {
	context.DefaultService

	tokenTTL  time.Duration
	secretKey []byte
}

const JWT_SVC = "jwt_svc"

const (
	tokenIssuer = "scribeline"
	roleAdmin   = "admin"
)

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (svc JWTService) Id() string {
	return JWT_SVC
}

func (svc *JWTService) Configure(ctx *context.Context) error {
	svc.tokenTTL = 24 * time.Hour
	svc.secretKey = []byte(os.Getenv("JWT_OAUTH_SECRET"))
	return svc.DefaultService.Configure(ctx)
}

func (svc *JWTService) Start() error {
	if len(svc.secretKey) == 0 {
		return errors.New("JWT_OAUTH_SECRET is not set")
	}

	if subject := os.Getenv("MINT_ADMIN_TOKEN"); subject != "" {
		pair, err := svc.IssueAdminToken(subject)
		if err != nil {
			return err
		}
		log.WithField("subject", subject).Infof("Bootstrap admin token: %s", pair.AccessToken)
	}
	return nil
}

// IssueAdminToken mints a signed admin token for the given operator subject.
func (svc *JWTService) IssueAdminToken(subject string) (*dto.TokenPair, error) {
	now := time.Now()
	claims := &adminClaims{
		Role: roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(svc.tokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secretKey)
	if err != nil {
		return nil, err
	}

	return &dto.TokenPair{
		AccessToken: signed,
		ExpiresIn:   int64(svc.tokenTTL.Seconds()),
	}, nil
}

// Verify checks signature, issuer, expiry and the admin role, returning the
// token subject.
func (svc *JWTService) Verify(tokenString string) (string, error) {
	var claims adminClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (interface{}, error) { return svc.secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}

	if claims.Role != roleAdmin {
		return "", errors.New("token lacks admin role")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// BearerToken strips the Bearer scheme from an Authorization header value.
func (svc *JWTService) BearerToken(authHeader string) (string, error) {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return "", errors.New("missing or malformed Authorization header")
	}
	return token, nil
}
