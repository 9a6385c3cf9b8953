package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/affiliora/internal/auth/domain"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/config"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Users userdomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	secret []byte
	clock  clock.Clock
	users  userdomain.Repository
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if strings.TrimSpace(p.Cfg.AuthJWTSecret) == "" {
		p.Log.Warn("AUTH_JWT_SECRET is empty, every bearer token will be rejected")
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("auth.service"),
		secret: []byte(strings.TrimSpace(p.Cfg.AuthJWTSecret)),
		clock:  clk,
		users:  p.Users,
	}
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*userdomain.User, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrMissingToken
	}
	if len(s.secret) == 0 {
		return nil, domain.ErrMissingSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		s.log.Debug("bearer token rejected", zap.Error(err))
		return nil, domain.ErrInvalidToken
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || userID == 0 {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}
