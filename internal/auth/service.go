// Package auth logs users in and registers new stores. Passwords are
// stored as argon2id hashes; sessions travel as HS256 JWTs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
	"github.com/dmitrijs2005/shopkeeper/internal/syncengine"
)

type Service struct {
	eng      *syncengine.Engine
	secret   []byte
	validity time.Duration
	log      logging.Logger
}

func NewService(eng *syncengine.Engine, secret []byte, validity time.Duration, log logging.Logger) *Service {
	return &Service{eng: eng, secret: secret, validity: validity, log: log.With("component", "auth")}
}

// Result is what a successful login or registration hands back.
type Result struct {
	Token   string        `json:"token"`
	UserID  string        `json:"userId"`
	StoreID string        `json:"storeId"`
	Role    string        `json:"role"`
	Store   *models.Store `json:"store,omitempty"`
}

type Registration struct {
	StoreName   string `json:"storeName"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

func (s *Service) issue(u *models.User) (*Result, error) {
	sess := session.Session{UserID: u.ID, StoreID: u.StoreID, Role: u.Role}
	tok, err := GenerateToken(sess, s.secret, s.validity)
	if err != nil {
		return nil, err
	}
	return &Result{Token: tok, UserID: u.ID, StoreID: u.StoreID, Role: u.Role}, nil
}

// Login looks the user up across all stores.
func (s *Service) Login(ctx context.Context, username, password string) (*Result, error) {
	u, err := syncengine.For[models.User](s.eng).FindBy(ctx, "username", strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}

	ok, err := VerifyPassword(u.PasswordHash, password)
	if err != nil {
		s.log.Warn(ctx, "unreadable password hash", "user", u.ID, "error", err)
		return nil, common.ErrUnauthorized
	}
	if !ok {
		return nil, common.ErrUnauthorized
	}

	s.log.Info(ctx, "user logged in", "user", u.ID, "store", u.StoreID)
	return s.issue(u)
}

// Authenticate turns a bearer token into a session.
func (s *Service) Authenticate(token string) (*session.Session, error) {
	return ParseToken(token, s.secret)
}

// Register creates a store and its first admin user.
func (s *Service) Register(ctx context.Context, r Registration) (*Result, error) {
	r.Username = strings.TrimSpace(r.Username)
	if r.StoreName == "" || r.Username == "" || r.Password == "" {
		return nil, fmt.Errorf("%w: store name, username and password are required", common.ErrValidation)
	}

	users := syncengine.For[models.User](s.eng)
	_, err := users.FindBy(ctx, "username", r.Username)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: username %q is taken", common.ErrValidation, r.Username)
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	hash, err := HashPassword(r.Password)
	if err != nil {
		return nil, err
	}

	store, err := syncengine.For[models.Store](s.eng).Add(ctx, &models.Store{Name: r.StoreName})
	if err != nil {
		return nil, err
	}

	scoped := s.eng.ForSession(&session.Session{StoreID: store.ID, Role: session.RoleAdmin})
	u, err := syncengine.For[models.User](scoped).Add(ctx, &models.User{
		Base:         models.Base{StoreID: store.ID},
		Username:     r.Username,
		PasswordHash: hash,
		Role:         session.RoleAdmin,
		DisplayName:  r.DisplayName,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "store registered", "store", store.ID, "user", u.ID)
	res, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	res.Store = store
	return res, nil
}
