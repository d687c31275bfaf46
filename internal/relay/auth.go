package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/credentials"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	AccessTTL  = 72 * time.Hour
	RefreshTTL = 30 * 24 * time.Hour

	claimsKey    = "claims"
	refreshToken = "refresh"
)

// Claims are carried by every token the relay issues.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Kind     string `json:"kind,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// Access mints an access token for u, valid for ttl.
func (i *Issuer) Access(u *User, ttl time.Duration) (string, error) {
	return i.sign(&Claims{
		UserID:           u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Role:             u.Role,
		RegisteredClaims: i.registered(u.ID, ttl),
	})
}

func (i *Issuer) Refresh(userID string) (string, error) {
	return i.sign(&Claims{
		UserID:           userID,
		Kind:             refreshToken,
		RegisteredClaims: i.registered(userID, RefreshTTL),
	})
}

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (i *Issuer) sign(c *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
}

// Parse validates signature and expiry.
func (i *Issuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, errs.Wrap("parse token", errs.ErrUnauthorized, err.Error())
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, errs.Wrap("parse token", errs.ErrUnauthorized, "invalid claims")
	}
	return claims, nil
}

// requireAuth validates the bearer access token and stores its claims.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		return
	}

	claims, err := s.issuer.Parse(token)
	if err != nil || claims.Kind == refreshToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	c.Set(claimsKey, claims)
	c.Next()
}

func claimsFrom(c *gin.Context) *Claims {
	return c.MustGet(claimsKey).(*Claims)
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.internalError(c, "hash password", err)
		return
	}

	role := credentials.RoleMember
	if s.isAdmin(req.Email) {
		role = credentials.RoleAdmin
	}
	u := &User{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(hash),
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateUser(c.Request.Context(), u); err != nil {
		if errors.Is(err, errs.ErrExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
			return
		}
		s.internalError(c, "create user", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User successfully registered"})
}

func (s *Server) isAdmin(email string) bool {
	return len(s.admins) == 0 || s.admins[strings.ToLower(email)]
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields"})
		return
	}

	u, err := s.store.UserByEmail(c.Request.Context(), req.Email)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password))
	}
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	access, err := s.issuer.Access(u, AccessTTL)
	if err != nil {
		s.internalError(c, "sign access token", err)
		return
	}
	refresh, err := s.issuer.Refresh(u.ID)
	if err != nil {
		s.internalError(c, "sign refresh token", err)
		return
	}
	c.JSON(http.StatusOK, api.TokenResponse{AccessToken: access, RefreshToken: refresh})
}

func (s *Server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	claims, err := s.issuer.Parse(req.RefreshToken)
	if err != nil || claims.Kind != refreshToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}
	u, err := s.store.UserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
		return
	}

	access, err := s.issuer.Access(u, AccessTTL)
	if err != nil {
		s.internalError(c, "sign access token", err)
		return
	}
	c.JSON(http.StatusOK, api.TokenResponse{AccessToken: access})
}

// invitations lists the caller's unused, unexpired invitations.
func (s *Server) invitations(c *gin.Context) {
	claims := claimsFrom(c)
	if claims.Email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Email not found in token"})
		return
	}

	all, err := s.store.InvitationsFor(c.Request.Context(), claims.Email)
	if err != nil {
		s.internalError(c, "list invitations", err)
		return
	}
	now := time.Now()
	out := make([]api.Invitation, 0, len(all))
	for _, inv := range all {
		if !inv.Used && now.Before(inv.ExpiresAt) {
			out = append(out, inv)
		}
	}
	c.JSON(http.StatusOK, out)
}
