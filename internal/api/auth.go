package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-livechat/internal/types"
)

const (
	DefaultTokenExpiration = time.Hour * 12

	tokenCookieKey = "token"
	tokenQueryKey  = "token"

	agentIdClaim   = "agent-id"
	agentNameClaim = "agent-name"
	expClaim       = "exp"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

type contextKey string

const agentKey contextKey = "agent"

func WithAgent(ctx context.Context, agent types.Agent) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}

func AgentFromContext(ctx context.Context) (types.Agent, bool) {
	agent, ok := ctx.Value(agentKey).(types.Agent)
	return agent, ok
}

// NewAgentToken signs a token identifying agent, valid for exp.
func NewAgentToken(signingKey []byte, agent types.Agent, exp time.Duration) (string, error) {
	if agent.Id == "" {
		return "", errors.New("agent id cannot be empty")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		agentIdClaim:   agent.Id,
		agentNameClaim: agent.Name,
		expClaim:       time.Now().Add(exp).Unix(),
	})

	return token.SignedString(signingKey)
}

func verifyToken(signingKey []byte, tokenString string) (types.Agent, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return types.Agent{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return types.Agent{}, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Agent{}, fmt.Errorf("invalid token claims")
	}

	agentId, ok := claims[agentIdClaim].(string)
	if !ok || agentId == "" {
		return types.Agent{}, fmt.Errorf("invalid agent id claim")
	}
	agentName, _ := claims[agentNameClaim].(string)

	return types.Agent{Id: agentId, Name: agentName}, nil
}

// tokenFromRequest looks for the token in the Authorization header, then
// the token query parameter (browsers cannot set headers on websocket
// upgrades), then the token cookie.
func tokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			return "", fmt.Errorf("malformed authorization header")
		}
		return token, nil
	}

	if token := r.URL.Query().Get(tokenQueryKey); token != "" {
		return token, nil
	}

	if c, err := r.Cookie(tokenCookieKey); err == nil && c.Value != "" {
		return c.Value, nil
	}

	return "", errMissingToken
}
