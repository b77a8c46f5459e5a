// Package linktoken issues and verifies the signed tokens embedded in
// unsubscribe and forward links.
package linktoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 180 * 24 * time.Hour

// Kind distinguishes the two link types. Each kind has its own secret.
type Kind int

const (
	Unsubscribe Kind = iota
	Forward
)

func (k Kind) String() string {
	if k == Forward {
		return "forward"
	}
	return "unsubscribe"
}

var (
	ErrMissingSecret = errors.New("linktoken: secret is required")
	ErrMissingClaim  = errors.New("linktoken: email and campaign id are required")
)

// Payload is what a verified token carries. Email is empty for forward tokens.
type Payload struct {
	Email      string
	CampaignID string
}

type claims struct {
	Email      string `json:"email,omitempty"`
	CampaignID string `json:"campaignId"`
	jwt.RegisteredClaims
}

// Codec signs tokens with HS256.
type Codec struct {
	unsubscribeSecret []byte
	forwardSecret     []byte
	ttl               time.Duration
	now               func() time.Time
}

// NewCodec builds a Codec. A zero ttl means DefaultTTL.
func NewCodec(unsubscribeSecret, forwardSecret string, ttl time.Duration) (*Codec, error) {
	if unsubscribeSecret == "" || forwardSecret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		unsubscribeSecret: []byte(unsubscribeSecret),
		forwardSecret:     []byte(forwardSecret),
		ttl:               ttl,
		now:               time.Now,
	}, nil
}

func (c *Codec) secret(k Kind) []byte {
	if k == Forward {
		return c.forwardSecret
	}
	return c.unsubscribeSecret
}

func (c *Codec) sign(k Kind, cl claims, issuedAt time.Time) (string, error) {
	cl.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   k.String(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret(k))
}

// IssueUnsubscribe signs {email, campaignId}.
func (c *Codec) IssueUnsubscribe(email, campaignID string, issuedAt time.Time) (string, error) {
	if email == "" || campaignID == "" {
		return "", ErrMissingClaim
	}
	return c.sign(Unsubscribe, claims{Email: email, CampaignID: campaignID}, issuedAt)
}

// IssueForward signs {campaignId}.
func (c *Codec) IssueForward(campaignID string, issuedAt time.Time) (string, error) {
	if campaignID == "" {
		return "", ErrMissingClaim
	}
	return c.sign(Forward, claims{CampaignID: campaignID}, issuedAt)
}

// Verify returns the token's payload. Any failure (expired, malformed, wrong
// secret, wrong algorithm or wrong kind) yields false.
func (c *Codec) Verify(token string, k Kind) (Payload, bool) {
	if token == "" {
		return Payload{}, false
	}
	var cl claims
	parsed, err := jwt.ParseWithClaims(token, &cl, func(*jwt.Token) (interface{}, error) {
		return c.secret(k), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(k.String()),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return Payload{}, false
	}
	if cl.CampaignID == "" || (k == Unsubscribe && cl.Email == "") {
		return Payload{}, false
	}
	return Payload{Email: cl.Email, CampaignID: cl.CampaignID}, true
}

// UnsubscribeURL is {base}/v1/unsubscribe/{token}.
func UnsubscribeURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/v1/unsubscribe/" + token
}

// ForwardURL is {base}/v1/forward/{token}.
func ForwardURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/v1/forward/" + token
}
