package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Codec seals Claims into compact signed envelopes and opens them again.
// Verification failures are ordinary error values wrapping ErrTokenInvalid;
// the codec never panics, whatever the input looks like.
type Codec struct {
	signer  Signer
	issuer  string
	nowFunc func() time.Time
}

type CodecOption func(*Codec)

// WithIssuer stamps every minted envelope with an issuer claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// WithCodecNowFunc sets the clock used for minting and expiry checks
// (primarily for testing).
func WithCodecNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func NewCodec(signer Signer, options ...CodecOption) *Codec {
	c := &Codec{
		signer:  signer,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Sign mints an envelope from claims. A ttl of zero produces an envelope
// without an expiry. IssuedAt, TokenID and Issuer are filled here; callers
// set Subject, Kind, IsRefresh and the provider fields.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("[Codec.Sign] subject is required")
	}
	if !claims.Kind.Valid() {
		return "", errors.Errorf("[Codec.Sign] unknown account kind %q", claims.Kind)
	}

	now := c.nowFunc()
	claims.IssuedAt = now
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl)
	} else {
		claims.ExpiresAt = time.Time{}
	}
	if claims.TokenID == "" {
		claims.TokenID = uuid.New().String()
	}
	if claims.Issuer == "" {
		claims.Issuer = c.issuer
	}

	signed, err := c.signer.Sign(claims.toMapClaims())
	if err != nil {
		return "", errors.Wrap(err, "[Codec.Sign] signer.Sign")
	}
	return signed, nil
}

// Verify opens an envelope and validates signature and expiry. Anything that
// is not a well-formed, authentic, unexpired envelope comes back as an error
// wrapping ErrTokenInvalid: empty strings, wrong segment counts, garbage
// segments, foreign signatures, expired envelopes.
func (c *Codec) Verify(raw string) (Claims, error) {
	return c.parse(raw, true)
}

// VerifyAsKind layers the refresh/access expectation on Verify. Presenting
// the wrong flavour fails with ErrTokenTypeMismatch.
func (c *Codec) VerifyAsKind(raw string, wantRefresh bool) (Claims, error) {
	claims, err := c.Verify(raw)
	if err != nil {
		return Claims{}, err
	}
	if claims.IsRefresh != wantRefresh {
		if wantRefresh {
			return Claims{}, errors.Wrap(ErrTokenTypeMismatch, "expected a refresh token")
		}
		return Claims{}, errors.Wrap(ErrTokenTypeMismatch, "expected an access token")
	}
	return claims, nil
}

// Decode opens an envelope checking only authenticity, not expiry. Revocation
// uses it to pull wrapped provider tokens out of envelopes that have already
// lapsed.
func (c *Codec) Decode(raw string) (Claims, error) {
	return c.parse(raw, false)
}

func (c *Codec) parse(raw string, validateExpiry bool) (Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return Claims{}, invalidToken(errors.New("empty token"))
	}

	opts := []jwt.ParserOption{jwt.WithTimeFunc(c.nowFunc)}
	if !validateExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.NewParser(opts...).Parse(raw, c.signer.GetVerificationKey)
	if err != nil {
		return Claims{}, invalidToken(err)
	}
	if !parsed.Valid {
		return Claims{}, invalidToken(errors.New("token failed validation"))
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, invalidToken(errors.New("unexpected claims shape"))
	}

	claims, err := claimsFromMap(mapClaims)
	if err != nil {
		return Claims{}, invalidToken(err)
	}
	return claims, nil
}
