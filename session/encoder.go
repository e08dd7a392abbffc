package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-server/token"
)

// Encoder turns a session record into a signed compact string and back.
type Encoder interface {
	Encode(rec Record) (string, error)
	Decode(value string) (Record, error)
}

// RecordEncoder signs session records with the same envelope scheme as token
// envelopes, using a signing key dedicated to sessions. Session envelopes
// carry no expiry; their lifetime is the cookie's.
type RecordEncoder struct {
	signer  token.Signer
	nowFunc func() time.Time
}

// RecordEncoderOption configures a RecordEncoder.
type RecordEncoderOption func(*RecordEncoder)

// WithEncoderNowFunc overrides the issued-at clock.
func WithEncoderNowFunc(now func() time.Time) RecordEncoderOption {
	return func(e *RecordEncoder) {
		e.nowFunc = now
	}
}

// NewRecordEncoder creates an encoder over the given signer.
func NewRecordEncoder(signer token.Signer, options ...RecordEncoderOption) *RecordEncoder {
	e := &RecordEncoder{signer: signer, nowFunc: time.Now}
	for _, opt := range options {
		opt(e)
	}
	return e
}

var _ Encoder = (*RecordEncoder)(nil)

// Encode validates the record and signs it.
func (e *RecordEncoder) Encode(rec Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", errors.Wrap(err, "[RecordEncoder.Encode] validate record")
	}

	claims := jwt.MapClaims{
		"accounts": rec.AccountIDs,
		"iat":      e.nowFunc().Unix(),
	}
	if rec.CurrentID != "" {
		claims["current"] = rec.CurrentID
	}

	value, err := e.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[RecordEncoder.Encode] sign record")
	}
	return value, nil
}

// Decode verifies the signature and rebuilds the record. Any failure, from a
// bad signature to claims that break the record invariants, comes back as
// ErrSessionInvalid.
func (e *RecordEncoder) Decode(value string) (Record, error) {
	parsed, err := jwt.Parse(value, e.signer.GetVerificationKey)
	if err != nil || !parsed.Valid {
		return Record{}, errors.Wrapf(ErrSessionInvalid, "[RecordEncoder.Decode] parse: %v", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Record{}, errors.Wrap(ErrSessionInvalid, "[RecordEncoder.Decode] unexpected claims type")
	}

	rawAccounts, ok := claims["accounts"].([]any)
	if !ok {
		return Record{}, errors.Wrap(ErrSessionInvalid, "[RecordEncoder.Decode] missing accounts claim")
	}

	rec := Record{AccountIDs: make([]string, 0, len(rawAccounts))}
	for _, raw := range rawAccounts {
		id, ok := raw.(string)
		if !ok {
			return Record{}, errors.Wrap(ErrSessionInvalid, "[RecordEncoder.Decode] non-string account id")
		}
		rec.AccountIDs = append(rec.AccountIDs, id)
	}
	if len(rec.AccountIDs) == 0 {
		rec.AccountIDs = nil
	}
	if current, ok := claims["current"].(string); ok {
		rec.CurrentID = current
	}

	if err := rec.Validate(); err != nil {
		return Record{}, errors.Wrap(err, "[RecordEncoder.Decode] validate record")
	}
	return rec, nil
}
