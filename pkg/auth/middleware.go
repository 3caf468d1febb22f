package auth

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/chainsafe/custody-vault/pkg/app/errors"
	apphttp "github.com/chainsafe/custody-vault/pkg/app/http"
)

const (
	defaultMaxBody        = 1 << 20
	defaultSignatureTTL   = 5 * time.Minute
	defaultReplayCapacity = 100_000
)

// Options tunes signed request verification.
type Options struct {
	// MaxBody bounds signed request bodies.
	MaxBody int64
	// TTL is the furthest in the future a deadline may lie.
	TTL time.Duration
	// ReplayCapacity bounds how many unexpired requests are remembered.
	ReplayCapacity int
	Now            func() time.Time
}

// Middleware authenticates callers and stores the principal in the request context.
type Middleware struct {
	jwt     *JWTValidator
	maxBody int64
	ttl     time.Duration
	replays *replayCache
	now     func() time.Time
}

// NewMiddleware creates a Middleware. jwt may be nil when bearer tokens are not accepted.
func NewMiddleware(jwt *JWTValidator, opts Options) *Middleware {
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxBody
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultSignatureTTL
	}
	if opts.ReplayCapacity <= 0 {
		opts.ReplayCapacity = defaultReplayCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Middleware{
		jwt:     jwt,
		maxBody: opts.MaxBody,
		ttl:     opts.TTL,
		replays: newReplayCache(opts.ReplayCapacity),
		now:     opts.Now,
	}
}

// RequireSignature accepts only requests signed by the caller.
func (m *Middleware) RequireSignature(next http.Handler) http.Handler {
	return apphttp.HandleError(func(w http.ResponseWriter, r *http.Request) error {
		r, err := m.verifySignature(r)
		if err != nil {
			return err
		}
		next.ServeHTTP(w, r)
		return nil
	})
}

// RequireSignatureOrBearer additionally accepts a JWKS-validated bearer token.
func (m *Middleware) RequireSignatureOrBearer(next http.Handler) http.Handler {
	return apphttp.HandleError(func(w http.ResponseWriter, r *http.Request) error {
		if token, ok := bearerToken(r); ok {
			if !m.jwt.IsConfigured() {
				return apperrors.UnAuthorizedError(nil, "bearer tokens are not accepted")
			}
			principal, err := m.jwt.Principal(r.Context(), token)
			if err != nil {
				return apperrors.UnAuthorizedError(err, "invalid bearer token")
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal, MethodBearer)))
			return nil
		}

		r, err := m.verifySignature(r)
		if err != nil {
			return err
		}
		next.ServeHTTP(w, r)
		return nil
	})
}

// verifySignature checks the signature over the request payload, the
// deadline window and that the request was not accepted before.
func (m *Middleware) verifySignature(r *http.Request) (*http.Request, error) {
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		return nil, apperrors.UnAuthorizedError(nil, "signature required")
	}
	signer, err := ParseAddress(r.Header.Get(SignerHeader))
	if err != nil {
		return nil, apperrors.UnAuthorizedError(err, "signer required")
	}
	deadline, err := strconv.ParseInt(r.Header.Get(DeadlineHeader), 10, 64)
	if err != nil {
		return nil, apperrors.UnAuthorizedError(err, "signature deadline required")
	}

	now := m.now()
	switch {
	case now.Unix() > deadline:
		return nil, apperrors.UnAuthorizedError(nil, "signature expired")
	case time.Unix(deadline, 0).After(now.Add(m.ttl)):
		return nil, apperrors.BadRequestError(nil, "signature deadline too far in the future")
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, m.maxBody+1))
	if err != nil {
		return nil, apperrors.BadRequestError(err, "failed to read request")
	}
	if int64(len(body)) > m.maxBody {
		return nil, apperrors.BadRequestError(nil, "request body too large")
	}

	payload := RequestPayload(r.Method, r.URL.RequestURI(), deadline, body)
	recovered, err := VerifyEIP191Signature(payload, sig)
	if err != nil {
		return nil, apperrors.UnAuthorizedError(err, "invalid signature")
	}
	if recovered != signer {
		return nil, apperrors.UnAuthorizedError(nil, "signature does not match signer")
	}

	if err := m.replays.claim(signer, payload, deadline, now.Unix()); err != nil {
		if errors.Is(err, errReplayWindowFull) {
			return nil, apperrors.DependencyError(err, "signed request window is full, retry later")
		}
		return nil, apperrors.UnAuthorizedError(err, err.Error())
	}

	r = r.WithContext(WithPrincipal(r.Context(), signer, MethodSignature))
	r.Body = io.NopCloser(bytes.NewReader(body))
	return r, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}
