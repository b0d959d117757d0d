package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/betadomot/storefront/api/responses"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
	"github.com/betadomot/storefront/pkg/logger"
	pkgredis "github.com/betadomot/storefront/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// CartIdempotencyTTL covers retried cart mutations such as a double-clicked add.
	CartIdempotencyTTL = 24 * time.Hour
	// SubmitIdempotencyTTL keeps order submissions replayable for a week.
	SubmitIdempotencyTTL = 7 * 24 * time.Hour

	// pendingTTL bounds how long a crashed request can block its key.
	pendingTTL = time.Minute

	// maxIdempotentBodyBytes matches the JSON body limit the controllers enforce.
	maxIdempotentBodyBytes = 1 << 20
)

func readBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large").
			WithDetails(map[string]any{"max_bytes": tooLarge.Limit})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request")
}

// idempotencyRecord is stored under the key. A pending record marks a request
// that is still running.
type idempotencyRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency makes a route safe to retry with an Idempotency-Key header.
//
// The first request claims the key and runs. A success (status below 400) is
// stored for ttl and replayed for later requests with the same key and body. A
// failure releases the key so the shopper can retry. A repeat that arrives
// while the first is still running is refused with a conflict. Requests
// without the header, and every request when store is nil, pass straight through.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBodyBytes))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, readBodyError(err))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			g := idempotencyGuard{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(idempotencyScope(r), clientKey),
				hash:  hashBody(body),
			}

			claimed, err := g.claim(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				g.replay(w, r)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			finished := false
			defer func() {
				if !finished {
					g.release(r.Context())
				}
			}()
			next.ServeHTTP(rec, r)
			finished = true
			g.finish(r.Context(), rec, ttl)
		})
	}
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
	key   string
	hash  string
}

func (g idempotencyGuard) claim(ctx context.Context) (bool, error) {
	pending, err := json.Marshal(idempotencyRecord{Pending: true, RequestHash: g.hash})
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, g.key, string(pending), pendingTTL)
}

func (g idempotencyGuard) replay(w http.ResponseWriter, r *http.Request) {
	stored, err := g.store.Get(r.Context(), g.key)
	switch {
	case errors.Is(err, redis.Nil):
		// the claim expired or was released between SetNX and Get
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	case err != nil:
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != g.hash {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.Pending {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

// finish stores a success or releases the key after a failure. The request
// context may already be cancelled by a disconnected client, so the store
// calls run detached from it.
func (g idempotencyGuard) finish(ctx context.Context, rec *responseCapture, ttl time.Duration) {
	status := rec.statusCode()
	if status >= http.StatusBadRequest {
		g.release(ctx)
		return
	}

	payload, err := json.Marshal(idempotencyRecord{
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
		RequestHash: g.hash,
	})
	if err != nil {
		g.logError(ctx, "idempotency.marshal_failed", err)
		g.release(ctx)
		return
	}
	if err := g.store.Set(context.WithoutCancel(ctx), g.key, string(payload), ttl); err != nil {
		g.logError(ctx, "idempotency.persist_failed", err)
	}
}

func (g idempotencyGuard) release(ctx context.Context) {
	if err := g.store.Del(context.WithoutCancel(ctx), g.key); err != nil {
		g.logError(ctx, "idempotency.release_failed", err)
	}
}

func (g idempotencyGuard) logError(ctx context.Context, msg string, err error) {
	if g.logg != nil {
		g.logg.Error(g.logg.WithField(ctx, "idempotency_key", g.key), msg, err)
	}
}

// idempotencyScope keeps one session's keys from colliding with another's,
// and one route's from another route's.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{SessionIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
