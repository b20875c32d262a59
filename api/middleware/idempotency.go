package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/posledger-backend/api/responses"
	"github.com/angelmondragon/posledger-backend/api/validators"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/posledger-backend/pkg/redis"
)

const (
	IdempotencyHeader     = "Idempotency-Key"
	ReplayedHeader        = "Idempotent-Replayed"
	DefaultIdempotencyTTL = 24 * time.Hour

	// how long a reservation survives if the process dies mid-request
	inFlightTTL = 2 * time.Minute

	statePending  = "pending"
	stateComplete = "complete"
)

type idempotencyRecord struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes a mutating endpoint safe to retry. The first request for a
// key reserves it, runs the handler and stores the response for ttl; repeats
// with the same body get that response replayed. A repeat that arrives while
// the first is still running, or that carries a different body, is rejected.
// 5xx responses release the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
			if err != nil {
				msg := "read request body"
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					msg = fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(scopeOf(r), clientKey)

			raw, _ := json.Marshal(idempotencyRecord{State: statePending, RequestHash: hash})
			reservation := string(raw)
			reserved, err := store.SetNX(ctx, key, reservation, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Dependency(err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(w, r, store, key, hash, logg)
				return
			}

			// only our own pending record is released; a reservation that
			// expired and was re-claimed belongs to the other request
			release := func() {
				if _, err := store.CompareAndDelete(context.WithoutCancel(ctx), key, reservation); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
			}

			capture := &responseCapture{ResponseWriter: w}
			settled := false
			defer func() {
				if !settled {
					release()
				}
			}()
			next.ServeHTTP(capture, r)
			settled = true

			status := capture.statusOrOK()
			if status >= http.StatusInternalServerError {
				release()
				return
			}

			done, _ := json.Marshal(idempotencyRecord{
				State:       stateComplete,
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(ctx, key, string(done), ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, hash string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if pkgredis.IsNil(err) {
		// the holder released the key between our SETNX and GET
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being retried, try again"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Dependency(err, "load idempotency record"))
		return
	}

	var rec idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Dependency(err, "decode idempotency record"))
		return
	}
	if rec.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if rec.State != stateComplete {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	}

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// scopeOf binds a client key to the actor, store and path it was first used
// with, so the same key on another endpoint is a different request.
func scopeOf(r *http.Request) string {
	return strings.Join([]string{
		ActorIDFromContext(r.Context()).String(),
		StoreIDFromContext(r.Context()).String(),
		r.Method,
		r.URL.Path,
	}, "|")
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
