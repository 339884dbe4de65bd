package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/audit"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/httputil"
	"github.com/iwandwip/intan-kiosk/internal/util"
)

const DeviceSignatureHeader = "X-Device-Signature"

// DeviceSignatureMiddleware authenticates the station firmware by an HMAC of
// the request body keyed with the shared device secret.
type DeviceSignatureMiddleware struct {
	secret string
}

func NewDeviceSignatureMiddleware(secret string) *DeviceSignatureMiddleware {
	return &DeviceSignatureMiddleware{secret: secret}
}

func (m *DeviceSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			log.Warn().Msg("device signature verification bypassed: DEVICE_SECRET is not configured")
			next.ServeHTTP(w, r)
			return
		}

		signature := r.Header.Get(DeviceSignatureHeader)
		if signature == "" {
			log.Warn().Msg("device signature middleware: missing signature header")
			httputil.WriteError(w, apperrors.InvalidSignature())
			return
		}

		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(r.Body)
			if err != nil {
				log.Error().Err(err).Msg("device signature middleware: failed to read body")
				httputil.WriteError(w, apperrors.InvalidInput("body", "could not be read"))
				return
			}
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed := util.SignDeviceBody(m.secret, body)
		if !util.ConstantTimeEqual(computed, signature) {
			log.Warn().Msg("device signature middleware: invalid signature")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventSignatureFailure})
			httputil.WriteError(w, apperrors.InvalidSignature())
			return
		}

		next.ServeHTTP(w, r)
	})
}
