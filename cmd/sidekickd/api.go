package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sidekick/connectivity"
	"github.com/hazyhaar/sidekick/idgen"
	"github.com/hazyhaar/sidekick/kit"
	"github.com/hazyhaar/sidekick/netguard"
	"github.com/hazyhaar/sidekick/shield"
	"github.com/hazyhaar/sidekick/store"
	"github.com/hazyhaar/sidekick/tools"
)

// maxBody bounds request bodies; copy_html carries whole documents.
const maxBody = 16 << 20

// newHandler builds the HTTP surface. Every /api route goes through the
// operation router, so configured remote routes apply to it as well.
func newHandler(router *connectivity.Router, mcpSrv *mcp.Server, rl *shield.RateLimiter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.APIStack(rl) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "ok", "operations": router.Services()})
	})

	// One message in, one Response out; failures are reported in the body.
	r.Post("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		body, err := netguard.LimitedReadAll(r.Body, maxBody)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		resp := router.DispatchJSON(r.Context(), body)
		if resp.ID == "" {
			resp.ID = kit.GetRequestID(r.Context())
		}
		writeJSON(w, 200, resp)
	})

	r.Post("/api/call/{op}", func(w http.ResponseWriter, r *http.Request) {
		body, err := netguard.LimitedReadAll(r.Body, maxBody)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		if len(body) == 0 {
			body = []byte("{}")
		}
		call(w, r, router, chi.URLParam(r, "op"), body)
	})

	r.Get("/api/snapshots", func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			writeError(w, 400, err)
			return
		}
		payload, _ := json.Marshal(map[string]any{"page_url": r.URL.Query().Get("page_url"), "limit": limit})
		call(w, r, router, tools.OpListSnapshots, payload)
	})

	r.Get("/api/snapshots/{id}", func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(map[string]string{"id": chi.URLParam(r, "id")})
		call(w, r, router, tools.OpGetSnapshot, payload)
	})

	if mcpSrv != nil {
		r.With(shield.MaxBody(maxBody)).Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	}

	logger.Debug("sidekickd: routes mounted", "operations", len(router.Services()))
	return r
}

// call runs op and writes its raw JSON result, or an error status derived
// from the failure.
func call(w http.ResponseWriter, r *http.Request, router *connectivity.Router, op string, payload []byte) {
	out, err := router.Call(r.Context(), op, payload)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	w.Write(out)
}

func statusFor(err error) int {
	var notFound *connectivity.ErrServiceNotFound
	var invalid *connectivity.ErrInvalidPayload
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, netguard.ErrPrivateAddress), errors.Is(err, netguard.ErrUnsafeScheme):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// requestContext tags the request with an ID and the http transport.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = idgen.Request()
		}
		ctx := kit.WithRequestID(r.Context(), reqID)
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
