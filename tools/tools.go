// Package tools is the operation table of sidekickd. Every operation is a
// connectivity.Handler registered under its name, so the HTTP message API,
// MCP and remote routes all reach the same code.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/sidekick/audit"
	"github.com/hazyhaar/sidekick/blockname"
	"github.com/hazyhaar/sidekick/connectivity"
	"github.com/hazyhaar/sidekick/pagecopy"
	"github.com/hazyhaar/sidekick/store"
)

// Operation names.
const (
	OpBlockName     = "block_name"
	OpBlockClasses  = "block_classes"
	OpMetaDisplay   = "meta_display"
	OpCopyPage      = pagecopy.OpCopyPage
	OpCopyHTML      = pagecopy.OpCopyHTML
	OpGetSnapshot   = "get_snapshot"
	OpListSnapshots = "list_snapshots"
	OpListCalls     = "list_calls"
)

// Service wires the operations to their backends. Copier, Store and Audit
// are optional: without them the operations they back are not registered
// and calls to them fail as unknown operations.
type Service struct {
	Copier      *pagecopy.Copier
	Store       *store.Store
	Audit       *audit.Logger
	Logger      *slog.Logger
	CallTimeout time.Duration
}

// Register adds every available operation to router, wrapped in logging,
// the call log when Audit is set, a timeout and panic recovery.
func (s *Service) Register(router *connectivity.Router) {
	for op, h := range s.handlers() {
		router.RegisterLocal(op, connectivity.Chain(s.middlewares(op)...)(h))
	}
	if s.Copier != nil {
		for op, h := range s.Copier.Handlers() {
			router.RegisterLocal(op, connectivity.Chain(s.middlewares(op)...)(h))
		}
	}
}

func (s *Service) middlewares(op string) []connectivity.HandlerMiddleware {
	logger := s.logger()
	mws := []connectivity.HandlerMiddleware{connectivity.Logging(logger, op)}
	if s.Audit != nil {
		mws = append(mws, s.Audit.Middleware(op))
	}
	if s.CallTimeout > 0 {
		mws = append(mws, connectivity.Timeout(s.CallTimeout))
	}
	return append(mws, connectivity.Recovery(logger))
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) handlers() map[string]connectivity.Handler {
	hs := map[string]connectivity.Handler{
		OpBlockName:    handleBlockName,
		OpBlockClasses: handleBlockClasses,
		OpMetaDisplay:  handleMetaDisplay,
	}
	if s.Store != nil {
		hs[OpGetSnapshot] = s.handleGetSnapshot
		hs[OpListSnapshots] = s.handleListSnapshots
	}
	if s.Audit != nil {
		hs[OpListCalls] = s.handleListCalls
	}
	return hs
}

func decode(op string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return &connectivity.ErrInvalidPayload{Service: op, Cause: err}
	}
	return nil
}

func invalid(op, format string, args ...any) error {
	return &connectivity.ErrInvalidPayload{Service: op, Cause: fmt.Errorf(format, args...)}
}

// handleBlockName payload: {"classes": ["cards", "wide"]} or the raw
// attribute {"class": "cards wide"}.
func handleBlockName(_ context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Classes []string `json:"classes"`
		Class   string   `json:"class"`
	}
	if err := decode(OpBlockName, payload, &req); err != nil {
		return nil, err
	}
	tokens := req.Classes
	if len(tokens) == 0 {
		tokens = strings.Fields(req.Class)
	}
	return json.Marshal(map[string]string{"name": blockname.ClassNameToBlockName(tokens)})
}

// handleBlockClasses payload: {"name": "Cards (wide)"}
func handleBlockClasses(_ context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(OpBlockClasses, payload, &req); err != nil {
		return nil, err
	}
	return json.Marshal(map[string][]string{"classes": blockname.ToBlockCSSClassNames(req.Name)})
}

// handleMetaDisplay payload: {"key": "publication-date"}
func handleMetaDisplay(_ context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Key string `json:"key"`
	}
	if err := decode(OpMetaDisplay, payload, &req); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"display": blockname.MetaToDisplay(req.Key)})
}

// handleGetSnapshot payload: {"id": "snap_..."}
func (s *Service) handleGetSnapshot(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decode(OpGetSnapshot, payload, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, invalid(OpGetSnapshot, "id is required")
	}
	snap, err := s.Store.Get(ctx, req.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("snapshot %s: %w", req.ID, err)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// handleListSnapshots payload: {"page_url": "...", "limit": 20}
func (s *Service) handleListSnapshots(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		PageURL string `json:"page_url"`
		Limit   int    `json:"limit"`
	}
	if err := decode(OpListSnapshots, payload, &req); err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, invalid(OpListSnapshots, "limit must not be negative")
	}
	list, err := s.Store.List(ctx, req.PageURL, req.Limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"snapshots": list})
}

// handleListCalls payload: {"operation": "copy_page", "status": "error", "limit": 50}
func (s *Service) handleListCalls(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Operation string `json:"operation"`
		Status    string `json:"status"`
		Limit     int    `json:"limit"`
	}
	if err := decode(OpListCalls, payload, &req); err != nil {
		return nil, err
	}
	switch req.Status {
	case "", "success", "error":
	default:
		return nil, invalid(OpListCalls, "status must be success or error")
	}
	calls, err := s.Audit.Query(ctx, audit.Filter{Operation: req.Operation, Status: req.Status, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"calls": calls})
}
