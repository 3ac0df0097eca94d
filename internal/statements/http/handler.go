package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/buildledger/statements/internal/ledger"
	"github.com/buildledger/statements/internal/platform/httpx"
	"github.com/buildledger/statements/internal/statements"
	"github.com/buildledger/statements/internal/statements/export"
)

const maxReconcileBody = 16 << 20

// Options tunes presentation and limits of the handler.
type Options struct {
	Export           export.Options
	ExportsPerMinute int
}

// Handler wires HTTP interactions for party statements.
type Handler struct {
	logger    *slog.Logger
	service   *statements.Service
	export    export.Options
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the statements handler.
func NewHandler(logger *slog.Logger, service *statements.Service, opts Options) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("statements handler: service required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := opts.ExportsPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	limiter := httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{logger: logger, service: service, export: opts.Export, rateLimit: limiter}, nil
}

// MountRoutes registers the statement endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/statements", func(r chi.Router) {
		r.Post("/reconcile", h.HandleReconcile)
		r.Post("/invalidate", h.HandleInvalidate)
		r.Get("/{party}/{id}", h.HandleGet)
		r.Get("/{party}/{id}/feed", h.HandleFeed)
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Get("/{party}/{id}/export.{format}", h.HandleExport)
		})
	})
}

// HandleGet returns the JSON statement of one party.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromURL(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.service.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.present(report))
}

// HandleFeed returns the combined revenue/collection/expense feed.
// With format=csv the feed is streamed as a CSV download.
func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromURL(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	basis, err := parseBasis(r.URL.Query().Get("basis"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	feed, err := h.service.Feed(r.Context(), req, basis)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		httpx.Attachment(w, export.ContentType("csv"), fileName("feed", req, "csv"))
		if err := export.WriteFeedCSV(w, feed.Entries, feed.Summary, h.export); err != nil {
			h.logger.Error("statements: stream feed csv", slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, feed)
}

// HandleExport renders the statement as csv, xlsx or pdf.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(chi.URLParam(r, "format"))
	switch format {
	case "csv", "xlsx", "pdf":
	default:
		h.fail(w, r, fmt.Errorf("%w: unsupported export format %q", statements.ErrInvalidRequest, format))
		return
	}
	req, err := requestFromURL(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.service.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st := report.Statement
	name := fileName("statement", req, format)
	switch format {
	case "csv":
		httpx.Attachment(w, export.ContentType(format), name)
		if err := export.WriteStatementCSV(w, st, h.export); err != nil {
			h.logger.Error("statements: stream csv", slog.Any("error", err))
		}
		return
	case "xlsx":
		data, err := export.BuildStatementXLSX(st, h.export)
		h.sendFile(w, r, export.ContentType(format), name, data, err)
	case "pdf":
		data, err := export.BuildStatementPDF(st, h.export)
		h.sendFile(w, r, export.ContentType(format), name, data, err)
	}
}

type reconcilePayload struct {
	PartyType string                     `json:"party_type"`
	PartyID   string                     `json:"party_id"`
	PartyName string                     `json:"party_name"`
	From      string                     `json:"from"`
	To        string                     `json:"to"`
	Records   map[string][]ledger.Record `json:"records"`
}

// HandleReconcile reconciles records pushed by the caller without touching the database.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	var payload reconcilePayload
	if err := httpx.DecodeJSON(w, r, &payload, maxReconcileBody); err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := statements.ParseDate(payload.From)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := statements.ParseDate(payload.To)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bundle := make(statements.Bundle, len(payload.Records))
	for name, records := range payload.Records {
		bundle[ledger.Category(strings.TrimSpace(name))] = records
	}
	req := statements.Request{PartyType: strings.TrimSpace(payload.PartyType), PartyID: payload.PartyID, From: from, To: to}
	report, err := h.service.ReconcileBundle(r.Context(), req, bundle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report.Statement.Party.Name = strings.TrimSpace(payload.PartyName)
	httpx.JSON(w, http.StatusOK, h.present(report))
}

// HandleInvalidate drops every cached statement.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.fail(w, r, httpx.Classify(httpx.ErrUnavailable, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) present(report statements.Report) statements.Report {
	places := h.export.Places
	if places <= 0 {
		places = export.DefaultPlaces
	}
	report.Statement = report.Statement.Rounded(places)
	return report
}

func (h *Handler) sendFile(w http.ResponseWriter, r *http.Request, contentType, name string, data []byte, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Attachment(w, contentType, name)
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, statements.ErrInvalidRequest):
		err = httpx.Classify(httpx.ErrValidation, err)
	case errors.Is(err, statements.ErrPartyNotFound):
		err = httpx.Classify(httpx.ErrNotFound, err)
	default:
		h.logger.Error("statements: request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func requestFromURL(r *http.Request) (statements.Request, error) {
	q := r.URL.Query()
	from, err := statements.ParseDate(q.Get("from"))
	if err != nil {
		return statements.Request{}, err
	}
	to, err := statements.ParseDate(q.Get("to"))
	if err != nil {
		return statements.Request{}, err
	}
	return statements.Request{
		PartyType: strings.ToLower(chi.URLParam(r, "party")),
		PartyID:   chi.URLParam(r, "id"),
		From:      from,
		To:        to,
	}, nil
}

func parseBasis(raw string) (ledger.FeedBasis, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ledger.Accrual):
		return ledger.Accrual, nil
	case string(ledger.Cash):
		return ledger.Cash, nil
	}
	return "", fmt.Errorf("%w: basis must be accrual or cash", statements.ErrInvalidRequest)
}

func fileName(kind string, req statements.Request, ext string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, req.PartyID)
	return fmt.Sprintf("%s-%s-%s.%s", kind, req.PartyType, id, ext)
}
