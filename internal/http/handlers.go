package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"subtrack/internal/core"
	"subtrack/internal/store"
)

const (
	overviewCacheKey = "overview"
	trendCacheKey    = "trend"
)

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		subs []core.Subscription
		err  error
	)
	switch sort := strings.TrimSpace(r.URL.Query().Get("sort")); sort {
	case "":
		subs, err = s.svc.List(ctx)
	case string(core.SortHighest), string(core.SortLowest), string(core.SortNearest):
		subs, err = s.svc.Sorted(ctx, core.SortCriterion(sort))
	default:
		writeError(w, http.StatusBadRequest, "unknown sort criterion: "+sort)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "List subscriptions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	if subs == nil {
		subs = []core.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sub core.Subscription
	if err := decodeJSON(r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.svc.Create(ctx, sub)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(ctx, "Create subscription failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		slog.ErrorContext(r.Context(), "Get subscription failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sub core.Subscription
	if err := decodeJSON(r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub.ID = r.PathValue("id")

	updated, err := s.svc.Update(ctx, sub)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "subscription not found")
		case isValidationError(err):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			slog.ErrorContext(ctx, "Update subscription failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update subscription")
		}
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.svc.Delete(ctx, r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		slog.ErrorContext(ctx, "Delete subscription failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	s.invalidateAggregates()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if overview, ok := s.overviewCache.Get(overviewCacheKey); ok {
		writeJSON(w, http.StatusOK, overview)
		return
	}

	overview, err := s.svc.Overview(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}

	s.overviewCache.Set(overviewCacheKey, overview)
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if trend, ok := s.trendCache.Get(trendCacheKey); ok {
		writeJSON(w, http.StatusOK, trend)
		return
	}

	trend, err := s.svc.Trend(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Trend failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute trend")
		return
	}

	s.trendCache.Set(trendCacheKey, trend)
	writeJSON(w, http.StatusOK, trend)
}

func (s *Server) handleUpcomingRenewals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := queryInt(r, "days", 30)
	if days < 0 {
		writeError(w, http.StatusBadRequest, "days must not be negative")
		return
	}

	subs, err := s.svc.Upcoming(ctx, days)
	if err != nil {
		slog.ErrorContext(ctx, "Upcoming renewals failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list upcoming renewals")
		return
	}

	if subs == nil {
		subs = []core.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleRenewalTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	months := queryInt(r, "months", 12)
	if months < 1 || months > 24 {
		writeError(w, http.StatusBadRequest, "months must be between 1 and 24")
		return
	}

	groups, err := s.svc.Timeline(ctx, months)
	if err != nil {
		slog.ErrorContext(ctx, "Renewal timeline failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build renewal timeline")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.svc.Preferences(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Load preferences failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var prefs core.Preferences
	if err := decodeJSON(r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.svc.UpdatePreferences(ctx, prefs); err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(ctx, "Update preferences failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update preferences")
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Export(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export subscriptions")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="subscriptions-backup.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	count, err := s.svc.Import(ctx, data)
	if err != nil {
		// Parse rejections carry the offending detail; surface them as-is.
		if strings.Contains(err.Error(), "invalid") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.ErrorContext(ctx, "Import failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to import subscriptions")
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrEmptyLabel) ||
		errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrInvalidInterval) ||
		errors.Is(err, core.ErrInvalidCurrency) ||
		errors.Is(err, core.ErrInvalidReminderDays)
}
