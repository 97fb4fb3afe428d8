package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/conformsync/internal/server/store"
	"github.com/gorilla/mux"
)

// recordKeys returns the body keys that may hold the records of table.
func recordKeys(table string) []string {
	return []string{table, "data", "items"}
}

func (r *Router) syncTable(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	table := mux.Vars(req)["table"]

	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodySize)).Decode(&body); err != nil || body == nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var userID string
	if raw, ok := body["userId"]; ok {
		_ = json.Unmarshal(raw, &userID)
	}
	if userID == "" {
		userID = req.URL.Query().Get("userId")
	}
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	records := []json.RawMessage{}
	for _, key := range recordKeys(table) {
		raw, ok := body[key]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			break
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an array", key))
			return
		}
		break
	}

	deviceID := req.Header.Get(DeviceIDHeader)
	if err := r.store.Replace(ctx, userID, table, deviceID, records); err != nil {
		if errors.Is(err, store.ErrInvalidRecord) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.log.Error(ctx, "sync failed", "table", table, "user", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	notified := 0
	if r.notifier != nil {
		notified = r.notifier.NotifySynced(userID, deviceID, table)
	}
	r.log.Info(ctx, "table synced", "table", table, "user", userID, "device", deviceID, "records", len(records), "notified", notified)

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%d records synced", len(records)),
		"count":   len(records),
	})
}

func (r *Router) loadTable(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	table := mux.Vars(req)["table"]
	userID := req.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	records, err := r.store.Load(ctx, userID, table)
	if err != nil {
		r.log.Error(ctx, "load failed", "table", table, "user", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		table:     records,
	})
}

func (r *Router) checkDBAccess(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Ping(req.Context()); err != nil {
		r.log.Warn(req.Context(), "database unreachable", "error", err)
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "database reachable",
	})
}
