package handlers

import (
	"context"
	"fmt"
	"net/http"
)

// Diagnostic actions of sync-debug.php.
const (
	ActionRepairSync       = "repair_sync"
	ActionCheckTables      = "check_tables"
	ActionResetQueue       = "reset_queue"
	ActionRemoveDuplicates = "remove_duplicates"
	ActionFixID            = "fix_id"
)

func (r *Router) syncDebug(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	q := req.URL.Query()
	action, userID, table := q.Get("action"), q.Get("userId"), q.Get("table")

	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var (
		out map[string]any
		err error
	)
	switch action {
	case ActionRepairSync:
		out, err = count(ctx, "applied", "queue entries applied", func(ctx context.Context) (int, error) {
			return r.store.ApplyQueue(ctx, userID)
		})
	case ActionResetQueue:
		out, err = count(ctx, "removed", "queue entries removed", func(ctx context.Context) (int, error) {
			return r.store.ResetQueue(ctx, userID)
		})
	case ActionCheckTables:
		stats, e := r.store.CheckTables(ctx, userID)
		out, err = map[string]any{"message": fmt.Sprintf("%d tables checked", len(stats)), "tables": stats}, e
	case ActionRemoveDuplicates, ActionFixID:
		if table == "" {
			respondError(w, http.StatusBadRequest, "table is required")
			return
		}
		if action == ActionFixID {
			out, err = count(ctx, "fixed", "ids assigned", func(ctx context.Context) (int, error) {
				return r.store.FixIDs(ctx, userID, table)
			})
		} else {
			out, err = count(ctx, "removed", "duplicates removed", func(ctx context.Context) (int, error) {
				return r.store.RemoveDuplicates(ctx, userID, table)
			})
		}
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", action))
		return
	}

	if err != nil {
		r.log.Error(ctx, "diagnostic failed", "action", action, "user", userID, "table", table, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	r.log.Info(ctx, "diagnostic done", "action", action, "user", userID, "table", table)
	out["success"] = true
	out["action"] = action
	respondJSON(w, http.StatusOK, out)
}

func count(ctx context.Context, key, what string, fn func(context.Context) (int, error)) (map[string]any, error) {
	n, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{key: n, "message": fmt.Sprintf("%d %s", n, what)}, nil
}
