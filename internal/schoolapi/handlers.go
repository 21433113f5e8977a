package schoolapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"schoolcore/pkg/middleware"
	"schoolcore/pkg/tenantdb"
)

type schoolView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

type storeView struct {
	SchoolID     string    `json:"schoolId"`
	State        string    `json:"state"`
	Entities     []string  `json:"entities"`
	LastVerified time.Time `json:"lastVerified"`
}

func storeViewFor(h *tenantdb.Handle) storeView {
	return storeView{
		SchoolID:     h.SchoolID(),
		State:        h.State().String(),
		Entities:     h.BoundEntities(),
		LastVerified: h.LastVerified(),
	}
}

// getSession reports the caller's resolved tenant and store state.
func (a *App) getSession(w http.ResponseWriter, r *http.Request) {
	out, ok := middleware.SessionFrom(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	resp := map[string]any{"superadmin": out.Superadmin}
	if out.HasSchool() {
		resp["school"] = schoolView{ID: out.School.ID, Name: out.School.Name, Domain: out.School.Domain}
		if out.Conn != nil {
			resp["store"] = storeViewFor(out.Conn)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// listConnections reports every live cached connection.
func (a *App) listConnections(w http.ResponseWriter, r *http.Request) {
	handles := a.pool.Active(r.Context())
	out := make([]storeView, 0, len(handles))
	for _, h := range handles {
		out = append(out, storeViewFor(h))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out})
}

// evictConnection drops a school's cached connection; the next request for
// that school rebuilds it.
func (a *App) evictConnection(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolID")
	if !a.pool.Evict(schoolID) {
		http.Error(w, "no cached connection", http.StatusNotFound)
		return
	}
	a.log.Infow("connection evicted by admin", "school", schoolID)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
