package prefsync

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/store"
)

// handleHealth reports liveness. It never touches the stores: the daemon
// is healthy as long as it can serve, even with the remote down, because
// every read and write has a mirror-backed degraded path.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Saved filter handlers.

func (a *App) handleListFilters(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.svc.Filters.List(r.Context()))
}

func (a *App) handleSaveFilter(w http.ResponseWriter, r *http.Request) {
	var filter models.SavedFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	saved, err := a.svc.Filters.Save(r.Context(), &filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	a.metrics.observeSave(models.KindSavedFilters, saved.Pending)
	respondJSON(w, http.StatusCreated, saved)
}

func (a *App) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["id"]
	removed := a.svc.Filters.Delete(r.Context(), key)
	if removed {
		a.metrics.observeDelete(models.KindSavedFilters)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// Favorite person handlers.

func (a *App) handleListFavoritePersons(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.svc.FavoritePersons.List(r.Context()))
}

func (a *App) handleAddFavoritePerson(w http.ResponseWriter, r *http.Request) {
	var fav models.FavoritePerson
	if err := json.NewDecoder(r.Body).Decode(&fav); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	stored, created, err := a.svc.FavoritePersons.Ensure(r.Context(), &fav)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		a.metrics.observeSave(models.KindFavoritePersons, stored.Pending)
		status = http.StatusCreated
	}
	respondJSON(w, status, stored)
}

func (a *App) handleAddFavoritePersonsBatch(w http.ResponseWriter, r *http.Request) {
	var favs []*models.FavoritePerson
	if err := json.NewDecoder(r.Body).Decode(&favs); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	added, err := a.svc.FavoritePersons.EnsureAll(r.Context(), favs)
	if err != nil && added == 0 {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"added": added})
}

func (a *App) handleFavoritePersonExists(w http.ResponseWriter, r *http.Request) {
	exists := a.svc.FavoritePersons.Exists(r.Context(), mux.Vars(r)["id"])
	respondJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (a *App) handleDeleteFavoritePerson(w http.ResponseWriter, r *http.Request) {
	removed := a.svc.FavoritePersons.Delete(r.Context(), mux.Vars(r)["id"])
	if removed {
		a.metrics.observeDelete(models.KindFavoritePersons)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// Favorite company handlers.

func (a *App) handleListFavoriteCompanies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.svc.FavoriteCompanies.List(r.Context()))
}

func (a *App) handleAddFavoriteCompany(w http.ResponseWriter, r *http.Request) {
	var fav models.FavoriteCompany
	if err := json.NewDecoder(r.Body).Decode(&fav); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	stored, created, err := a.svc.FavoriteCompanies.Ensure(r.Context(), &fav)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		a.metrics.observeSave(models.KindFavoriteCompanies, stored.Pending)
		status = http.StatusCreated
	}
	respondJSON(w, status, stored)
}

func (a *App) handleAddFavoriteCompaniesBatch(w http.ResponseWriter, r *http.Request) {
	var favs []*models.FavoriteCompany
	if err := json.NewDecoder(r.Body).Decode(&favs); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	added, err := a.svc.FavoriteCompanies.EnsureAll(r.Context(), favs)
	if err != nil && added == 0 {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"added": added})
}

func (a *App) handleFavoriteCompanyExists(w http.ResponseWriter, r *http.Request) {
	exists := a.svc.FavoriteCompanies.Exists(r.Context(), mux.Vars(r)["id"])
	respondJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (a *App) handleDeleteFavoriteCompany(w http.ResponseWriter, r *http.Request) {
	removed := a.svc.FavoriteCompanies.Delete(r.Context(), mux.Vars(r)["id"])
	if removed {
		a.metrics.observeDelete(models.KindFavoriteCompanies)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// handleReconcile triggers a reconciliation run for the caller's owner and
// returns its report.
func (a *App) handleReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := a.svc.Reconcile(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	a.metrics.observeReconcile(rep)
	respondJSON(w, http.StatusOK, rep)
}

// respondServiceError maps the two errors the preference service lets
// through to HTTP statuses. Anything else is unexpected by contract and
// reported as a server error.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, store.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "No authenticated owner")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
