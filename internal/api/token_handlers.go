package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (app *App) GenerateTokenHandler(w http.ResponseWriter, r *http.Request) {
	token, err := app.Gate.Issue(r.Context())
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"link":    fmt.Sprintf("%s/annotate/%s", strings.TrimRight(app.FrontendURL, "/"), token),
	})
}

func (app *App) ValidateTokenHandler(w http.ResponseWriter, r *http.Request) {
	ok, err := app.Gate.Validate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "valid": true})
}
