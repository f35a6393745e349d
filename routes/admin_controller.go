package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/hashicorp/go-multierror"
	"github.com/mbolis/airform-sync/airtable"
	"github.com/mbolis/airform-sync/app"
	"github.com/mbolis/airform-sync/database"
	"github.com/mbolis/airform-sync/httpx"
	"github.com/mbolis/airform-sync/log"
	"github.com/mbolis/airform-sync/logic"
	"github.com/mbolis/airform-sync/model"
)

func ListBases(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bases, err := app.Airtable.Bases(r.Context())
		if err != nil {
			airtableError(w, "airtable.list_bases", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"bases": bases,
		})
	}
}

func ListTables(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tables, err := app.Airtable.Tables(r.Context(), chi.URLParam(r, "baseId"))
		if err != nil {
			airtableError(w, "airtable.list_tables", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"tables": tables,
		})
	}
}

func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := model.Form{}
		err := render.DecodeJSON(r.Body, &form)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		s, _ := httpx.SessionFrom(r.Context())
		form.Owner = s.Username

		form, ok := buildForm(app, w, r, form)
		if !ok {
			return
		}

		form, err = app.CreateForm(r.Context(), form)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form", err)
			return
		}

		log.WithFields(log.Fields{"form": form.ID, "owner": form.Owner}).Info("form created")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, form)
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forms, err := app.DB.ListForms(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.get_forms", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

func GetForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		form, err := app.DB.GetForm(r.Context(), formId)
		if errors.Is(err, database.ErrNotFound) {
			httpx.LogNotFound(w, "get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		render.JSON(w, r, form)
	}
}

// UpdateForm stores a new version of a form. The request must carry the
// version it was edited from.
func UpdateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		form := model.Form{}
		err := render.DecodeJSON(r.Body, &form)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if form.Version < 1 {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.form_version", "version is required")
			return
		}
		form.ID = formId

		form, ok := buildForm(app, w, r, form)
		if !ok {
			return
		}

		form, err = app.DB.UpdateForm(r.Context(), form)
		switch {
		case errors.Is(err, database.ErrNotFound):
			httpx.LogNotFound(w, "update_form", formId)
			return
		case errors.Is(err, database.ErrConflict):
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "db.update_form.verify.conflict")
			return
		case err != nil:
			httpx.LogInternalError(w, "db.update_form", err)
			return
		}

		log.WithFields(log.Fields{"form": form.ID, "version": form.Version}).Info("form updated")
		render.JSON(w, r, form)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		err := app.DB.DeleteForm(r.Context(), formId)
		switch {
		case errors.Is(err, database.ErrNotFound):
			httpx.LogNotFound(w, "delete_form", formId)
			return
		case errors.Is(err, database.ErrConflict):
			httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, "db.delete_form.responses", "form %s has responses", formId)
			return
		case err != nil:
			httpx.LogInternalError(w, "db.delete_form", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// GetFormResponses lists the responses of a form, most recent first.
func GetFormResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId := chi.URLParam(r, "id")

		_, err := app.DB.GetForm(r.Context(), formId)
		if errors.Is(err, database.ErrNotFound) {
			httpx.LogNotFound(w, "get_responses", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		responses, err := app.ListResponses(r.Context(), formId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

// GetPendingResponses lists the responses still Pending after the age given
// by the olderThan query parameter, or the configured one.
func GetPendingResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		age := app.Config.PendingAfter
		if q := r.URL.Query().Get("olderThan"); q != "" {
			d, err := time.ParseDuration(q)
			if err != nil || d < 0 {
				httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.older_than", "invalid duration %q", q)
				return
			}
			age = d
		}

		responses, err := app.ListPending(r.Context(), time.Now().Add(-age))
		if err != nil {
			httpx.LogInternalError(w, "db.get_pending", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

// buildForm checks form against the current schema of its table. On failure
// the response has been written.
func buildForm(app app.App, w http.ResponseWriter, r *http.Request, form model.Form) (model.Form, bool) {
	var catalog model.Catalog
	if form.Bound() {
		var err error
		catalog, err = freshCatalog(r.Context(), app, form.BaseID, form.TableID)
		if errors.Is(err, airtable.ErrTableNotFound) {
			httpx.LogStatusJSON(w, r, http.StatusUnprocessableEntity, log.DebugLevel, "build_form.table", map[string]any{
				"errors": []string{err.Error()},
			})
			return form, false
		}
		if err != nil {
			airtableError(w, "airtable.get_fields", err)
			return form, false
		}
	}

	built, err := logic.Build(form, catalog)
	if err != nil {
		httpx.LogStatusJSON(w, r, http.StatusUnprocessableEntity, log.DebugLevel, "build_form", map[string]any{
			"errors": errorList(err),
		})
		return form, false
	}
	return built, true
}

func freshCatalog(ctx context.Context, app app.App, baseID, tableID string) (model.Catalog, error) {
	app.Schema.Invalidate(baseID, tableID)
	return app.Schema.Fields(ctx, baseID, tableID)
}

func errorList(err error) []string {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []string{err.Error()}
	}
	list := make([]string, len(merr.Errors))
	for i, e := range merr.Errors {
		list[i] = e.Error()
	}
	return list
}

func airtableError(w http.ResponseWriter, code string, err error) {
	var apiErr *airtable.APIError
	switch {
	case errors.Is(err, airtable.ErrNotConfigured):
		httpx.LogStatusMsg(w, http.StatusServiceUnavailable, log.WarnLevel, code, "%v", err)
	case errors.As(err, &apiErr):
		httpx.LogStatusMsg(w, http.StatusBadGateway, log.WarnLevel, code, "%v", err)
	default:
		httpx.LogInternalError(w, code, err)
	}
}
