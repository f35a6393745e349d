package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/airform-sync/app"
	"github.com/mbolis/airform-sync/database"
	"github.com/mbolis/airform-sync/httpx"
	"github.com/mbolis/airform-sync/log"
	"github.com/mbolis/airform-sync/logic"
	"github.com/mbolis/airform-sync/model"
)

type answersRequest struct {
	Answers map[string]json.RawMessage `json:"answers"`
}

func PublicGetForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := liveForm(app, w, r)
		if !ok {
			return
		}

		render.JSON(w, r, form)
	}
}

// PublicVisibility tells which questions are shown for the given, possibly
// partial, answers.
func PublicVisibility(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := liveForm(app, w, r)
		if !ok {
			return
		}

		answers, ok := parseAnswers(w, r, form)
		if !ok {
			return
		}

		visible := logic.Visibility(form, answers)
		byField := make(map[string]bool, len(visible))
		for i, q := range form.Questions {
			byField[q.FieldID] = visible[i]
		}

		render.JSON(w, r, map[string]any{
			"visible": byField,
		})
	}
}

// PublicSubmit validates a submission, stores it and syncs it to the form's
// table. A failed sync still answers 201: the response carries the outcome.
func PublicSubmit(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := liveForm(app, w, r)
		if !ok {
			return
		}

		answers, ok := parseAnswers(w, r, form)
		if !ok {
			return
		}

		result := logic.Validate(form, answers)
		if !result.Accepted() {
			httpx.LogStatusJSON(w, r, http.StatusUnprocessableEntity, log.DebugLevel, "submit.validate", result)
			return
		}

		response, err := app.Reconciler.Submit(r.Context(), form, answers)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response)
	}
}

// liveForm loads a form without the questions whose field was retired from
// its table. When the schema cannot be read the stored form is used.
func liveForm(app app.App, w http.ResponseWriter, r *http.Request) (model.Form, bool) {
	formId := chi.URLParam(r, "id")

	form, err := app.DB.GetForm(r.Context(), formId)
	if errors.Is(err, database.ErrNotFound) {
		httpx.LogNotFound(w, "get_form", formId)
		return form, false
	}
	if err != nil {
		httpx.LogInternalError(w, "db.get_form", err)
		return form, false
	}

	if !form.Bound() {
		return form, true
	}
	catalog, err := app.Schema.Fields(r.Context(), form.BaseID, form.TableID)
	if err != nil {
		log.WithFields(log.Fields{"form": form.ID}).WithError(err).Warn("schema unavailable, using stored form")
		return form, true
	}
	return form.Live(catalog), true
}

func parseAnswers(w http.ResponseWriter, r *http.Request, form model.Form) (model.Answers, bool) {
	req := answersRequest{}
	err := render.DecodeJSON(r.Body, &req)
	if err != nil {
		httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
		return nil, false
	}

	answers, err := model.ParseAnswers(form, req.Answers)
	if err != nil {
		httpx.LogStatusJSON(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_answers", map[string]any{
			"errors": errorList(err),
		})
		return nil, false
	}
	return answers, true
}
