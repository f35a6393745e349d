package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
	"github.com/mbolis/airform-sync/app"
	"github.com/mbolis/airform-sync/httpx"
	"github.com/mbolis/airform-sync/log"
	"github.com/mbolis/airform-sync/webhook"
)

// AirtableWebhook applies a batch of change notifications. Failing records
// are logged and do not fail the batch; only an unreadable batch does.
func AirtableWebhook(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, err := webhook.Decode(r.Body)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "webhook.parse_body", "%v", err)
			return
		}

		if batch.Empty() {
			log.Debug("webhook: ping")
			render.JSON(w, r, map[string]any{
				"success": true,
				"ping":    true,
			})
			return
		}

		report := webhook.Ingest(context.WithoutCancel(r.Context()), app.Reconciler, batch)
		if report.Err != nil {
			log.Warnf("webhook: %d of %d changes failed: %v",
				report.Failed, report.Failed+report.Updated+report.Deleted+report.Untracked, report.Err)
		}

		render.JSON(w, r, map[string]any{
			"success":   true,
			"updated":   report.Updated,
			"deleted":   report.Deleted,
			"untracked": report.Untracked,
			"failed":    report.Failed,
		})
	}
}
