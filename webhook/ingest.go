package webhook

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/mbolis/airform-sync/log"
	"github.com/pkg/errors"
)

// Reconciler applies one record change.
type Reconciler interface {
	ReconcileUpdate(ctx context.Context, recordID string) (int64, error)
	ReconcileDelete(ctx context.Context, recordID string) (int64, error)
}

// Report sums up the ingestion of a batch.
type Report struct {
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	// Untracked counts records no response is bound to.
	Untracked int `json:"untracked"`
	Failed    int `json:"failed"`

	Err error `json:"-"`
}

// Ingest applies every (record, change) pair of the batch in the order it was
// sent. Within a table the changed records are applied before the destroyed
// ones. A failing pair is reported in Err and does not stop the others;
// nothing already applied is undone.
func Ingest(ctx context.Context, r Reconciler, batch Batch) Report {
	var report Report
	var errs *multierror.Error

	apply := func(tableID, recordID string, destroyed bool) {
		var (
			n   int64
			err error
		)
		if destroyed {
			n, err = r.ReconcileDelete(ctx, recordID)
		} else {
			n, err = r.ReconcileUpdate(ctx, recordID)
		}

		switch {
		case err != nil:
			report.Failed++
			errs = multierror.Append(errs, errors.Wrapf(err, "table %s", tableID))
			log.WithFields(log.Fields{"table": tableID, "record": recordID}).WithError(err).Error("webhook: reconcile")
		case n == 0:
			report.Untracked++
		case destroyed:
			report.Deleted++
		default:
			report.Updated++
		}
	}

	for _, p := range batch.Payloads {
		for _, t := range p.Tables {
			for _, id := range t.Changed {
				apply(t.TableID, id, false)
			}
			for _, id := range t.Destroyed {
				apply(t.TableID, id, true)
			}
		}
	}

	report.Err = errs.ErrorOrNil()
	return report
}
