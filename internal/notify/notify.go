// Package notify runs the best-effort confirmation pipeline after a rental is paid:
// contract rendering, blob upload and the confirmation email. Nothing here can undo a
// confirmed rental.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/metrics"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
	"github.com/ariefcatur/go-rental-settlement/internal/retry"
)

type Confirmation struct {
	Rental      rentals.RentalConfirmedPayload
	ContractURL string
}

type Sender interface {
	SendRentalConfirmation(ctx context.Context, c Confirmation) error
}

type DocumentGenerator interface {
	GenerateContract(ctx context.Context, p rentals.RentalConfirmedPayload) ([]byte, error)
}

type BlobStore interface {
	Save(ctx context.Context, path string, data []byte) (string, error)
}

// ContractRecorder persists the uploaded contract location on the rental.
type ContractRecorder interface {
	SetContractURL(ctx context.Context, tenantID, id, url string) error
}

// Handoff is how the reconciler passes a confirmed rental downstream.
type Handoff interface {
	Handoff(ctx context.Context, r *rentals.Rental, c *rentals.Customer) error
}

type Dispatcher struct {
	Documents DocumentGenerator
	Blobs     BlobStore
	Rentals   ContractRecorder
	Sender    Sender

	Attempts int
	Backoff  time.Duration
}

func ContractPath(p rentals.RentalConfirmedPayload) string {
	return fmt.Sprintf("contracts/%s/%s.pdf", p.TenantID, p.RentalID)
}

// Process runs every stage it can. A failed contract does not stop the email; the
// returned error only reports whether the email went out.
func (d *Dispatcher) Process(ctx context.Context, p rentals.RentalConfirmedPayload) error {
	log := logger.Get().With("tenant_id", p.TenantID, "rental_id", p.RentalID)

	var url string
	if d.Documents != nil && d.Blobs != nil {
		doc, err := d.Documents.GenerateContract(ctx, p)
		if err != nil {
			metrics.HandoffFailures.WithLabelValues("contract").Inc()
			log.ErrorContext(ctx, "contract generation failed", "error", err)
		} else if url, err = d.Blobs.Save(ctx, ContractPath(p), doc); err != nil {
			metrics.HandoffFailures.WithLabelValues("blob").Inc()
			log.ErrorContext(ctx, "contract upload failed", "error", err)
			url = ""
		}
	}
	if url != "" && d.Rentals != nil {
		if err := d.Rentals.SetContractURL(ctx, p.TenantID, p.RentalID, url); err != nil {
			metrics.HandoffFailures.WithLabelValues("contract_url").Inc()
			log.ErrorContext(ctx, "contract url not recorded", "error", err)
		}
	}

	if d.Sender == nil {
		return nil
	}
	err := retry.Do(ctx, d.Attempts, d.Backoff, func(ctx context.Context) error {
		return d.Sender.SendRentalConfirmation(ctx, Confirmation{Rental: p, ContractURL: url})
	})
	if err != nil {
		metrics.HandoffFailures.WithLabelValues("send").Inc()
		log.ErrorContext(ctx, "confirmation not sent", "error", err)
		return fmt.Errorf("send confirmation: %w", err)
	}
	log.InfoContext(ctx, "confirmation sent", "contract_url", url)
	return nil
}

// Direct runs the dispatcher in-process. It is used when no broker is configured.
type Direct struct{ Dispatcher *Dispatcher }

func (h Direct) Handoff(ctx context.Context, r *rentals.Rental, c *rentals.Customer) error {
	return h.Dispatcher.Process(ctx, rentals.NewRentalConfirmedPayload(r, c))
}
