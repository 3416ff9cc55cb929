package notify

import (
	"context"

	"github.com/ariefcatur/go-rental-settlement/internal/config"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
)

// NewDispatcherFromConfig wires the contract and email stages that are configured. No
// bucket disables contracts; no SendGrid key logs confirmations instead of sending them.
func NewDispatcherFromConfig(ctx context.Context, cfg config.Config, rec ContractRecorder) (*Dispatcher, error) {
	d := &Dispatcher{
		Rentals:  rec,
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
	}
	if cfg.S3Bucket != "" {
		store, err := NewS3Store(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, err
		}
		d.Documents = PDFContracts{Title: cfg.MailFromName + " rental agreement"}
		d.Blobs = store
	} else {
		logger.Warn("S3_BUCKET not set, contracts disabled")
	}
	if cfg.SendGridKey != "" {
		d.Sender = NewSendGridSender(cfg.SendGridKey, cfg.MailFrom, cfg.MailFromName)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, confirmations are only logged")
		d.Sender = LogSender{}
	}
	return d, nil
}
