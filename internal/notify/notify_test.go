package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-rental-settlement/internal/config"
	"github.com/ariefcatur/go-rental-settlement/internal/redisx"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

func confirmed() rentals.RentalConfirmedPayload {
	r := &rentals.Rental{
		ID:            "r1",
		TenantID:      "t1",
		CustomerID:    "c1",
		Start:         time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		End:           time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC),
		TotalAmount:   decimal.NewFromInt(105),
		DepositAmount: decimal.RequireFromString("31.5"),
		Currency:      "INR",
		PaymentRef:    "pi_1",
		Items: []rentals.RentalItem{
			{ProductID: "A", Quantity: 2, UnitPrice: decimal.NewFromInt(10), Periods: 3, Subtotal: decimal.NewFromInt(60)},
		},
	}
	return rentals.NewRentalConfirmedPayload(r, &rentals.Customer{ID: "c1", Email: "ana@example.com", Name: "Ana"})
}

type fakeDocs struct{ err error }

func (f fakeDocs) GenerateContract(context.Context, rentals.RentalConfirmedPayload) ([]byte, error) {
	return []byte("%PDF-fake"), f.err
}

type fakeBlobs struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func (f *fakeBlobs) Save(_ context.Context, path string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[path] = data
	return "https://cdn.example.com/" + path, nil
}

type fakeRecorder struct{ urls map[string]string }

func (f *fakeRecorder) SetContractURL(_ context.Context, _, id, url string) error {
	if f.urls == nil {
		f.urls = map[string]string{}
	}
	f.urls[id] = url
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	fails int
	sent  []Confirmation
}

func (f *fakeSender) SendRentalConfirmation(_ context.Context, c Confirmation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, c)
	return nil
}

func TestDispatcher_FullPipeline(t *testing.T) {
	blobs := &fakeBlobs{}
	rec := &fakeRecorder{}
	sender := &fakeSender{fails: 1}
	d := &Dispatcher{Documents: fakeDocs{}, Blobs: blobs, Rentals: rec, Sender: sender, Attempts: 3, Backoff: time.Millisecond}

	require.NoError(t, d.Process(context.Background(), confirmed()))

	assert.Contains(t, blobs.saved, "contracts/t1/r1.pdf")
	assert.Equal(t, "https://cdn.example.com/contracts/t1/r1.pdf", rec.urls["r1"])
	require.Len(t, sender.sent, 1, "retried after one failure")
	assert.Equal(t, rec.urls["r1"], sender.sent[0].ContractURL)
}

func TestDispatcher_ContractFailureStillSends(t *testing.T) {
	rec := &fakeRecorder{}
	sender := &fakeSender{}
	d := &Dispatcher{Documents: fakeDocs{err: errors.New("boom")}, Blobs: &fakeBlobs{}, Rentals: rec, Sender: sender, Attempts: 1}

	require.NoError(t, d.Process(context.Background(), confirmed()))
	assert.Empty(t, rec.urls)
	require.Len(t, sender.sent, 1)
	assert.Empty(t, sender.sent[0].ContractURL)
}

func TestDispatcher_SendGivesUp(t *testing.T) {
	sender := &fakeSender{fails: 5}
	d := &Dispatcher{Sender: sender, Attempts: 2, Backoff: time.Millisecond}

	err := d.Process(context.Background(), confirmed())
	assert.ErrorContains(t, err, "send confirmation")
	assert.Equal(t, 3, sender.fails)
}

func TestPDFContracts(t *testing.T) {
	doc, err := PDFContracts{}.GenerateContract(context.Background(), confirmed())
	require.NoError(t, err)
	assert.True(t, len(doc) > 100)
	assert.Equal(t, "%PDF", string(doc[:4]))
}

type fakeS3 struct{ in *s3.PutObjectInput }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Save(t *testing.T) {
	api := &fakeS3{}
	s := newS3Store(api, "contracts-bucket", "https://files.example.com/")

	url, err := s.Save(context.Background(), "contracts/t1/r1.pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/contracts/t1/r1.pdf", url)
	assert.Equal(t, "contracts-bucket", *api.in.Bucket)
	assert.Equal(t, "application/pdf", *api.in.ContentType)

	url, err = newS3Store(api, "b", "").Save(context.Background(), "x.pdf", nil)
	require.NoError(t, err)
	assert.Equal(t, "s3://b/x.pdf", url)
}

type fakeMail struct {
	status int
	sent   *mail.SGMailV3
}

func (f *fakeMail) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = m
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSender(t *testing.T) {
	fm := &fakeMail{status: 202}
	s := &SendGridSender{client: fm, fromEmail: "bookings@example.com", fromName: "Rentals"}

	require.NoError(t, s.SendRentalConfirmation(context.Background(), Confirmation{Rental: confirmed(), ContractURL: "https://x/c.pdf"}))
	require.NotNil(t, fm.sent)
	assert.Equal(t, "Your rental r1 is confirmed", fm.sent.Subject)
	assert.Contains(t, fm.sent.Content[0].Value, "https://x/c.pdf")

	fm.status = 400
	assert.Error(t, s.SendRentalConfirmation(context.Background(), Confirmation{Rental: confirmed()}))

	noEmail := confirmed()
	noEmail.CustomerEmail = ""
	assert.Error(t, s.SendRentalConfirmation(context.Background(), Confirmation{Rental: noEmail}))
}

type fakePublisher struct {
	key, value []byte
	headers    []kafkago.Header
}

func (f *fakePublisher) Publish(_ context.Context, key, value []byte, headers ...kafkago.Header) error {
	f.key, f.value, f.headers = key, value, headers
	return nil
}

func TestKafkaHandoffAndConsumer(t *testing.T) {
	pub := &fakePublisher{}
	h := KafkaHandoff{Producer: pub, Service: "rental-api"}
	r := &rentals.Rental{ID: "r1", TenantID: "t1", TotalAmount: decimal.NewFromInt(105), DepositAmount: decimal.RequireFromString("31.5")}
	require.NoError(t, h.Handoff(context.Background(), r, &rentals.Customer{Email: "ana@example.com"}))
	assert.Equal(t, "r1", string(pub.key))

	var env rentals.Envelope
	require.NoError(t, json.Unmarshal(pub.value, &env))
	assert.Equal(t, rentals.EventRentalConfirmed, env.EventType)
	assert.Equal(t, "r1", env.CorrelationID)

	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	sender := &fakeSender{}
	c := &Consumer{Dispatcher: &Dispatcher{Sender: sender, Attempts: 1}, Dedup: redisx.NewDeduper(rdb, "notifier")}

	msg := kafkago.Message{Key: pub.key, Value: pub.value}
	require.NoError(t, c.HandleRentalConfirmed(context.Background(), msg))
	require.NoError(t, c.HandleRentalConfirmed(context.Background(), msg))
	require.Len(t, sender.sent, 1, "redelivery is deduplicated")
	assert.Equal(t, "ana@example.com", sender.sent[0].Rental.CustomerEmail)

	assert.NoError(t, c.HandleRentalConfirmed(context.Background(), kafkago.Message{Value: []byte("junk")}))
}

func TestConsumer_ReleasesClaimOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	sender := &fakeSender{fails: 1}
	c := &Consumer{Dispatcher: &Dispatcher{Sender: sender, Attempts: 1}, Dedup: redisx.NewDeduper(rdb, "notifier")}

	pub := &fakePublisher{}
	require.NoError(t, KafkaHandoff{Producer: pub}.Handoff(context.Background(), &rentals.Rental{ID: "r2", TenantID: "t1"}, nil))
	msg := kafkago.Message{Value: pub.value}

	assert.Error(t, c.HandleRentalConfirmed(context.Background(), msg))
	require.NoError(t, c.HandleRentalConfirmed(context.Background(), msg))
	assert.Len(t, sender.sent, 1)
}

func TestDirectHandoff(t *testing.T) {
	sender := &fakeSender{}
	h := Direct{Dispatcher: &Dispatcher{Sender: sender, Attempts: 1}}
	require.NoError(t, h.Handoff(context.Background(), &rentals.Rental{ID: "r3", TenantID: "t1"}, nil))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "r3", sender.sent[0].Rental.RentalID)
}

func TestNewDispatcherFromConfig_Fallbacks(t *testing.T) {
	d, err := NewDispatcherFromConfig(context.Background(), config.Config{RetryAttempts: 2}, nil)
	require.NoError(t, err)
	assert.Nil(t, d.Blobs)
	assert.Nil(t, d.Documents)
	assert.IsType(t, LogSender{}, d.Sender)
	assert.Equal(t, 2, d.Attempts)

	d, err = NewDispatcherFromConfig(context.Background(), config.Config{SendGridKey: "SG.x", S3Bucket: "contracts", S3Region: "auto"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, d.Blobs)
	assert.IsType(t, &SendGridSender{}, d.Sender)
}
