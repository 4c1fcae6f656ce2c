package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"TrainPay/internal/models"
	"TrainPay/internal/services"
)

type noopGateway struct{}

func (noopGateway) CreatePaymentIntent(ctx context.Context, amount float64, currency, idempotencyKey string) (*services.PaymentIntent, error) {
	return &services.PaymentIntent{ID: "pi"}, nil
}
func (noopGateway) GetPaymentIntent(ctx context.Context, id string) (*services.PaymentIntent, error) {
	return &services.PaymentIntent{ID: id}, nil
}
func (noopGateway) CreateTransfer(ctx context.Context, amount float64, destination, idempotencyKey string) (*services.Transfer, error) {
	return &services.Transfer{ID: "tr"}, nil
}
func (noopGateway) CreateRefund(ctx context.Context, paymentIntentID string, amount float64, idempotencyKey string) (*services.Refund, error) {
	return &services.Refund{ID: "re"}, nil
}
func (noopGateway) CreateConnectAccount(ctx context.Context, email, idempotencyKey string) (*services.Account, error) {
	return &services.Account{ID: "acct"}, nil
}
func (noopGateway) GetAccount(ctx context.Context, id string) (*services.Account, error) {
	return &services.Account{ID: id}, nil
}
func (noopGateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL, idempotencyKey string) (*services.AccountLink, error) {
	return &services.AccountLink{URL: "https://example.com"}, nil
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Booking{}, &models.EscrowRecord{}, &models.EscrowEvent{}, &models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := services.NewEscrowService(db, noopGateway{}, services.NewNotificationService(db))
	s := New(svc, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestSchedulerDefaultInterval(t *testing.T) {
	s := New(nil, 0)
	assert.Equal(t, DefaultInterval, s.interval)
}
