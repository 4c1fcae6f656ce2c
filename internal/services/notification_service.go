package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/resend/resend-go/v2"
	"gorm.io/gorm"

	"TrainPay/internal/models"
)

// NotificationSink delivers a message to a user over one channel. Sinks are
// composed at startup; an unavailable channel is a NoopSink, never a
// runtime capability probe.
type NotificationSink interface {
	Deliver(user *models.User, subject, body string) error
}

// NoopSink discards everything. Used when a channel is not configured.
type NoopSink struct{}

func (NoopSink) Deliver(*models.User, string, string) error { return nil }

// EmailSink delivers notifications via Resend.
type EmailSink struct {
	client *resend.Client
	from   string
}

func NewEmailSink() *EmailSink {
	apiKey := os.Getenv("RESEND_API_KEY")
	from := os.Getenv("FROM_EMAIL")
	if from == "" {
		from = "notifications@trainpay.app"
	}
	if apiKey == "" {
		log.Println("⚠️  RESEND_API_KEY is empty, emails will fail")
	}
	return &EmailSink{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (s *EmailSink) Deliver(user *models.User, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{user.Email},
		Subject: subject,
		Text:    body,
	}
	_, err := s.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// NotificationService persists in-app notifications and fans them out to the
// configured sinks. Strictly fire-and-forget: every failure is logged and
// discarded, nothing ever propagates to the owning transition.
type NotificationService struct {
	db    *gorm.DB
	sinks []NotificationSink
}

func NewNotificationService(db *gorm.DB, sinks ...NotificationSink) *NotificationService {
	return &NotificationService{db: db, sinks: sinks}
}

func (s *NotificationService) dispatch(userID uint, notifType models.NotificationType, title, message string, data map[string]interface{}) {
	if s == nil || s.db == nil {
		return
	}

	var dataJSON string
	if data != nil {
		if jsonBytes, err := json.Marshal(data); err == nil {
			dataJSON = string(jsonBytes)
		}
	}

	notification := models.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    dataJSON,
	}
	if err := s.db.Create(&notification).Error; err != nil {
		log.Printf("notification: failed to persist %s for user %d: %v", notifType, userID, err)
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		log.Printf("notification: user %d not found: %v", userID, err)
		return
	}
	for _, sink := range s.sinks {
		if err := sink.Deliver(&user, title, message); err != nil {
			log.Printf("notification: sink delivery failed for user %d: %v", userID, err)
		}
	}
}

// NotifyHoldCreated tells both parties the payment is held in escrow.
func (s *NotificationService) NotifyHoldCreated(rec *models.EscrowRecord) {
	if s == nil {
		return
	}
	data := map[string]interface{}{"escrow_id": rec.ID, "booking_id": rec.BookingID, "amount": rec.TotalAmount}
	s.dispatch(rec.ParentID, models.NotificationHoldCreated,
		"Payment Received",
		fmt.Sprintf("Your payment of $%.2f is held securely until the session is confirmed", rec.TotalAmount), data)
	s.dispatch(rec.TrainerID, models.NotificationHoldCreated,
		"Booking Paid",
		fmt.Sprintf("A booking has been paid; $%.2f will be released to you after confirmation", rec.TrainerAmount), data)
}

// NotifyConfirmationRequested asks the parent to confirm before the window
// closes.
func (s *NotificationService) NotifyConfirmationRequested(rec *models.EscrowRecord, deadline time.Time) {
	if s == nil {
		return
	}
	s.dispatch(rec.ParentID, models.NotificationSessionComplete,
		"Please Confirm Your Session",
		fmt.Sprintf("Your trainer marked the session complete. Please confirm or raise an issue before %s, after which the payment is released automatically",
			deadline.Format("Jan 2 3:04 PM")),
		map[string]interface{}{"escrow_id": rec.ID, "booking_id": rec.BookingID, "deadline": deadline})
}

// NotifyConfirmed tells the trainer the parent confirmed.
func (s *NotificationService) NotifyConfirmed(rec *models.EscrowRecord) {
	if s == nil {
		return
	}
	s.dispatch(rec.TrainerID, models.NotificationConfirmed,
		"Session Confirmed",
		fmt.Sprintf("The parent confirmed your session; $%.2f is on its way", rec.TrainerAmount),
		map[string]interface{}{"escrow_id": rec.ID, "booking_id": rec.BookingID})
}

// NotifyDisputed alerts the trainer and every admin. Funds stay held.
func (s *NotificationService) NotifyDisputed(rec *models.EscrowRecord) {
	if s == nil || s.db == nil {
		return
	}
	data := map[string]interface{}{"escrow_id": rec.ID, "booking_id": rec.BookingID, "reason": rec.DisputeReason}
	s.dispatch(rec.TrainerID, models.NotificationDisputed,
		"Dispute Raised",
		fmt.Sprintf("The parent disputed the session: %s. Payment is on hold until an admin resolves it", rec.DisputeReason), data)

	var admins []models.User
	if err := s.db.Where("role = ?", "admin").Find(&admins).Error; err != nil {
		log.Printf("notification: failed to load admins: %v", err)
		return
	}
	for _, admin := range admins {
		s.dispatch(admin.ID, models.NotificationDisputed,
			"Dispute Requires Resolution",
			fmt.Sprintf("Escrow %s was disputed: %s", rec.ID, rec.DisputeReason), data)
	}
}

// NotifyReleased tells the trainer their share left escrow.
func (s *NotificationService) NotifyReleased(rec *models.EscrowRecord, pendingManual bool) {
	if s == nil {
		return
	}
	msg := fmt.Sprintf("$%.2f has been released to your payout account", rec.TrainerAmount)
	if pendingManual {
		msg = fmt.Sprintf("$%.2f has been released and will be paid out manually; add a payout account to receive transfers automatically", rec.TrainerAmount)
	}
	s.dispatch(rec.TrainerID, models.NotificationReleased, "Funds Released", msg,
		map[string]interface{}{"escrow_id": rec.ID, "booking_id": rec.BookingID, "amount": rec.TrainerAmount})
}

// NotifyRefunded tells the parent their money is coming back.
func (s *NotificationService) NotifyRefunded(rec *models.EscrowRecord, amount float64) {
	if s == nil {
		return
	}
	s.dispatch(rec.ParentID, models.NotificationRefunded,
		"Refund Issued",
		fmt.Sprintf("$%.2f has been refunded to your original payment method", amount),
		map[string]interface{}{"escrow_id": rec.ID, "booking_id": rec.BookingID, "amount": amount})
}

// NotifyDisputeResolved tells both parties the outcome.
func (s *NotificationService) NotifyDisputeResolved(rec *models.EscrowRecord) {
	if s == nil {
		return
	}
	data := map[string]interface{}{"escrow_id": rec.ID, "resolution": rec.DisputeResolution}
	for _, userID := range []uint{rec.ParentID, rec.TrainerID} {
		s.dispatch(userID, models.NotificationDisputeResolved,
			"Dispute Resolved",
			fmt.Sprintf("The dispute on your session has been resolved (%s). %s", rec.DisputeResolution, rec.ResolutionNotes), data)
	}
}
