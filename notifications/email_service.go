package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/anjiri1684/studio_booking/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const brevoURL = "https://api.brevo.com/v3/smtp/email"

type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	client      *http.Client
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewBrevoService returns nil when the sender is not configured.
func NewBrevoService(apiKey, senderEmail, senderName string) *BrevoService {
	if apiKey == "" || senderEmail == "" || senderName == "" {
		return nil
	}
	return &BrevoService{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *BrevoService) send(ctx context.Context, toEmail, toName, subject, htmlContent string) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("brevo returned %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// EmailDispatcher resolves the recipient's address and mails a short summary
// of the notification.
type EmailDispatcher struct {
	brevo *BrevoService
	db    *gorm.DB
	log   *logrus.Logger
}

func NewEmailDispatcher(brevo *BrevoService, db *gorm.DB, log *logrus.Logger) *EmailDispatcher {
	return &EmailDispatcher{brevo: brevo, db: db, log: log}
}

func (d *EmailDispatcher) Dispatch(n Notification) {
	if d.brevo == nil {
		d.log.WithField("kind", n.Kind).Debug("email client not configured, skipping")
		return
	}
	go d.deliver(n)
}

func (d *EmailDispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	entry := d.log.WithFields(logrus.Fields{"kind": n.Kind, "recipient": n.Recipient})

	var user models.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", n.Recipient).Error; err != nil {
		entry.WithError(err).Warn("email recipient lookup failed")
		return
	}
	if err := d.brevo.send(ctx, user.Email, user.FullName, subjectFor(n.Kind), bodyFor(n)); err != nil {
		entry.WithError(err).Error("failed to send email")
		return
	}
	entry.Info("email sent")
}

var subjects = map[Kind]string{
	BookingCreated:    "Your booking request was received",
	BookingApproved:   "Your booking is confirmed",
	BookingRejected:   "Your booking was not approved",
	BookingExpired:    "Your booking hold has expired",
	BookingCancelled:  "A booking was cancelled",
	BookingCompleted:  "Your session earnings are available",
	PaymentProofAdded: "Payment proof submitted",
	PenaltyApplied:    "A late-cancellation fee was applied",
	StudioSuspended:   "Your studio account was suspended",
	StudioReinstated:  "Your studio account was reinstated",
	PayoutRequested:   "Payout request received",
	PayoutProcessed:   "Update on your payout request",
}

func subjectFor(k Kind) string {
	if s, ok := subjects[k]; ok {
		return s
	}
	return "Account update"
}

func bodyFor(n Notification) string {
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1><ul>", subjectFor(n.Kind))
	for _, k := range keys {
		fmt.Fprintf(&b, "<li><b>%s:</b> %s</li>", strings.ReplaceAll(k, "_", " "), n.Fields[k])
	}
	b.WriteString("</ul>")
	return b.String()
}
