package handlers

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/middleware"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ProofSigner signs direct browser uploads of payment proofs. Only the
// resulting URL is ever stored on the booking.
type ProofSigner struct {
	apiKey string
	secret string
	cloud  string
	folder string
	now    func() time.Time
}

// UploadSignature is what the client needs to upload straight to the store.
type UploadSignature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	APIKey    string `json:"api_key"`
	CloudName string `json:"cloud_name"`
	Folder    string `json:"folder"`
	PublicID  string `json:"public_id"`
}

func NewProofSigner(cloudinaryURL, folder string) (*ProofSigner, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	parsedURL, err := url.Parse(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}
	secret, _ := parsedURL.User.Password()

	return &ProofSigner{
		apiKey: cld.Config.Cloud.APIKey,
		secret: secret,
		cloud:  cld.Config.Cloud.CloudName,
		folder: folder,
		now:    time.Now,
	}, nil
}

func (s *ProofSigner) Sign(bookingID uuid.UUID) (UploadSignature, error) {
	publicID := "booking_" + bookingID.String()
	paramsToSign, err := api.StructToParams(uploader.UploadParams{
		Folder:   s.folder,
		PublicID: publicID,
	})
	if err != nil {
		return UploadSignature{}, fmt.Errorf("prepare signature params: %w", err)
	}

	timestamp := s.now().Unix()
	paramsToSign.Set("timestamp", strconv.FormatInt(timestamp, 10))

	signature, err := api.SignParameters(paramsToSign, s.secret)
	if err != nil {
		return UploadSignature{}, fmt.Errorf("sign upload params: %w", err)
	}
	return UploadSignature{
		Signature: signature,
		Timestamp: timestamp,
		APIKey:    s.apiKey,
		CloudName: s.cloud,
		Folder:    s.folder,
		PublicID:  publicID,
	}, nil
}

// GeneratePaymentProofSignature signs an upload for a booking the caller is
// party to.
func (h *Handler) GeneratePaymentProofSignature(c *fiber.Ctx) error {
	if h.Uploads == nil {
		return h.fail(c, apperr.New(apperr.Internal, "uploads are not configured"))
	}
	id, err := paramID(c, "bookingId")
	if err != nil {
		return h.fail(c, err)
	}
	booking, err := h.Bookings.GetBooking(c.UserContext(), middleware.ActorFrom(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	if booking.ClientID != middleware.ActorFrom(c).ID {
		return h.fail(c, apperr.New(apperr.Unauthorized, "only the client uploads payment proof"))
	}

	sig, err := h.Uploads.Sign(booking.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(sig)
}
