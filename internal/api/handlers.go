package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"roommate/server/internal/attendance"
	"roommate/server/internal/auth"
	"roommate/server/internal/certification"
	"roommate/server/internal/models"
	"roommate/server/internal/queue"
	"roommate/server/internal/visits"
)

// QueueService is the admission side of the engine, implemented by
// *queue.Controller
type QueueService interface {
	ExpressInterest(ctx context.Context, actor auth.Actor, listingID uint, groupID *uint) (*models.Interest, error)
	WithdrawInterest(ctx context.Context, actor auth.Actor, listingID uint) (*models.Interest, error)
	RemoveInterest(ctx context.Context, actor auth.Actor, listingID, tenantID uint) (*models.Interest, error)
	Queue(ctx context.Context, actor auth.Actor, listingID uint) (*queue.QueueView, error)
	DissolveGroup(ctx context.Context, actor auth.Actor, groupID uint) ([]models.Interest, error)
}

type Handler struct {
	db         *gorm.DB
	logger     *logrus.Logger
	queue      QueueService
	certs      *certification.Workflow
	visits     *visits.Gate
	attendance *attendance.Tracker
}

type ExpressInterestRequest struct {
	GroupID *uint `json:"group_id"`
}

type CertificationRequest struct {
	Type models.CertificationType `json:"type" binding:"required"`
	Note string                   `json:"note"`
}

type SubmitDocumentRequest struct {
	DocumentURL string `json:"document_url" binding:"required"`
}

type ReviewRequest struct {
	Outcome models.CertificationStatus `json:"outcome" binding:"required"`
	Note    string                     `json:"note"`
}

type OpenDayRequest struct {
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
}

type SlotRequest struct {
	Type      models.SlotType `json:"type" binding:"required"`
	Date      string          `json:"date" binding:"required"`
	StartTime string          `json:"start_time" binding:"required"`
	EndTime   string          `json:"end_time" binding:"required"`
	MaxGuests int             `json:"max_guests" binding:"required"`
}

type AttendanceRequest struct {
	AttendeeIDs []uint `json:"attendee_ids"`
}

func NewHandler(db *gorm.DB, logger *logrus.Logger, q QueueService, certs *certification.Workflow, gate *visits.Gate, tracker *attendance.Tracker) *Handler {
	return &Handler{
		db:         db,
		logger:     logger,
		queue:      q,
		certs:      certs,
		visits:     gate,
		attendance: tracker,
	}
}

// pathID parses a numeric path parameter, answering 400 when it is not one
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// bindJSON decodes and validates the JSON body into req
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request body")
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints that also accept no body
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}

func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.logger.WithError(err).Error("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ExpressInterest retries once when it lost the race for the last ACTIVE
// slot; the second attempt lands on the waitlist.
func (h *Handler) ExpressInterest(c *gin.Context) {
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ExpressInterestRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	actor := actorFrom(c)
	interest, err := h.queue.ExpressInterest(c.Request.Context(), actor, listingID, req.GroupID)
	if errors.Is(err, queue.ErrAdmissionRace) {
		h.logger.WithField("listing_id", listingID).Warn("Admission race lost, retrying")
		interest, err = h.queue.ExpressInterest(c.Request.Context(), actor, listingID, req.GroupID)
	}
	if err != nil {
		h.respondError(c, err, "express interest")
		return
	}
	c.JSON(http.StatusCreated, interest)
}

func (h *Handler) WithdrawInterest(c *gin.Context) {
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	interest, err := h.queue.WithdrawInterest(c.Request.Context(), actorFrom(c), listingID)
	if err != nil {
		h.respondError(c, err, "withdraw interest")
		return
	}
	c.JSON(http.StatusOK, interest)
}

func (h *Handler) RemoveInterest(c *gin.Context) {
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenantID, ok := pathID(c, "tenant_id")
	if !ok {
		return
	}
	interest, err := h.queue.RemoveInterest(c.Request.Context(), actorFrom(c), listingID, tenantID)
	if err != nil {
		h.respondError(c, err, "remove interest")
		return
	}
	c.JSON(http.StatusOK, interest)
}

func (h *Handler) GetQueue(c *gin.Context) {
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.queue.Queue(c.Request.Context(), actorFrom(c), listingID)
	if err != nil {
		h.respondError(c, err, "load queue")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) DissolveGroup(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	withdrawn, err := h.queue.DissolveGroup(c.Request.Context(), actorFrom(c), groupID)
	if err != nil {
		h.respondError(c, err, "dissolve group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": withdrawn})
}

func (h *Handler) RequestCertification(c *gin.Context) {
	interestID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CertificationRequest
	if !bindJSON(c, &req) {
		return
	}
	cert, err := h.certs.RequestCertification(c.Request.Context(), actorFrom(c), interestID, req.Type, req.Note)
	if err != nil {
		h.respondError(c, err, "request certification")
		return
	}
	c.JSON(http.StatusCreated, cert)
}

func (h *Handler) ListCertifications(c *gin.Context) {
	interestID, ok := pathID(c, "id")
	if !ok {
		return
	}
	certs, err := h.certs.List(c.Request.Context(), actorFrom(c), interestID)
	if err != nil {
		h.respondError(c, err, "list certifications")
		return
	}
	c.JSON(http.StatusOK, certs)
}

func (h *Handler) SubmitDocument(c *gin.Context) {
	certID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SubmitDocumentRequest
	if !bindJSON(c, &req) {
		return
	}
	cert, err := h.certs.SubmitDocument(c.Request.Context(), actorFrom(c), certID, req.DocumentURL)
	if err != nil {
		h.respondError(c, err, "submit document")
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (h *Handler) ReviewCertification(c *gin.Context) {
	certID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	cert, err := h.certs.Review(c.Request.Context(), actorFrom(c), certID, req.Outcome, req.Note)
	if err != nil {
		h.respondError(c, err, "review certification")
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (h *Handler) ApproveScheduling(c *gin.Context) {
	interestID, ok := pathID(c, "id")
	if !ok {
		return
	}
	interest, err := h.visits.ApproveScheduling(c.Request.Context(), actorFrom(c), interestID)
	if err != nil {
		h.respondError(c, err, "approve scheduling")
		return
	}
	c.JSON(http.StatusOK, interest)
}

func (h *Handler) CreateOpenDay(c *gin.Context) {
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req OpenDayRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.visits.CreateOpenDay(c.Request.Context(), actorFrom(c), listingID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		h.respondError(c, err, "create open day")
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) CreateSlot(c *gin.Context) {
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SlotRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.visits.CreateSlot(c.Request.Context(), actorFrom(c), listingID, req.Type, req.Date, req.StartTime, req.EndTime, req.MaxGuests)
	if err != nil {
		h.respondError(c, err, "create visit slot")
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) BookVisit(c *gin.Context) {
	slotID, ok := pathID(c, "id")
	if !ok {
		return
	}
	booking, err := h.visits.BookVisit(c.Request.Context(), actorFrom(c), slotID)
	if err != nil {
		h.respondError(c, err, "book visit")
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) ConfirmBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	booking, err := h.visits.ConfirmBooking(c.Request.Context(), actorFrom(c), bookingID)
	if err != nil {
		h.respondError(c, err, "confirm booking")
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) CancelBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	booking, err := h.visits.CancelBooking(c.Request.Context(), actorFrom(c), bookingID)
	if err != nil {
		h.respondError(c, err, "cancel booking")
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) ReportAttendance(c *gin.Context) {
	slotID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.attendance.ReportAttendance(c.Request.Context(), actorFrom(c), slotID, req.AttendeeIDs)
	if err != nil {
		h.respondError(c, err, "report attendance")
		return
	}
	c.JSON(http.StatusOK, report)
}
