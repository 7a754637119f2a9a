package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnabghosh/blazingmq-session/internal/api/dto"
	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/storage"
	"github.com/arnabghosh/blazingmq-session/pkg/utils"
)

// maxListLimit caps the number of acks returned by one list request
const maxListLimit = 1000

// AckHandler serves the ack journal written by producers
type AckHandler struct {
	ackRepo storage.AckRepository
}

// NewAckHandler creates a new ack handler
func NewAckHandler(ackRepo storage.AckRepository) *AckHandler {
	return &AckHandler{
		ackRepo: ackRepo,
	}
}

// GetAck godoc
// @Summary Get ack by message GUID
// @Description Get the journaled acknowledgment of one posted message
// @Tags acks
// @Produce json
// @Param guid path string true "Message GUID" example("0000000000003039CD8101000000270F")
// @Success 200 {object} dto.AckRecordResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/acks/{guid} [get]
func (h *AckHandler) GetAck(c *gin.Context) {
	guid := c.Param("guid")

	record, err := h.ackRepo.GetByGUID(guid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:      "Ack not found",
				Message:    "No ack journaled for GUID: " + guid,
				ResultCode: int(domain.ResultInvalidArgument),
				Timestamp:  time.Now(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:      "Failed to retrieve ack",
			Message:    "Internal server error occurred",
			ResultCode: int(domain.ResultUnknown),
			Timestamp:  time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.ToAckRecordResponse(record))
}

// ListQueueAcks godoc
// @Summary List acks of a queue
// @Description List journaled acknowledgments of one queue ordered by ack time, with optional filtering
// @Tags acks
// @Produce json
// @Param queue_uri query string true "Queue URI" example("bmq://bmq.test.mem.priority/orders")
// @Param failed_only query bool false "Only negative acknowledgments"
// @Param start_time query string false "Start time in RFC3339 format" example("2026-01-18T00:00:00Z")
// @Param end_time query string false "End time in RFC3339 format" example("2026-01-18T23:59:59Z")
// @Param limit query int false "Maximum number of acks" example(100)
// @Success 200 {object} dto.AckListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/acks [get]
func (h *AckHandler) ListQueueAcks(c *gin.Context) {
	queueURI := c.Query("queue_uri")
	if queueURI == "" {
		badRequest(c, "Invalid request", "queue_uri is required")
		return
	}

	filter := storage.AckFilter{}

	startTime, err := utils.ParseOptionalTimestamp(c.Query("start_time"))
	if err != nil {
		badRequest(c, "Invalid start_time format", err.Error())
		return
	}
	filter.StartTime = startTime

	endTime, err := utils.ParseOptionalTimestamp(c.Query("end_time"))
	if err != nil {
		badRequest(c, "Invalid end_time format", err.Error())
		return
	}
	filter.EndTime = endTime

	// Validate time range if both are provided
	if filter.StartTime != nil && filter.EndTime != nil && filter.StartTime.After(*filter.EndTime) {
		badRequest(c, "Invalid time range", "start_time must be before end_time")
		return
	}

	if s := c.Query("failed_only"); s != "" {
		failedOnly, err := strconv.ParseBool(s)
		if err != nil {
			badRequest(c, "Invalid failed_only", "failed_only must be a boolean")
			return
		}
		filter.FailedOnly = failedOnly
	}

	filter.Limit = maxListLimit
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			badRequest(c, "Invalid limit", "limit must be a positive integer")
			return
		}
		if limit < maxListLimit {
			filter.Limit = limit
		}
	}

	records, err := h.ackRepo.ListByQueue(queueURI, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:      "Failed to retrieve acks",
			Message:    "Internal server error occurred while fetching acks",
			ResultCode: int(domain.ResultUnknown),
			Timestamp:  time.Now(),
		})
		return
	}

	response := dto.ToAckListResponse(records, queueURI)
	response.FailedOnly = filter.FailedOnly
	response.StartTime = filter.StartTime
	response.EndTime = filter.EndTime

	c.JSON(http.StatusOK, response)
}

func badRequest(c *gin.Context, title, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:      title,
		Message:    msg,
		ResultCode: int(domain.ResultInvalidArgument),
		Timestamp:  time.Now(),
	})
}
