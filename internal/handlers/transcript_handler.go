package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/pkg/Logger"
)

// TranscriptHandler handles transcript-related HTTP requests
type TranscriptHandler struct {
	transcriptService transcript.TranscriptService
	logger            *Logger.Logger
}

// NewTranscriptHandler creates a new transcript handler
func NewTranscriptHandler(transcriptService transcript.TranscriptService, logger *Logger.Logger) *TranscriptHandler {
	return &TranscriptHandler{
		transcriptService: transcriptService,
		logger:            logger,
	}
}

// GetLines handles listing the transcript of a session
// @Summary List transcript lines
// @Description Persisted lines of a session overlaid with the ones still being transcribed
// @Tags Transcripts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} LinesResponse "Transcript lines"
// @Failure 400 {object} ErrorResponse "Invalid session ID"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /sessions/{id}/lines [get]
func (h *TranscriptHandler) GetLines(c *gin.Context) {
	sessionID, ok := ParseSessionID(c)
	if !ok {
		return
	}

	lines, err := h.transcriptService.Lines(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Errorf("get lines error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, LinesResponse{SessionID: sessionID.String(), Lines: lines})
}

// Cleanup handles the LLM correction of a transcript
// @Summary Clean up transcript
// @Description Corrects every finished line of the session with the configured assistant
// @Tags Transcripts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} LinesResponse "Corrected lines"
// @Failure 400 {object} ErrorResponse "Invalid session ID"
// @Failure 404 {object} ErrorResponse "Nothing to clean up"
// @Failure 409 {object} ErrorResponse "An editor run is in progress"
// @Failure 502 {object} ErrorResponse "Assistant failed"
// @Router /sessions/{id}/cleanup [post]
func (h *TranscriptHandler) Cleanup(c *gin.Context) {
	sessionID, ok := ParseSessionID(c)
	if !ok {
		return
	}

	lines, err := h.transcriptService.Cleanup(c.Request.Context(), sessionID)
	if err != nil {
		h.writeEditorError(c, "cleanup", err)
		return
	}

	c.JSON(http.StatusOK, LinesResponse{SessionID: sessionID.String(), Lines: lines})
}

// Summarize handles streaming a new summary
// @Summary Summarize transcript
// @Description Streams a summary followed by action items as chunked plain text, then stores it
// @Tags Transcripts
// @Produce plain
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {string} string "Summary text"
// @Failure 400 {object} ErrorResponse "Invalid session ID"
// @Failure 404 {object} ErrorResponse "Nothing to summarize"
// @Failure 409 {object} ErrorResponse "An editor run is in progress"
// @Failure 502 {object} ErrorResponse "Assistant failed"
// @Router /sessions/{id}/summary [post]
func (h *TranscriptHandler) Summarize(c *gin.Context) {
	sessionID, ok := ParseSessionID(c)
	if !ok {
		return
	}

	var written string
	stream := func(reply string) error {
		if !strings.HasPrefix(reply, written) {
			return nil
		}
		if written == "" {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Status(http.StatusOK)
		}
		if _, err := c.Writer.WriteString(reply[len(written):]); err != nil {
			return err
		}
		c.Writer.Flush()
		written = reply
		return nil
	}

	summary, err := h.transcriptService.Summarize(c.Request.Context(), sessionID, stream)
	if err != nil {
		if written == "" {
			h.writeEditorError(c, "summary", err)
			return
		}
		h.logger.Errorf("summary stream of session %s broke: %v", sessionID, err)
		return
	}

	// make sure the client ends with exactly the stored text
	if err := stream(summary.Text()); err != nil {
		h.logger.Warnf("summary tail of session %s not written: %v", sessionID, err)
	}
}

// GetSummary handles fetching the stored summary
// @Summary Get summary
// @Description Returns the last summary generated for the session
// @Tags Transcripts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} SummaryResponse "Stored summary"
// @Failure 400 {object} ErrorResponse "Invalid session ID"
// @Failure 404 {object} ErrorResponse "Summary not found"
// @Router /sessions/{id}/summary [get]
func (h *TranscriptHandler) GetSummary(c *gin.Context) {
	sessionID, ok := ParseSessionID(c)
	if !ok {
		return
	}

	summary, err := h.transcriptService.Summary(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, transcript.ErrSummaryNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Summary not found"})
			return
		}
		h.logger.Errorf("get summary error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, SummaryResponse{Summary: *summary})
}

func (h *TranscriptHandler) writeEditorError(c *gin.Context, kind string, err error) {
	switch {
	case errors.Is(err, transcript.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No finished lines for session"})
	case errors.Is(err, transcript.ErrBusy):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "An editor run is already in progress"})
	default:
		h.logger.Errorf("%s error: %v", kind, err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Assistant failed", Details: err.Error()})
	}
}
