package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"partychat-go/internal/repository"
	"partychat-go/internal/service"
	"partychat-go/pkg/kafka"
	"partychat-go/pkg/log"
	"partychat-go/pkg/storage"
	"partychat-go/pkg/tasks"
)

// ProgramHandler covers the admin surface for uploading and ingesting
// party programs.
type ProgramHandler struct {
	ingestService service.IngestService
	partyRepo     repository.PartyRepository
	storageClient *storage.Client
	producer      *kafka.Producer
}

func NewProgramHandler(
	ingestService service.IngestService,
	partyRepo repository.PartyRepository,
	storageClient *storage.Client,
	producer *kafka.Producer,
) *ProgramHandler {
	return &ProgramHandler{
		ingestService: ingestService,
		partyRepo:     partyRepo,
		storageClient: storageClient,
		producer:      producer,
	}
}

// Upload stores a program PDF in object storage and enqueues an
// ingestion task for the consumer.
func (h *ProgramHandler) Upload(c *gin.Context) {
	partyCode := strings.ToUpper(strings.TrimSpace(c.PostForm("party_code")))
	yearStr := c.PostForm("year")
	force := c.PostForm("force") == "true"

	if partyCode == "" || yearStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "party_code and year are required"})
		return
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year must be numeric"})
		return
	}
	if _, err := h.partyRepo.FindByCode(partyCode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown party code %q", partyCode)})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing uploaded file"})
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF files are accepted"})
		return
	}

	fileName := fmt.Sprintf("%s_%d.pdf", strings.ToLower(partyCode), year)
	objectName := "programs/" + fileName
	if err := h.storageClient.PutObject(c.Request.Context(), objectName, file, header.Size, "application/pdf"); err != nil {
		log.Errorf("Upload: storing %s failed: %v", objectName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store the uploaded file"})
		return
	}

	task := tasks.ProgramIngestTask{
		ObjectName: objectName,
		FileName:   fileName,
		PartyCode:  partyCode,
		Year:       year,
		Force:      force,
	}
	if err := h.producer.ProduceIngestTask(c.Request.Context(), task); err != nil {
		log.Errorf("Upload: enqueueing ingestion for %s failed: %v", objectName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue the ingestion task"})
		return
	}

	log.Infof("[ProgramHandler] upload accepted, Object: %s, Party: %s", objectName, partyCode)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "upload accepted, ingestion queued",
		"data":    gin.H{"object": objectName},
	})
}

// RunIngestion ingests every PDF in the configured source directory and
// reports the per-document outcome.
func (h *ProgramHandler) RunIngestion(c *gin.Context) {
	summary, err := h.ingestService.IngestAll(c.Request.Context(), func(p service.IngestProgress) {
		log.Infof("[ProgramHandler] ingestion progress %.0f%% (%d/%d): %s %s",
			p.Percent, p.Index, p.Total, p.File, p.Status)
	})
	if err != nil {
		log.Errorf("RunIngestion: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "ingestion finished",
		"data":    summary,
	})
}

// Status lists every known program with its processing state.
func (h *ProgramHandler) Status(c *gin.Context) {
	programs, err := h.ingestService.Status()
	if err != nil {
		log.Errorf("Status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load program status"})
		return
	}

	type programDTO struct {
		ID         uint   `json:"id"`
		PartyID    uint   `json:"partyId"`
		Title      string `json:"title"`
		Year       int    `json:"year"`
		PageCount  int    `json:"pageCount"`
		Status     string `json:"status"`
		LastError  string `json:"lastError,omitempty"`
		SourcePath string `json:"sourcePath"`
	}
	data := make([]programDTO, 0, len(programs))
	for _, p := range programs {
		data = append(data, programDTO{
			ID:         p.ID,
			PartyID:    p.PartyID,
			Title:      p.Title,
			Year:       p.Year,
			PageCount:  p.PageCount,
			Status:     p.Status,
			LastError:  p.ProcessingError,
			SourcePath: p.SourcePath,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "ok",
		"data":    data,
	})
}
