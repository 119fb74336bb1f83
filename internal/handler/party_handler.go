package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"partychat-go/internal/repository"
	"partychat-go/pkg/log"
)

// PartyHandler lists the parties the chat can answer about.
type PartyHandler struct {
	partyRepo repository.PartyRepository
}

func NewPartyHandler(partyRepo repository.PartyRepository) *PartyHandler {
	return &PartyHandler{partyRepo: partyRepo}
}

func (h *PartyHandler) List(c *gin.Context) {
	parties, err := h.partyRepo.FindAll()
	if err != nil {
		log.Errorf("List parties: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load parties"})
		return
	}

	type partyDTO struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Color string `json:"color,omitempty"`
	}
	data := make([]partyDTO, 0, len(parties))
	for _, p := range parties {
		data = append(data, partyDTO{Code: p.ShortCode, Name: p.Name, Color: p.Color})
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "ok",
		"data":    data,
	})
}
