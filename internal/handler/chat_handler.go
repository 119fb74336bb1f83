package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"partychat-go/internal/model"
	"partychat-go/internal/repository"
	"partychat-go/internal/service"
	"partychat-go/pkg/log"
	"partychat-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatHandler owns the websocket chat connections.
type ChatHandler struct {
	chatService   service.ChatService
	userRepo      repository.UserRepository
	jwtManager    *token.JWTManager
	stopToken     string
	stopTokenLock sync.Mutex
	// per-connection stop flags
	stopFlags sync.Map
}

func NewChatHandler(chatService service.ChatService, userRepo repository.UserRepository, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userRepo:    userRepo,
		jwtManager:  jwtManager,
	}
}

// GetWebsocketStopToken hands out the token a client must echo to stop
// an in-flight stream.
func (h *ChatHandler) GetWebsocketStopToken(c *gin.Context) {
	h.stopTokenLock.Lock()
	defer h.stopTokenLock.Unlock()
	h.stopToken = "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": gin.H{"cmdToken": h.stopToken}})
}

// chatPayload is one inbound websocket frame. Control frames carry a
// type, chat frames carry the party and the conversation so far.
type chatPayload struct {
	Type             string              `json:"type"`
	InternalCmdToken string              `json:"_internal_cmd_token"`
	PartyCode        string              `json:"partyCode"`
	Messages         []model.ChatMessage `json:"messages"`
}

// Handle upgrades the request and serves chat frames until the client
// disconnects.
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := h.userRepo.FindByUsername(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", err)
		return
	}
	defer conn.Close()
	defer h.stopFlags.Delete(sessionKey(conn))

	log.Infof("[ChatHandler] websocket connected, user: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("[ChatHandler] read failed: %v", err)
			break
		}

		var payload chatPayload
		if err := json.Unmarshal(message, &payload); err != nil {
			h.writeError(conn, "malformed message")
			continue
		}

		if payload.Type == "stop" {
			h.stopTokenLock.Lock()
			valid := payload.InternalCmdToken == h.stopToken
			h.stopTokenLock.Unlock()
			if valid {
				h.stopFlags.Store(sessionKey(conn), true)
				resp := map[string]interface{}{
					"type":      "stop",
					"message":   "response stopped",
					"timestamp": time.Now().UnixMilli(),
				}
				b, _ := json.Marshal(resp)
				_ = conn.WriteMessage(websocket.TextMessage, b)
			}
			continue
		}

		if payload.PartyCode == "" || len(payload.Messages) == 0 {
			h.writeError(conn, "partyCode and messages are required")
			continue
		}

		key := sessionKey(conn)
		h.stopFlags.Delete(key)
		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(key)
			return ok && v.(bool)
		}

		err = h.chatService.StreamResponse(c.Request.Context(), payload.Messages, user, payload.PartyCode, conn, shouldStop)
		if err != nil {
			log.Errorf("[ChatHandler] streaming failed: %v", err)
			h.writeError(conn, "the answer service is temporarily unavailable")
			resp := map[string]interface{}{
				"type":      "completion",
				"status":    "finished",
				"timestamp": time.Now().UnixMilli(),
			}
			b, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
	}
}

func (h *ChatHandler) writeError(conn *websocket.Conn, msg string) {
	b, _ := json.Marshal(map[string]string{"error": msg})
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func sessionKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
