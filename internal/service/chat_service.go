package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"partychat-go/internal/config"
	"partychat-go/internal/model"
	"partychat-go/internal/repository"
	"partychat-go/pkg/llm"
	"partychat-go/pkg/log"
)

// ChatService streams grounded answers about one party's program over a
// websocket connection.
type ChatService interface {
	StreamResponse(ctx context.Context, messages []model.ChatMessage, user *model.User, partyCode string, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	contextService   ContextService
	partyRepo        repository.PartyRepository
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	llmCfg           config.LLMConfig
}

func NewChatService(
	contextService ContextService,
	partyRepo repository.PartyRepository,
	llmClient llm.Client,
	conversationRepo repository.ConversationRepository,
	llmCfg config.LLMConfig,
) ChatService {
	return &chatService{
		contextService:   contextService,
		partyRepo:        partyRepo,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		llmCfg:           llmCfg,
	}
}

// StreamResponse runs the retrieval flow for the latest question and
// streams the model's answer, saving the exchange afterwards.
func (s *chatService) StreamResponse(ctx context.Context, messages []model.ChatMessage, user *model.User, partyCode string, ws *websocket.Conn, shouldStop func() bool) error {
	party, err := s.partyRepo.FindByCode(partyCode)
	if err != nil {
		return fmt.Errorf("unknown party code %q: %w", partyCode, err)
	}
	question := model.LatestQuestion(messages)

	traceID := fmt.Sprintf("chat-%d-%d", user.ID, time.Now().UnixMilli())
	partyContext, err := s.contextService.BuildContext(ctx, party.Name, messages, partyCode, traceID, nil)
	if err != nil {
		// A retrieval failure means the answer cannot be grounded; the
		// model is still asked, with the no-result prompt in place.
		log.Errorf("[ChatService] context retrieval failed, answering ungrounded: %v", err)
		partyContext = nil
	}

	systemMsg := s.buildSystemMessage(party.Name, partyContext)
	history, err := s.loadHistory(ctx, user.ID, partyCode)
	if err != nil {
		log.Errorf("[ChatService] failed to load conversation history: %v", err)
		history = nil
	}

	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	err = s.llmClient.StreamChatMessages(ctx, s.composeMessages(systemMsg, history, question), s.buildGenerationParams(), interceptor)
	if err != nil {
		return err
	}

	sendCompletion(ws)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// The answer is worth keeping even when the request context has
		// been cancelled by the client going away.
		if err := s.addMessageToConversation(context.Background(), user.ID, partyCode, question, fullAnswer); err != nil {
			log.Errorf("[ChatService] failed to save conversation history: %v", err)
		}
	}
	return nil
}

// buildContextText renders retrieved sources as numbered citation blocks.
func buildContextText(pc *model.PartyContext) string {
	if pc == nil || len(pc.Sources) == 0 {
		return ""
	}
	var b strings.Builder
	for _, src := range pc.Sources {
		location := ""
		if src.ChapterTitle != "" {
			location = src.ChapterTitle
		}
		if src.PageNumber > 0 {
			if location != "" {
				location += ", "
			}
			location += fmt.Sprintf("p. %d", src.PageNumber)
		}
		if location == "" {
			location = "unknown section"
		}
		b.WriteString(fmt.Sprintf("[%d] (%s, relevance %s) %s\n", src.ID, location, src.Relevance, src.Content))
	}
	return b.String()
}

func (s *chatService) buildSystemMessage(partyName string, pc *model.PartyContext) string {
	rules := s.llmCfg.Prompt.Rules
	if rules == "" {
		rules = fmt.Sprintf("You answer questions about the election program of %s. "+
			"Base every statement on the referenced excerpts and cite them as [n]. "+
			"If the excerpts do not cover the question, say so.", partyName)
	}
	refStart := s.llmCfg.Prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.llmCfg.Prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText := buildContextText(pc); contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := s.llmCfg.Prompt.NoResultText
		if noRes == "" {
			noRes = "(no program excerpts were found for this question)"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

func (s *chatService) loadHistory(ctx context.Context, userID uint, partyCode string) ([]model.ChatMessage, error) {
	convID, err := s.conversationRepo.GetOrCreateConversationID(ctx, userID, partyCode)
	if err != nil {
		return nil, err
	}
	return s.conversationRepo.GetConversationHistory(ctx, convID)
}

func (s *chatService) composeMessages(systemMsg string, history []model.ChatMessage, question string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content.Flatten()})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: question})
	return msgs
}

func (s *chatService) addMessageToConversation(ctx context.Context, userID uint, partyCode, question, answer string) error {
	conversationID, err := s.conversationRepo.GetOrCreateConversationID(ctx, userID, partyCode)
	if err != nil {
		return fmt.Errorf("get or create conversation ID: %w", err)
	}
	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation history: %w", err)
	}

	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: model.PlainContent(question), Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: model.PlainContent(answer), Timestamp: now},
	)
	return s.conversationRepo.UpdateConversationHistory(ctx, conversationID, history)
}

// wsWriterInterceptor wraps a websocket connection so the streamed
// answer can be captured while it is being forwarded to the client.
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage satisfies llm.MessageWriter.
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		return nil
	}
	w.writer.Write(data)
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

func (s *chatService) buildGenerationParams() *llm.GenerationParams {
	var gp llm.GenerationParams
	if s.llmCfg.Generation.Temperature != 0 {
		t := s.llmCfg.Generation.Temperature
		gp.Temperature = &t
	}
	if s.llmCfg.Generation.TopP != 0 {
		p := s.llmCfg.Generation.TopP
		gp.TopP = &p
	}
	if s.llmCfg.Generation.MaxTokens != 0 {
		m := s.llmCfg.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}
