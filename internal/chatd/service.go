package chatd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
	"github.com/lk2023060901/copilot-chat/internal/pkg/response"
	"github.com/lk2023060901/copilot-chat/internal/pkg/sse"
	"go.uber.org/zap"
)

// Service handles the single chat endpoint plus the byte-upload and
// preview routes that the attachment protocol issues URLs for.
type Service struct {
	registry    *Registry
	agent       *Agent
	attachments *Attachments
	log         *logger.Logger
}

func NewService(registry *Registry, agent *Agent, attachments *Attachments, log *logger.Logger) *Service {
	if log == nil {
		log = logger.L()
	}
	return &Service{
		registry:    registry,
		agent:       agent,
		attachments: attachments,
		log:         log,
	}
}

// NewRouter builds the gin engine with all chat routes mounted.
func NewRouter(svc *Service, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(logger.GinLogger(log))
	router.Use(logger.GinRecovery(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/chatkit", svc.HandleChatKit)
	router.POST("/chatkit/upload/:id", svc.HandleUpload)
	router.GET("/chatkit/attachments/:id", svc.HandleAttachmentContent)

	return router
}

// requestEnvelope defers params decoding until the type is known.
type requestEnvelope struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// HandleChatKit dispatches on the request type discriminant. Thread
// mutations answer with an SSE stream; reads and attachment calls
// answer with plain JSON.
func (s *Service) HandleChatKit(c *gin.Context) {
	var req requestEnvelope
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	s.log.Debug("chat request", zap.String("type", req.Type))

	switch req.Type {
	case types.RequestThreadsCreate:
		s.handleThreadsCreate(c, req.Params)
	case types.RequestThreadsAddUserMessage:
		s.handleAddUserMessage(c, req.Params)
	case types.RequestThreadsCustomAction:
		s.handleCustomAction(c, req.Params)
	case types.RequestThreadsList:
		s.handleThreadsList(c, req.Params)
	case types.RequestThreadsGetByID:
		s.handleThreadsGetByID(c, req.Params)
	case types.RequestAttachmentsCreate:
		s.handleAttachmentsCreate(c, req.Params)
	case types.RequestAttachmentsDelete:
		s.handleAttachmentsDelete(c, req.Params)
	default:
		response.BadRequest(c, fmt.Sprintf("unknown request type %q", req.Type))
	}
}

func (s *Service) handleThreadsCreate(c *gin.Context, raw json.RawMessage) {
	var params types.ThreadsCreateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		response.BadRequest(c, "invalid threads.create params: "+err.Error())
		return
	}

	thread := s.registry.CreateThread()
	w := sse.NewWriter(c)
	emit := s.emitter(w)

	if err := emit(&types.StreamEvent{Type: types.EventThreadCreated, Thread: thread}); err != nil {
		return
	}
	if err := s.echoUserMessage(thread, params.Input, emit); err != nil {
		return
	}
	s.runAgent(thread, params.Input, emit)
}

func (s *Service) handleAddUserMessage(c *gin.Context, raw json.RawMessage) {
	var params types.ThreadsAddUserMessageParams
	if err := json.Unmarshal(raw, &params); err != nil {
		response.BadRequest(c, "invalid threads.add_user_message params: "+err.Error())
		return
	}

	thread, err := s.registry.Thread(params.ThreadID)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}

	w := sse.NewWriter(c)
	emit := s.emitter(w)

	if err := s.echoUserMessage(&thread, params.Input, emit); err != nil {
		return
	}
	s.runAgent(&thread, params.Input, emit)
}

func (s *Service) handleCustomAction(c *gin.Context, raw json.RawMessage) {
	var params types.ThreadsCustomActionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		response.BadRequest(c, "invalid threads.custom_action params: "+err.Error())
		return
	}

	thread, err := s.registry.Thread(params.ThreadID)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}

	w := sse.NewWriter(c)
	emit := s.emitter(w)

	if err := s.agent.RespondToAction(&thread, params.Action, emit); err != nil {
		s.log.Warn("action stream interrupted", zap.String("thread_id", thread.ID), zap.Error(err))
	}
}

// echoUserMessage records the user turn and streams it back so the
// client folds the authoritative copy.
func (s *Service) echoUserMessage(thread *types.Thread, input types.UserMessageInput, emit EmitFunc) error {
	item := types.ThreadItem{
		ID:               s.registry.NewID("msg"),
		ThreadID:         thread.ID,
		CreatedAt:        time.Now().UTC(),
		Type:             types.ItemTypeUserMessage,
		UserContent:      input.Content,
		InferenceOptions: input.InferenceOptions,
	}
	if input.QuotedText != "" {
		item.QuotedText = &input.QuotedText
	}

	for _, attachmentID := range input.Attachments {
		meta, received := s.attachments.Get(attachmentID)
		if meta == nil || !received {
			s.log.Warn("message references unknown attachment",
				zap.String("thread_id", thread.ID),
				zap.String("attachment_id", attachmentID),
			)
			continue
		}
		item.Attachments = append(item.Attachments, types.Attachment{
			Type:       meta.Type,
			ID:         meta.ID,
			Name:       meta.Name,
			MimeType:   meta.MimeType,
			PreviewURL: meta.PreviewURL,
		})
	}

	s.registry.AppendItem(thread.ID, item)
	return emit(&types.StreamEvent{Type: types.EventThreadItemDone, Item: &item})
}

func (s *Service) runAgent(thread *types.Thread, input types.UserMessageInput, emit EmitFunc) {
	var text string
	for _, part := range input.Content {
		text += part.Text
	}
	if err := s.agent.Respond(thread, text, emit); err != nil {
		s.log.Warn("stream interrupted", zap.String("thread_id", thread.ID), zap.Error(err))
	}
}

// emitter adapts the SSE writer and stops emitting once the client has
// gone away.
func (s *Service) emitter(w *sse.Writer) EmitFunc {
	return func(ev *types.StreamEvent) error {
		select {
		case <-w.Gone():
			return fmt.Errorf("client disconnected")
		default:
		}
		return w.Send(ev)
	}
}

func (s *Service) handleThreadsList(c *gin.Context, raw json.RawMessage) {
	params := types.ThreadsListParams{Limit: 20, Order: "desc"}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			response.BadRequest(c, "invalid threads.list params: "+err.Error())
			return
		}
	}

	entries := s.registry.List(params.Limit, params.Order)
	for i := range entries {
		entries[i].Items = types.ItemPage{Data: []*types.ThreadItem{}}
	}

	out := make([]*types.ThreadListItem, len(entries))
	for i := range entries {
		out[i] = &entries[i]
	}
	response.JSON(c, types.ThreadListResponse{Data: out})
}

func (s *Service) handleThreadsGetByID(c *gin.Context, raw json.RawMessage) {
	var params types.ThreadsGetByIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		response.BadRequest(c, "invalid threads.get_by_id params: "+err.Error())
		return
	}

	thread, err := s.registry.Thread(params.ThreadID)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}

	items := s.registry.Items(thread.ID)
	page := types.ItemPage{Data: make([]*types.ThreadItem, len(items))}
	for i := range items {
		page.Data[i] = &items[i]
	}

	response.JSON(c, types.ThreadDetailResponse{
		ID:        thread.ID,
		Title:     thread.Title,
		CreatedAt: thread.CreatedAt,
		Status:    thread.Status,
		Metadata:  thread.Metadata,
		Items:     page,
	})
}

func (s *Service) handleAttachmentsCreate(c *gin.Context, raw json.RawMessage) {
	var params types.AttachmentsCreateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		response.BadRequest(c, "invalid attachments.create params: "+err.Error())
		return
	}

	meta, err := s.attachments.Create(params)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.JSON(c, meta)
}

func (s *Service) handleAttachmentsDelete(c *gin.Context, raw json.RawMessage) {
	var params types.AttachmentsDeleteParams
	if err := json.Unmarshal(raw, &params); err != nil {
		response.BadRequest(c, "invalid attachments.delete params: "+err.Error())
		return
	}

	if err := s.attachments.Delete(c.Request.Context(), params.AttachmentID); err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.JSON(c, gin.H{"deleted": params.AttachmentID})
}

// HandleUpload is phase two of the attachment protocol: the multipart
// byte upload against the URL issued by attachments.create.
func (s *Service) HandleUpload(c *gin.Context) {
	id := c.Param("id")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file field: "+err.Error())
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := s.attachments.Receive(c.Request.Context(), id, contentType, file, header.Size); err != nil {
		response.NotFound(c, err.Error())
		return
	}

	meta, _ := s.attachments.Get(id)
	response.JSON(c, meta)
}

// HandleAttachmentContent serves stored attachment bytes, used as the
// preview URL for images.
func (s *Service) HandleAttachmentContent(c *gin.Context) {
	id := c.Param("id")

	content, contentType, err := s.attachments.store.Get(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	defer content.Close()

	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, content); err != nil {
		s.log.Warn("failed to write attachment content", zap.String("id", id), zap.Error(err))
	}
}
