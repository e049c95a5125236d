package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "qcsync/internal/errors"
)

// ChatHandler serves the bot command webhook.
type ChatHandler struct {
	service ChatService
	logger  *slog.Logger
}

// NewChatHandler creates a chat webhook handler.
func NewChatHandler(service ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger.With(slog.String("component", "chat_handler")),
	}
}

// Routes returns the chat routes.
func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleMessage)
	return r
}

// ChatRequest is one inbound chat message.
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatResponse is the bot's reply. Handled reports whether the message was
// addressed to the bot; hosts drop unhandled messages silently.
type ChatResponse struct {
	Reply   string `json:"reply"`
	Handled bool   `json:"handled"`
}

// HandleMessage translates a chat message into a strategy lookup.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInvalidRequest))
		return
	}
	if req.Content == "" {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("content", "content is required")))
		return
	}

	reply, handled := h.service.HandleCommand(r.Context(), req.Content)
	h.logger.Debug("chat message processed",
		slog.Bool("handled", handled))

	render.JSON(w, r, ChatResponse{Reply: reply, Handled: handled})
}
