package httpchannel

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/skills"
)

// SkillHostOptions configures a SkillHostHandler.
type SkillHostOptions struct {
	// Authenticator verifies calling skills. Nil accepts anonymous callers.
	Authenticator *Authenticator
	Logger        logging.Logger
}

// SkillHostHandler is the endpoint skills reply to. It serves
//
//	POST /v3/conversations/{conversationId}/activities
//	POST /v3/conversations/{conversationId}/activities/{activityId}
//
// relative to the service url handed to the skill.
type SkillHostHandler struct {
	handler *skills.Handler
	mux     *http.ServeMux
	opts    SkillHostOptions
}

var _ http.Handler = (*SkillHostHandler)(nil)

// NewSkillHostHandler creates the host endpoint for handler.
func NewSkillHostHandler(handler *skills.Handler, optFns ...func(o *SkillHostOptions)) *SkillHostHandler {
	opts := SkillHostOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &SkillHostHandler{handler: handler, mux: http.NewServeMux(), opts: opts}
	h.mux.HandleFunc("POST /v3/conversations/{conversationId}/activities", h.sendToConversation)
	h.mux.HandleFunc("POST /v3/conversations/{conversationId}/activities/{activityId}", h.replyToActivity)
	return h
}

// ServeHTTP routes the request.
func (h *SkillHostHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *SkillHostHandler) sendToConversation(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

func (h *SkillHostHandler) replyToActivity(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, r.PathValue("activityId"))
}

func (h *SkillHostHandler) serve(w http.ResponseWriter, r *http.Request, activityID string) {
	auth := h.opts.Authenticator
	if auth == nil {
		auth = NewAuthenticator(nil, func(o *AuthenticatorOptions) { o.AllowAnonymous = true })
	}
	claims, err := auth.Authenticate(r)
	if err != nil {
		h.opts.Logger.Debug("skill.host.unauthorized", "error", err)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	activity, err := decodeActivity(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	conversationID := r.PathValue("conversationId")

	var resp any
	if activityID == "" {
		resp, err = h.handler.OnSendToConversation(ctx, claims, conversationID, activity)
	} else {
		resp, err = h.handler.OnReplyToActivity(ctx, claims, conversationID, activityID, activity)
	}
	switch {
	case errors.Is(err, skills.ErrSkillConversationNotFound):
		writeJSONError(w, http.StatusNotFound, "conversation not found")
	case err != nil:
		h.opts.Logger.Error("skill.host.failed", "skill_conversation_id", conversationID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "activity failed")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}
