package port

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/errmap"
	"github.com/aelexs/directchat/pkg/protocol"
)

type userIDKey struct{}

// HTTPHandler serves the authenticated REST read paths.
type HTTPHandler struct {
	auth    Authenticator
	service ChatService
	logger  *slog.Logger
}

// NewHTTPHandler creates an HTTPHandler.
func NewHTTPHandler(auth Authenticator, service ChatService, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{auth: auth, service: service, logger: logger}
}

// Routes mounts the direct chat endpoints on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/direct-chats", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.getLastChats)
		r.Get("/chat-messages", h.getChatMessages)
	})
}

func (h *HTTPHandler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

func userFromContext(ctx context.Context) domain.UserID {
	id, _ := ctx.Value(userIDKey{}).(domain.UserID)
	return id
}

func (h *HTTPHandler) getLastChats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.get_last_chats")
	defer span.End()

	var fields []protocol.FieldError
	q := lastChatsQuery{
		Page: queryInt(r, "page", domain.DefaultPage, &fields),
		Take: queryInt(r, "take", domain.DefaultPageSize, &fields),
	}
	if err := checkQuery(q, fields); err != nil {
		h.respondError(w, r, err)
		return
	}

	chats, err := h.service.GetUserLastChats(ctx, userFromContext(ctx), domain.NewPage(q.Page, q.Take))
	if err != nil {
		span.RecordError(err)
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewSuccess(toProtocolChats(chats)))
}

func (h *HTTPHandler) getChatMessages(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.get_chat_messages")
	defer span.End()

	var fields []protocol.FieldError
	q := chatMessagesQuery{
		ChatID: r.URL.Query().Get("chatId"),
		Page:   queryInt(r, "page", domain.DefaultPage, &fields),
		Take:   queryInt(r, "take", domain.DefaultPageSize, &fields),
	}
	if err := checkQuery(q, fields); err != nil {
		h.respondError(w, r, err)
		return
	}
	chatID, err := domain.NewChatID(q.ChatID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	messages, err := h.service.GetChatMessages(ctx, userFromContext(ctx), chatID, domain.NewPage(q.Page, q.Take))
	if err != nil {
		span.RecordError(err)
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewSuccess(toProtocolMessages(messages)))
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := errmap.ToHTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "http.request_failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.DebugContext(r.Context(), "http.request_rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, err)
}

// queryInt reads an integer query parameter. An absent parameter yields def;
// a non-integer one is recorded in fields.
func queryInt(r *http.Request, name string, def int, fields *[]protocol.FieldError) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*fields = append(*fields, protocol.FieldError{
			Field:   name,
			Message: name + " must be an integer number",
		})
		return def
	}
	return n
}

// checkQuery merges parse failures with rule violations. A field that failed
// to parse reports only the parse failure.
func checkQuery(q any, parseFields []protocol.FieldError) error {
	err := validateInput(q)
	if len(parseFields) == 0 {
		return err
	}
	var verr *errmap.ValidationError
	if err != nil && !errors.As(err, &verr) {
		return err
	}
	fields := parseFields
	if verr != nil {
		fields = append(fields, lo.Reject(verr.Fields, func(f protocol.FieldError, _ int) bool {
			return lo.ContainsBy(parseFields, func(p protocol.FieldError) bool { return p.Field == f.Field })
		})...)
	}
	return errmap.NewValidationError(fields)
}
