// Package transport is the thin NATS plumbing around the decision core:
// it decodes inbound messages, hands them to the engine, and replies.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/leadwire/ai-gateway/internal/config"
	"github.com/leadwire/ai-gateway/internal/contextstore"
	"github.com/leadwire/ai-gateway/internal/engine"
	"github.com/leadwire/ai-gateway/internal/llm"
	"github.com/leadwire/ai-gateway/internal/models"
)

// NATSTransport subscribes to the request subject and serves
// request/reply over NATS.
type NATSTransport struct {
	conn       *nats.Conn
	cfg        *config.Config
	engine     *engine.Engine
	manager    *engine.Manager
	contexts   *contextstore.Service
	background *engine.BackgroundQueue
	logger     *slog.Logger
	sub        *nats.Subscription
}

// NewNATSTransport connects to NATS and wires the handler.
func NewNATSTransport(cfg *config.Config, eng *engine.Engine, manager *engine.Manager, contexts *contextstore.Service, background *engine.BackgroundQueue, logger *slog.Logger) (*NATSTransport, error) {
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name(cfg.ServiceName),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", "url", cfg.NatsURL)

	return &NATSTransport{
		conn:       conn,
		cfg:        cfg,
		engine:     eng,
		manager:    manager,
		contexts:   contexts,
		background: background,
		logger:     logger,
	}, nil
}

// Start subscribes to the request subject.
func (nt *NATSTransport) Start() error {
	sub, err := nt.conn.Subscribe(nt.cfg.NatsRequestSubject, nt.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", nt.cfg.NatsRequestSubject, err)
	}
	nt.sub = sub
	nt.logger.Info("subscribed", "subject", nt.cfg.NatsRequestSubject)
	return nil
}

func (nt *NATSTransport) handleMessage(msg *nats.Msg) {
	var req models.MessageRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		nt.logger.Error("failed to parse request", "error", err)
		nt.respondError(msg, "", models.ErrorCodeValidation, "invalid request format")
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		nt.respondError(msg, req.ConversationID, models.ErrorCodeValidation, "conversation_id must be a UUID")
		return
	}
	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		nt.respondError(msg, req.ConversationID, models.ErrorCodeValidation, "lead_id must be a UUID")
		return
	}

	conv := nt.manager.GetOrCreate(conversationID, leadID)

	inbound, err := models.NewMessage(conversationID, req.Content, models.DirectionInbound, 1.0)
	if err != nil {
		nt.respondError(msg, req.ConversationID, models.ErrorCodeValidation, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), nt.cfg.NatsTimeout)
	defer cancel()

	outbound, intent, err := nt.engine.ProcessMessage(ctx, inbound, conv)
	if err != nil {
		code, detail := classifyError(err)
		nt.logger.Error("failed to process message",
			"conversation_id", conversationID, "code", code, "error", err)
		nt.respondError(msg, req.ConversationID, code, detail)
		return
	}

	resp := &models.MessageResponse{
		ConversationID: conversationID.String(),
		MessageID:      outbound.ID.String(),
		Content:        outbound.Content,
		Intent: &models.WireIntent{
			Type:          intent.Type,
			Confidence:    intent.Confidence,
			RequiresHuman: intent.RequiresHuman,
		},
		Status:  conv.Status,
		Handoff: conv.Status == models.StatusHumanNeeded,
	}
	nt.respond(msg, resp)

	// Best-effort reconciliation after the reply is already out: rebuild
	// the projection from the aggregate and refresh the cache entry. A
	// failure here is logged by the queue and never reaches the caller.
	projection := nt.engine.Project(conv)
	nt.background.Enqueue(engine.Task{
		Name: "context-refresh " + conversationID.String(),
		Run: func(ctx context.Context) error {
			return nt.contexts.Put(ctx, conversationID, projection)
		},
	})
}

// classifyError maps engine failures onto wire error codes.
func classifyError(err error) (code, detail string) {
	switch {
	case errors.Is(err, engine.ErrQueueFull):
		return models.ErrorCodeOverloaded, "service is at capacity, try again shortly"
	case errors.Is(err, models.ErrMismatchedConversation),
		errors.Is(err, models.ErrConversationClosed),
		errors.Is(err, models.ErrEmptyContent):
		return models.ErrorCodeValidation, err.Error()
	case errors.Is(err, contextstore.ErrCorruptContext):
		return models.ErrorCodeCorrupt, "stored conversation context is unreadable"
	case errors.Is(err, contextstore.ErrCircuitOpen):
		return models.ErrorCodeCircuitOpen, "context store is unavailable"
	case llm.IsTransient(err):
		return models.ErrorCodeTransient, "language model provider is unavailable, try again shortly"
	default:
		return models.ErrorCodeInternal, "failed to process message"
	}
}

func (nt *NATSTransport) respond(msg *nats.Msg, resp *models.MessageResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		nt.logger.Error("failed to marshal response", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		nt.logger.Error("failed to send response", "error", err)
	}
}

func (nt *NATSTransport) respondError(msg *nats.Msg, conversationID, code, detail string) {
	nt.respond(msg, &models.MessageResponse{
		ConversationID: conversationID,
		ErrorCode:      &code,
		ErrorMessage:   &detail,
	})
}

// Close drains the subscription and closes the connection.
func (nt *NATSTransport) Close() error {
	if nt.sub != nil {
		if err := nt.sub.Drain(); err != nil {
			nt.logger.Warn("failed to drain subscription", "error", err)
		}
	}
	if nt.conn != nil {
		nt.conn.Close()
		nt.logger.Info("NATS connection closed")
	}
	return nil
}
