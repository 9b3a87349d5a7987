package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"peerlearn-chat/internal/events"
	"peerlearn-chat/internal/services"
	peerlearn_errors "peerlearn-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dispatchTimeout = 10 * time.Second

// Dispatcher routes inbound client events to the owning service. The switch
// over events.InboundType is exhaustive: adding a new inbound event without a
// case here fails the dispatch coverage test.
type Dispatcher struct {
	chat      *services.ChatService
	receipts  *services.ReceiptService
	reactions *services.ReactionService
	hub       *Hub
	logger    *WebSocketLogger
}

func NewDispatcher(chat *services.ChatService, receipts *services.ReceiptService, reactions *services.ReactionService, hub *Hub) *Dispatcher {
	return &Dispatcher{
		chat:      chat,
		receipts:  receipts,
		reactions: reactions,
		hub:       hub,
		logger:    NewWebSocketLogger(),
	}
}

// Dispatch handles one raw frame from a client connection.
func (d *Dispatcher) Dispatch(c *Client, raw []byte) {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.sendError(c, "", peerlearn_errors.ErrInvalidInput, "malformed envelope")
		return
	}

	eventType, ok := events.ParseInbound(env.Type)
	if !ok {
		d.logger.Warn("unknown event type", c.userID, c.clientID, zap.String("event_type", env.Type))
		d.sendError(c, env.Type, peerlearn_errors.ErrInvalidInput, "unknown event type")
		return
	}

	if !c.rateLimiter.Allow(eventType) {
		d.logger.Warn("rate limit exceeded", c.userID, c.clientID, zap.String("event_type", env.Type))
		d.sendError(c, env.Type, peerlearn_errors.ErrRateLimited, "rate limit exceeded")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	ctx = services.WithUserContext(ctx, c.userID)

	var err error
	switch eventType {
	case events.InboundJoinRoom:
		err = d.handleJoinRoom(ctx, c, env.Payload)
	case events.InboundLeaveRoom:
		err = d.handleLeaveRoom(c, env.Payload)
	case events.InboundSendMessage:
		err = d.handleSendMessage(ctx, c, env.Payload)
	case events.InboundEditMessage:
		err = d.handleEditMessage(ctx, c, env.Payload)
	case events.InboundDeleteMessage:
		err = d.handleDeleteMessage(ctx, c, env.Payload)
	case events.InboundTypingStart:
		err = d.handleTyping(c, env.Payload, events.OutboundTypingStart)
	case events.InboundTypingStop:
		err = d.handleTyping(c, env.Payload, events.OutboundTypingStop)
	case events.InboundAddReaction:
		err = d.handleReaction(ctx, c, env.Payload, d.reactions.Add)
	case events.InboundRemoveReaction:
		err = d.handleReaction(ctx, c, env.Payload, d.reactions.Remove)
	case events.InboundAckDelivered:
		err = d.handleAck(ctx, c, env.Payload, d.receipts.AckDelivered)
	case events.InboundAckRead:
		err = d.handleAck(ctx, c, env.Payload, d.receipts.AckRead)
	case events.InboundPresence:
		err = d.handlePresence(c, env.Payload)
	case events.InboundPing:
		err = d.handlePing(c)
	}

	if err != nil {
		d.sendError(c, env.Type, err, err.Error())
	}
}

func (d *Dispatcher) handleJoinRoom(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p events.RoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}

	ok, err := d.chat.IsParticipant(ctx, p.ConversationID, c.userID)
	if err != nil {
		return err
	}
	if !ok {
		// Refused quietly: a join probe must not reveal whether the
		// conversation exists.
		d.logger.Warn("join refused", c.userID, c.clientID, zap.String("conversation_id", p.ConversationID.String()))
		return nil
	}

	d.hub.Join(c, p.ConversationID)
	return nil
}

func (d *Dispatcher) handleLeaveRoom(c *Client, raw json.RawMessage) error {
	var p events.RoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}
	d.hub.Leave(c, p.ConversationID)
	return nil
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p events.SendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}

	_, err := d.chat.Send(ctx, c.userID, services.SendMessageInput{
		ConversationID: p.ConversationID,
		Content:        p.Content,
		Media:          p.Media,
		ReplyTo:        p.ReplyTo,
		Encrypted:      p.Encrypted,
	})
	return err
}

func (d *Dispatcher) handleEditMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p events.EditMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}
	_, err := d.chat.Edit(ctx, c.userID, p.MessageID, p.Content)
	return err
}

func (d *Dispatcher) handleDeleteMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p events.DeleteMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}
	return d.chat.Delete(ctx, c.userID, p.MessageID)
}

// handleTyping relays typing indicators to the room without touching
// persistence. The originating connection is excluded; the typist's other
// tabs still see the indicator.
func (d *Dispatcher) handleTyping(c *Client, raw json.RawMessage, out events.OutboundType) error {
	var p events.RoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}
	if !d.hub.InRoom(c, p.ConversationID) {
		return peerlearn_errors.ErrForbidden
	}

	data, err := events.Marshal(out, events.TypingPayload{
		ConversationID: p.ConversationID,
		UserID:         c.userID,
	})
	if err != nil {
		return err
	}
	d.hub.ToConversationExceptClient(p.ConversationID, data, c)
	return nil
}

func (d *Dispatcher) handleReaction(ctx context.Context, c *Client, raw json.RawMessage, apply func(context.Context, uuid.UUID, uuid.UUID, string) error) error {
	var p events.ReactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}
	return apply(ctx, c.userID, p.MessageID, p.Emoji)
}

func (d *Dispatcher) handleAck(ctx context.Context, c *Client, raw json.RawMessage, apply func(context.Context, uuid.UUID, uuid.UUID, []uuid.UUID) error) error {
	var p events.AckPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}
	return apply(ctx, c.userID, p.ConversationID, p.MessageIDs)
}

func (d *Dispatcher) handlePresence(c *Client, raw json.RawMessage) error {
	var p events.PresencePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return peerlearn_errors.ErrInvalidInput
	}
	return d.hub.SetPresence(c, p.Status)
}

func (d *Dispatcher) handlePing(c *Client) error {
	data, err := events.Marshal(events.OutboundPong, struct{}{})
	if err != nil {
		return err
	}
	d.hub.deliverDirect(c, data)
	return nil
}

func (d *Dispatcher) sendError(c *Client, ref string, err error, reason string) {
	data, merr := events.Marshal(events.OutboundError, events.ErrorPayload{
		Code:   errorCode(err),
		Reason: reason,
		Ref:    ref,
	})
	if merr != nil {
		d.logger.Error("marshal error event", c.userID, c.clientID, merr)
		return
	}
	d.hub.deliverDirect(c, data)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, peerlearn_errors.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, peerlearn_errors.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, peerlearn_errors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, peerlearn_errors.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, peerlearn_errors.ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, peerlearn_errors.ErrServiceUnavailable):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
