package server

import (
	"encoding/json"
	"fmt"

	"ephemsg/internal/model"
	"ephemsg/internal/service/router"
)

// inbound is the tagged union of client events. decodeInbound sets exactly
// one variant after validating it, so the dispatcher never sees a
// half-formed payload.
type inbound struct {
	event string

	login      *model.LoginPayload
	joinRoom   *model.JoinRoomPayload
	typing     *model.TypingPayload
	stopTyping *model.TypingPayload
	send       *model.SendMessagePayload
	delivered  *model.DeliveredPayload
	read       *model.ReadPayload
	reaction   *model.ReactionPayload
}

func decodeInbound(raw []byte) (inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return inbound{}, fmt.Errorf("%w: bad frame: %v", router.ErrValidation, err)
	}

	in := inbound{event: env.Event}
	switch env.Event {
	case model.EventLogin:
		var p model.LoginPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return inbound{}, err
		}
		if p.UserID == "" {
			return inbound{}, fmt.Errorf("%w: login requires userId", router.ErrValidation)
		}
		in.login = &p

	case model.EventJoinRoom:
		var p model.JoinRoomPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return inbound{}, err
		}
		if p.ChatID == "" {
			return inbound{}, fmt.Errorf("%w: join_room requires chatId", router.ErrValidation)
		}
		in.joinRoom = &p

	case model.EventTyping, model.EventStopTyping:
		var p model.TypingPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return inbound{}, err
		}
		if p.ChatID == "" || p.UserID == "" {
			return inbound{}, fmt.Errorf("%w: typing requires chatId and userId", router.ErrValidation)
		}
		if env.Event == model.EventTyping {
			in.typing = &p
		} else {
			in.stopTyping = &p
		}

	case model.EventSendMessage:
		var p model.SendMessagePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return inbound{}, err
		}
		// content may legitimately be empty for media messages; the
		// router validates the rest
		if p.SenderID == "" {
			return inbound{}, fmt.Errorf("%w: send_message requires senderId", router.ErrValidation)
		}
		in.send = &p

	case model.EventMessageDelivered:
		var p model.DeliveredPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return inbound{}, err
		}
		if p.MessageID == "" || p.UserID == "" {
			return inbound{}, fmt.Errorf("%w: message_delivered requires messageId and userId", router.ErrValidation)
		}
		in.delivered = &p

	case model.EventMessageRead:
		var p model.ReadPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return inbound{}, err
		}
		if p.UserID == "" {
			return inbound{}, fmt.Errorf("%w: message_read requires userId", router.ErrValidation)
		}
		if p.MessageID == "" && p.ChatID == "" {
			return inbound{}, fmt.Errorf("%w: message_read requires messageId or chatId", router.ErrValidation)
		}
		in.read = &p

	case model.EventAddReaction:
		var p model.ReactionPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return inbound{}, err
		}
		if p.MessageID == "" || p.UserID == "" || p.Emoji == "" {
			return inbound{}, fmt.Errorf("%w: add_reaction requires messageId, userId and emoji", router.ErrValidation)
		}
		in.reaction = &p

	default:
		return inbound{}, fmt.Errorf("%w: unknown event %q", router.ErrValidation, env.Event)
	}

	return in, nil
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", router.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: bad payload: %v", router.ErrValidation, err)
	}
	return nil
}
