package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"marketchat/internal/domain/shared/failure"
)

var (
	ErrMalformedEnvelope = failure.New(failure.KindValidation, "events: malformed envelope")
	ErrUnknownEvent      = failure.New(failure.KindValidation, "events: unknown event")
	ErrInvalidPayload    = failure.New(failure.KindValidation, "events: invalid payload")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope frames every event on the wire: {"event": "<name>", "data": {...}}.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode frames an outbound event.
func Encode(evt Outbound) ([]byte, error) {
	if evt == nil {
		return nil, errors.New("events: nil event")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", evt.EventName(), err)
	}
	return json.Marshal(Envelope{Event: evt.EventName(), Data: data})
}

// Decode parses and validates a client command.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformedEnvelope
	}
	var cmd Inbound
	switch env.Event {
	case SendMessage:
		var c SendMessageCommand
		if err := decodeData(env.Data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case MarkRead:
		var c MarkReadCommand
		if err := decodeData(env.Data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case Typing:
		var c TypingCommand
		if err := decodeData(env.Data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case StopTyping:
		var c StopTypingCommand
		if err := decodeData(env.Data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case GetOnlineUsers:
		cmd = GetOnlineUsersCommand{}
	case Ping:
		cmd = PingCommand{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return cmd, nil
}

func decodeData(data json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return ErrInvalidPayload
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", ErrInvalidPayload, verrs[0].Field(), verrs[0].Tag())
		}
		return ErrInvalidPayload
	}
	return nil
}
