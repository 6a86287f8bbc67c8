package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for control-channel messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for control-channel messages.
var decMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix, // Unix timestamps
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configure decoder to be lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // Ignore duplicate keys (last wins)
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// NewCommand builds a command envelope with an encoded payload.
// Pass nil payload for commands that carry none.
func NewCommand(cmdType CommandType, transactionID uint16, payload any) (*Message, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", cmdType, err)
	}
	return &Message{
		Kind:          KindCommand,
		Type:          uint8(cmdType),
		TransactionID: transactionID,
		Payload:       raw,
	}, nil
}

// NewResponse builds a response envelope with an encoded payload.
func NewResponse(respType ResponseType, transactionID uint16, payload any) (*Message, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s response payload: %w", respType, err)
	}
	return &Message{
		Kind:          KindResponse,
		Type:          uint8(respType),
		TransactionID: transactionID,
		Payload:       raw,
	}, nil
}

// NewEvent builds an event envelope with an encoded payload.
// Events carry no transaction id.
func NewEvent(eventType EventType, payload any) (*Message, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event payload: %w", eventType, err)
	}
	return &Message{
		Kind:    KindEvent,
		Type:    uint8(eventType),
		Payload: raw,
	}, nil
}

func marshalPayload(payload any) (cbor.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := Marshal(payload)
	if err != nil {
		return nil, err
	}
	return cbor.RawMessage(data), nil
}

// EncodeMessage encodes an envelope to CBOR bytes.
func EncodeMessage(msg *Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return Marshal(msg)
}

// DecodeMessage decodes CBOR bytes into an envelope. The payload stays
// raw; callers dispatch on Kind and Type and then call DecodePayload.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return &msg, nil
}

// PeekKind examines CBOR data to determine the message kind without
// decoding the payload.
func PeekKind(data []byte) (Kind, error) {
	var peek struct {
		Kind Kind `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return 0, fmt.Errorf("failed to peek message: %w", err)
	}
	if !peek.Kind.IsValid() {
		return 0, fmt.Errorf("invalid message kind: %d", peek.Kind)
	}
	return peek.Kind, nil
}
