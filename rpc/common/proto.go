package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Op     string          `json:"op,omitempty"`     // Used for: Call (request and response)
	Params json.RawMessage `json:"params,omitempty"` // Used for: Call requests, a JSON object

	// Response only fields
	Result  json.RawMessage `json:"result,omitempty"`  // Relaxed Extended JSON, used for: Success, List
	Text    string          `json:"text,omitempty"`    // One line summary, used for: Success
	ErrKind string          `json:"errKind,omitempty"` // Error kind (see errs.Kind), used for: Error
	Err     string          `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewCallRequest creates a request for the named operation
func NewCallRequest(op string, params json.RawMessage) *Message {
	return &Message{
		MsgType: MsgTCall,
		Op:      op,
		Params:  params,
	}
}

// NewListRequest creates a request for the operation catalogue
func NewListRequest() *Message {
	return &Message{MsgType: MsgTList}
}

// NewSuccessResponse creates the response of a successful call
func NewSuccessResponse(op string, result json.RawMessage, text string) *Message {
	return &Message{
		MsgType: MsgTSuccess,
		Op:      op,
		Result:  result,
		Text:    text,
	}
}

// NewListResponse creates the response to a list request
func NewListResponse(catalogue json.RawMessage) *Message {
	return &Message{
		MsgType: MsgTList,
		Result:  catalogue,
	}
}

// NewErrorResponse creates a failure response
func NewErrorResponse(op string, kind string, err error) *Message {
	msg := &Message{
		MsgType: MsgTError,
		Op:      op,
		ErrKind: kind,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// --------------------------------------------------------------------------
// Message Type
// --------------------------------------------------------------------------

// MessageType is the type of message
type MessageType uint8

// String returns the string representation of the MessageType
func (t MessageType) String() string {
	switch t {
	case MsgTCall:
		return "call"
	case MsgTList:
		return "list"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "call":
		*t = MsgTCall
	case "list":
		*t = MsgTList
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	MsgTCall // Call a named operation
	MsgTList // List the operation catalogue
)
