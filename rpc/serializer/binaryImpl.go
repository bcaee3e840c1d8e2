package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dDoc/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	[MsgType 1 byte][flags 1 byte] then for every flagged field in flag order:
//	[length uint32 big endian][bytes]
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasOp      byte = 1 << 0
	hasParams  byte = 1 << 1
	hasResult  byte = 1 << 2
	hasText    byte = 1 << 3
	hasErrKind byte = 1 << 4
	hasErr     byte = 1 << 5
)

// field binds a flag to the bytes of a message field
type field struct {
	flag byte
	data []byte
}

func fieldsOf(msg *common.Message) []field {
	return []field{
		{hasOp, []byte(msg.Op)},
		{hasParams, msg.Params},
		{hasResult, msg.Result},
		{hasText, []byte(msg.Text)},
		{hasErrKind, []byte(msg.ErrKind)},
		{hasErr, []byte(msg.Err)},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	fields := fieldsOf(&msg)

	// Calculate total size needed
	size := 2
	for _, f := range fields {
		if len(f.data) > 0 {
			size += 4 + len(f.data)
		}
	}

	result := make([]byte, size)
	result[0] = byte(msg.MsgType)
	pos := 2

	var flags byte
	for _, f := range fields {
		if len(f.data) == 0 {
			continue
		}
		flags |= f.flag
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(f.data)))
		pos += 4
		pos += copy(result[pos:], f.data)
	}
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	pos := 2

	// read returns the next length prefixed field
	read := func(name string) ([]byte, error) {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("data too short for %s length", name)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+n > len(data) {
			return nil, fmt.Errorf("data too short for %s data", name)
		}
		out := data[pos : pos+n]
		pos += n
		return out, nil
	}

	targets := []struct {
		flag byte
		name string
		set  func([]byte)
	}{
		{hasOp, "op", func(v []byte) { msg.Op = string(v) }},
		{hasParams, "params", func(v []byte) { msg.Params = append([]byte(nil), v...) }},
		{hasResult, "result", func(v []byte) { msg.Result = append([]byte(nil), v...) }},
		{hasText, "text", func(v []byte) { msg.Text = string(v) }},
		{hasErrKind, "error kind", func(v []byte) { msg.ErrKind = string(v) }},
		{hasErr, "error", func(v []byte) { msg.Err = string(v) }},
	}
	for _, t := range targets {
		if flags&t.flag == 0 {
			continue
		}
		v, err := read(t.name)
		if err != nil {
			return err
		}
		t.set(v)
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-pos)
	}
	return nil
}
