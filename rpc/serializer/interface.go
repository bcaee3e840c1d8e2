package serializer

import (
	"fmt"

	"github.com/ValentinKolb/dDoc/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize encodes a Message
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg. Fields absent in b are reset.
	Deserialize(b []byte, msg *common.Message) error
}

// Names lists the serializers known to New
var Names = []string{"json", "gob", "binary"}

// New returns the serializer registered under name
func New(name string) (IRPCSerializer, error) {
	switch name {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %q (expected one of %v)", name, Names)
	}
}
