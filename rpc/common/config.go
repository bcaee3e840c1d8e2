package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/errs"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// TCPConf holds the socket options of TCP connections
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// SocketConf holds the buffer sizes of socket based transports
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// ServerTransportConfig holds the settings of the server transport
type ServerTransportConfig struct {
	// Name of the transport (stdio, http, tcp, unix)
	Name string
	// Endpoint the transport listens on (host:port or socket path, unused for stdio)
	Endpoint string
	// WorkersPerConn limits the concurrent requests per framed connection
	WorkersPerConn int
	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters of the dDoc server.
type ServerConfig struct {
	Transport ServerTransportConfig
	// Serializer name (json, gob, binary), unused for stdio
	Serializer string

	// MongoURL is the address used by implicit connects when a call carries no url
	MongoURL string

	// TimeoutSecond bounds every call (0 disables)
	TimeoutSecond int64

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Transport", c.Transport.Name)
	if c.Transport.Name != "stdio" {
		addField("Endpoint", c.Transport.Endpoint)
		addField("Serializer", c.Serializer)
	}
	if c.Transport.Name == "tcp" || c.Transport.Name == "unix" {
		addField("Workers per Connection", strconv.Itoa(c.Transport.WorkersPerConn))
	}
	if c.TimeoutSecond > 0 {
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	} else {
		addField("Timeout", "disabled")
	}

	addSection("Document Store")
	addField("Default Address", errs.Redact(c.MongoURL))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the settings of the client transport
type ClientTransportConfig struct {
	Endpoints              []string
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// ClientConfig holds the configuration of an RPC client
type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
