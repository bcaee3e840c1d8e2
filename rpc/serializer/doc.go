// Package serializer converts common.Message values to bytes and back for the
// framed and HTTP transports of dDoc. The MCP front end on stdio does not use it,
// the MCP SDK owns that encoding.
//
// Every message carries the operation name, the parameter bag or result as raw
// JSON, the one line summary and, for failures, the error kind and message. The
// serializers only differ in how they frame these fields:
//
//   - binary: a flag byte marks the present fields, each present field is written
//     as a length prefixed byte string. Parameters and results are copied through
//     untouched, so the format never has to know about documents. The fastest and
//     smallest option for the tcp and unix transports.
//
//   - json: the message as one JSON object. Readable on the wire, handy when
//     calling the http transport with curl.
//
//   - gob: Go's gob encoding. Slower and larger than binary, kept for clients that
//     already speak gob.
//
// New(name) returns a serializer by name (json, gob, binary), Names lists them.
// All implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	s, err := serializer.New("binary")
//	if err != nil {
//		return err
//	}
//	data, err := s.Serialize(*common.NewCallRequest("ping", nil))
//	// ... send data, receive reply ...
//	var reply common.Message
//	err = s.Deserialize(replyData, &reply)
package serializer
