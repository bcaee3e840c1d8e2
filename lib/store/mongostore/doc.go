// Package mongostore implements store.IConn on top of the official MongoDB Go driver.
//
// NewConnector opens a client for a mongodb:// or mongodb+srv:// address and pings the
// primary before handing the connection out. A connection whose ping fails is
// disconnected again, so a caller never receives a half open handle.
//
// Every IConn method maps to exactly one driver call. Requests that the driver has no
// typed helper for (create with options, user management) are sent as raw commands
// through Database.RunCommand.
package mongostore
