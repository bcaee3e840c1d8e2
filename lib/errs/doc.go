// Package errs defines the error taxonomy shared by the session, the
// operation handlers and the dispatch front end.
//
// Every error type carries the context needed to render a useful message
// (operation name, target, address, underlying cause) and reports a Kind.
// The dispatch front end uses KindOf to turn any error into a uniform
// failure reply, so no error ever has to be matched by its message.
package errs
