/*
Package rpc implements the FreeIPA session JSON-RPC protocol.

# Session Lifecycle

A Client starts unauthenticated. Login posts a form to
/ipa/session/login_password; LoginKerberos negotiates SPNEGO against
/ipa/session/login_kerberos. Both store the ipa_session cookie returned by
the server. Requests sent before a successful login fail with
ErrNotAuthenticated without touching the network. A 401 from the JSON
endpoint marks the session expired; nothing is retried automatically.

# Wire Format

Every call is a POST to /ipa/session/json:

	{"method": "user_show/2.254", "params": [["admin"], {"all": true}], "id": "go-freeipa.<uuid>"}

The options object is always encoded as {} when empty. Responses carry
result, error, principal, id and an optional version.

# Request Bodies

RequestBody is a value type. Every With method returns a copy, so a body
can be used as a template:

	base := rpc.NewRequestBody("user_find", rpc.WithOpts(map[string]any{"all": true}))
	admins := base.WithAddedOptions(map[string]any{"in_group": "admins"})

# Error Handling

Errors are typed and categorized:

  - ConfigurationError: unusable options, unreadable CA file
  - EncodingError and DecodingError: JSON failures
  - AuthenticationError: rejected login, with the error page title and
    the X-IPA-Rejection-Reason header
  - NotAuthenticatedError: request before login
  - TransportError: network failure or unexpected HTTP status
  - RPCError: error member of a response, NotFound included

GetErrorCategory and the Is*Error helpers classify any error in the chain.

# Logging

All logging goes through the tflog "freeipa" subsystem of the root logger in
the context passed to NewClientWithContext. Without a root logger nothing is
written. Password and cookie fields are masked.
*/
package rpc
