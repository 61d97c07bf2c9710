// Package types defines the gateway's own HTTP error body.
//
// Synthetic responses constructed by the rules engine carry whatever
// status, headers, and body the engine chose; this package only covers
// errors the gateway originates itself (panics, timeouts, origin
// failures). The body is a small JSON envelope:
//
//	{
//	  "error": {
//	    "message": "An internal error occurred. Please try again later.",
//	    "type": "server_error",
//	    "code": "internal_error"
//	  }
//	}
//
// Helper constructors exist for the common cases:
//
//	types.NewServerError("...")          // 500
//	types.NewBadGatewayError("...")      // 502
//	types.NewGatewayTimeoutError("...")  // 504
package types
