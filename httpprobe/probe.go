package httpprobe

import (
	"context"
	"errors"

	"github.com/jpalmerr/dbwait"
)

// Probe returns a probe that performs req on every attempt and is satisfied
// when accept returns true for the response. A nil accept is satisfied by
// any 2xx response.
//
// Transport failures such as a refused connection are returned marked with
// [dbwait.Retryable], since the service may still be starting. A request
// that cannot be built fails the poll at once.
//
// Example:
//
//	probe := httpprobe.Probe(client, httpprobe.Request{URL: "http://svc/health"},
//	    httpprobe.JSONField("status", "up"))
func Probe(c *Client, req Request, accept Matcher) dbwait.Probe[Response] {
	if accept == nil {
		accept = StatusIn2xx
	}
	return func(ctx context.Context) (Response, bool, error) {
		resp, err := c.Fetch(ctx, req)
		if err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) || ctx.Err() != nil {
				return resp, false, err
			}
			return resp, false, dbwait.Retryable(err)
		}
		return resp, accept(resp), nil
	}
}
