// Package transport is the REST client for the notification API.
//
// Every Client method is one request with one outcome. Responses are
// normalised at this boundary: envelopes such as {"success":true,"data":...}
// are unwrapped and records are decoded with notifications.DecodeList, so
// field casing never leaks past this package.
//
//	client, err := transport.New(cfg.APIURL, tokens,
//	    transport.WithTimeout(cfg.HTTPTimeout),
//	    transport.WithRecorder(metrics.NewTransport(reg, "notifykit")),
//	)
//	list, err := client.FetchAll(ctx)
//	switch {
//	case transport.IsAuthFailure(err):
//		// tear the session down
//	case err != nil:
//		// transient; log or show a banner
//	}
//
// The client never retries and never mutates the store.
package transport
