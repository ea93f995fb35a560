// Package bearer supplies bearer tokens to the transport and realtime
// layers.
//
// Accessor is the only thing those layers depend on: it returns the current
// token and reports expiry. Holder is the in-memory implementation; it reads
// the exp claim of JWTs (without verifying them) to answer Expired.
// FromTokenSource adapts any oauth2.TokenSource, and KeyringStore keeps a
// token in the OS keychain between runs.
//
//	tokens := bearer.Static(os.Getenv("NOTIFY_TOKEN"))
//	if tokens.Expired() {
//		// ask the user to log in again
//	}
package bearer
