package credwatcher

import "github.com/bft-labs/pushwire/pkg/pushwire"

// WithCredentialWatcher returns a pushwire Option that reloads the client
// certificate when its file changes.
//
// Usage:
//
//	cred, err := credentials.NewFile("push.pem", "")
//	client := pushwire.New(conn.NewDescriptor(cred, true),
//	    credwatcher.WithCredentialWatcher(credwatcher.DefaultConfig()),
//	)
//	err = client.Start(ctx)
func WithCredentialWatcher(cfg Config) pushwire.Option {
	return pushwire.WithPlugin(New(cfg))
}
