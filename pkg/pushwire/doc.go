// Package pushwire is a client for the binary push notification gateway.
//
// A Client submits notifications synchronously, concurrently across a pool
// of workers, or through a started queue pool that accepts items without
// blocking. It also fetches the feedback service's list of inactive devices.
//
// Basic usage:
//
//	cred, err := credentials.FromPKCS12File("push.p12", "secret")
//	if err != nil {
//	    return err
//	}
//	client := pushwire.New(conn.NewDescriptor(cred, true),
//	    pushwire.WithLogger(log.NewZerologAdapter(log.LevelInfo)),
//	)
//	defer client.Close(ctx)
//
//	outcome, err := client.SubmitOne(ctx, token, payload.Alert("hello"))
//
// Plugins run alongside the client between Start and Close; see
// plugins/credwatcher for certificate hot reload.
package pushwire
