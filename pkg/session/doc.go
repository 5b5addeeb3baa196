// Package session holds the registry of live remote browser sessions.
//
// A session pairs one driver connection with at most one stored page.
// Storing a page evicts the previous one, so after a navigation replaces a
// page handle the registry simply forgets the old handle.
//
// # Usage
//
//	reg := session.NewRegistry(pwdriver.New())
//	defer reg.Shutdown()
//
//	ps, err := reg.GetOrCreatePageSession(ctx, session.PageRequest{
//	    Endpoint: "wss://browser.example.com",
//	    Token:    token,
//	})
//
// # Closing
//
// CloseSessions applies one criterion (id, workflow, age or all) and removes
// every selected entry even when closing its connection fails.
//
// # Concurrency
//
// The registry is safe for concurrent use but does not serialize callers of
// the same session. Two actions racing on one session both see the same page
// and the last StorePage wins.
package session
