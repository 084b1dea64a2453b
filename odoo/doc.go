// Package odoo is the JSON-RPC transport to an Odoo server.
//
// The sync core treats Odoo as an opaque remote reached through
// [Executor]. [Client] is the production implementation: it speaks
// JSON-RPC 2.0 against /jsonrpc, logs in lazily and caches the uid, and
// wraps each call with a circuit breaker gate, a token-bucket rate limiter
// and an OpenTelemetry span.
//
//	c, err := odoo.New(odoo.Config{
//	    URL:      "https://erp.example.com",
//	    Database: "prod",
//	    Username: "sync@example.com",
//	    APIKey:   os.Getenv("ODOO_API_KEY"),
//	}, odoo.WithBreaker(breaker))
//
//	ids, err := odoo.Search(ctx, c, "res.partner", odoo.Domain{{"email", "=", "a@b.c"}}, nil)
//
// Remote failures are returned as [*Error], which carries the HTTP status
// for the failure classifier.
package odoo
