// Package referral accepts signed identity-provider webhooks and records
// which referral code brought each user in.
//
// Two pieces do the work. The ingestion gate (package ingest) verifies a
// delivery's headers, freshness and HMAC signature over the raw body and
// turns it into a typed event. The attribution service (package
// attribution) applies a referral code to a user at most once, using the
// backend's create-if-absent primitive so racing writers agree on a winner.
//
// Key features:
//   - Svix-compatible signature verification with secret rotation
//   - First-write-wins attribution over memory, Redis, Postgres, MongoDB
//     or the provider's own user metadata
//   - Replay detection by delivery id, recorded only after success
//   - Unknown event types accepted and ignored
//
// Quick start:
//
//	svc, err := referral.New(
//	    referral.WithStore(memory.New()),
//	    referral.WithSecret(os.Getenv("CLERK_WEBHOOK_SECRET")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	outcome, err := svc.Ingest(ctx, body, r.Header)
package referral
