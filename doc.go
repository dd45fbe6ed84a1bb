// Package authcore implements the credential and token lifecycle of an
// email/password account system: signup with email verification, login,
// refresh-token rotation and logout.
//
// The [Engine] composes a credential hasher (bcrypt by default), an HS256
// token issuer with separate access and refresh secrets, and a verification
// token generator. Persistence and email delivery are injected through
// [AccountStore] and [Notifier]; ready-made implementations live under
// store/ and notify/.
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithAccountStore(memory.New()).
//		WithNotifier(notify.NewLogNotifier(logger, "https://api.example.com")).
//		Build()
//
// Every failure is one of the sentinel errors in errors.go and should be
// matched with errors.Is. Credential failures never reveal which check
// failed; store and notifier outages surface as [ErrDependency].
package authcore
