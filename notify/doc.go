// Package notify provides authcore.Notifier implementations: an SMTP sender
// with retry and a structured-log sender for development.
package notify
