// Package testutil contains fluent builders and recording fakes shared by the
// package tests: activities, turn contexts, senders and skill clients.
package testutil
