// Package usertoken provides an in-memory core.UserTokenClient for tests,
// local development and the examples. Tokens, magic codes and exchangeable
// SSO tokens are seeded explicitly.
package usertoken
