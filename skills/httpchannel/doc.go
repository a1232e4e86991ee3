// Package httpchannel carries skill traffic over HTTP.
//
// Client implements core.SkillClient by posting activities as JSON with a
// signed bearer token. BotHandler is the endpoint a skill exposes to its
// parent; it answers expectReplies and invoke activities synchronously and
// delivers everything else back to the parent's skill host. SkillHostHandler
// is that host endpoint on the parent side, routing replies into a
// skills.Handler.
//
// Tokens are HS256 JWTs carrying ver, appid, aud and iss claims so the
// receiving side can tell skill traffic apart from channel traffic.
package httpchannel
