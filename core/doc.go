// Package core provides the foundational domain types and contracts used by
// dialogmesh. It defines:
//
//   - Activity (the single tagged record exchanged with channels and skills)
//   - TurnContext (inbound activity, outbound send and per-turn cache)
//   - DialogInstance / DialogState (the persisted dialog stack)
//   - Storage, UserTokenClient and SkillClient (consumed collaborators)
//   - ClaimsIdentity (caller identity and skill detection)
//
// Concrete storage backends, token services and channels live in sibling
// packages; this package only exposes the small interfaces they satisfy.
package core
