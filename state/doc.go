// Package state provides the storage-backed state bags that back the "user"
// and "conversation" memory scopes. A BotState is read once per turn, cached
// in the turn state and written back only when it changed.
package state
