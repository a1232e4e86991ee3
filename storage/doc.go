// Package storage provides core.Storage backends for dialog and state bags:
// a process local MemoryStorage, a Redis backed RedisStorage and a SQL
// backed SQLStorage (gorm; sqlite, postgres and mysql drivers).
//
// All backends persist values as JSON and return generic JSON shapes on Read,
// so callers convert to typed values themselves (see state.Property).
package storage
