// Package memory implements the addressable memory model of a dialog turn.
//
// Memory is organized into named scopes ("user", "conversation", "turn",
// "dialog", "this", "class", "settings"). A path such as
// "dialog.address.lines[0]" names a scope with its first segment and then
// traverses maps and lists. Short aliases ("$name", "#intent", "@entity",
// "@@entity", "%prop") are rewritten to canonical paths by PathResolvers
// before lookup.
//
// StateManager is the entry point: GetValue, SetValue and RemoveValue over
// the path grammar, plus bulk load and save of all scopes for a turn.
//
// Path grammar:
//
//	path    = scope { "." name | "[" index "]" | "['" key "']" }
//	name    = any characters except ".", "[" and "]"; "first()" and "last()" select list elements
//
// Map keys match case-insensitively. Maps whose keys are exactly "0".."n-1"
// read as lists.
package memory
