// Package dialogs implements the dialog stack machine: the Dialog contract,
// explicit dialog registries, the per-turn DialogContext and the
// DialogManager that drives one root dialog per conversation.
//
// The package focuses on four concerns:
//
//  1. Stack operations (DialogContext): begin, continue, end, replace,
//     cancel and reprompt against a persisted core.DialogState
//  2. Composition (ComponentDialog, WaterfallDialog): containers with their
//     own registry and child stack, and ordered step sequences
//  3. Memory (DialogContext.State): a memory.StateManager bound to the
//     context so dialogs can read and write user, conversation, turn,
//     dialog and this scopes by path
//  4. Turn driving (DialogManager): state registration, loading, expiry,
//     skill protocol handling and persistence around each turn
//
// Execution model:
//   - Only the dialog on top of the stack consumes a turn
//   - A dialog suspends by returning EndOfTurn and resumes on the next turn
//   - Ending a dialog resumes its parent with the result; an empty stack
//     yields StatusComplete
//
// Dialogs are registered in a DialogSet; there is no global registry.
package dialogs
