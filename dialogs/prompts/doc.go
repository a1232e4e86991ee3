// Package prompts provides dialogs that ask the user for a single value and
// keep asking until a valid one arrives: TextPrompt, NumberPrompt and
// OAuthPrompt.
//
// Prompts store their PromptOptions and an attempt counter in their dialog
// instance, so they survive across turns like any other dialog. Prompt
// texts may reference memory with Go template markers such as
// "Hello {{.user.name}}"; they are rendered once when the prompt begins.
package prompts
