// Package skills lets a dialog bot call other bots ("skills") as if they
// were local dialogs.
//
// The package focuses on three concerns:
//
//  1. SkillDialog forwards turns to a remote skill over a core.SkillClient,
//     relays the skill's replies and ends when the skill sends an end of
//     conversation. SSO OAuth cards sent by the skill are intercepted and
//     answered with a silent token exchange when possible.
//  2. ConversationIDFactory maps the conversation between parent and skill
//     to the parent's original conversation. StorageConversationIDFactory
//     persists the mapping in a core.Storage.
//  3. Handler receives the skill's out-of-band replies on the parent side
//     and routes them back into the original conversation.
//
// The HTTP transport lives in skills/httpchannel.
package skills
