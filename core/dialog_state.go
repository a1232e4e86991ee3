package core

// DialogInstance is one frame on the dialog stack.
type DialogInstance struct {
	ID    string         `json:"id"`
	State map[string]any `json:"state"`
}

// NewDialogInstance creates a frame for dialog id with empty state.
func NewDialogInstance(id string) *DialogInstance {
	return &DialogInstance{ID: id, State: map[string]any{}}
}

// DialogState is the persisted dialog stack for a conversation. The active
// dialog is the last element.
type DialogState struct {
	DialogStack []*DialogInstance `json:"dialogStack"`
}

// NewDialogState creates an empty dialog state.
func NewDialogState() *DialogState {
	return &DialogState{DialogStack: []*DialogInstance{}}
}

// Top returns the active instance or nil.
func (s *DialogState) Top() *DialogInstance {
	if s == nil || len(s.DialogStack) == 0 {
		return nil
	}
	return s.DialogStack[len(s.DialogStack)-1]
}
