package service

import "sync"

// ErrorHookRegistry maps workflow IDs to the workflow that should run when
// they fail. The mapping is kept in memory and rebuilt from the store on
// startup, so lookups during a run never touch the database.
type ErrorHookRegistry struct {
	mu    sync.RWMutex
	hooks map[string]string
}

func NewErrorHookRegistry() *ErrorHookRegistry {
	return &ErrorHookRegistry{hooks: make(map[string]string)}
}

// Set registers errorWorkflowID as the error handler for workflowID.
// An empty errorWorkflowID removes the registration.
func (r *ErrorHookRegistry) Set(workflowID, errorWorkflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errorWorkflowID == "" {
		delete(r.hooks, workflowID)
		return
	}
	r.hooks[workflowID] = errorWorkflowID
}

// Remove drops any error handler registered for workflowID.
func (r *ErrorHookRegistry) Remove(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, workflowID)
}

// Lookup returns the error workflow registered for workflowID, if any.
func (r *ErrorHookRegistry) Lookup(workflowID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.hooks[workflowID]
	return id, ok
}
