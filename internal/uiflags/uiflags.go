// Package uiflags holds the shared UI transition flags that several
// coordinators consult: project creation in progress, project switch in
// progress, an active drag gesture, and restoration in progress. The browser
// build smuggled these through DOM attributes and session storage; here they
// are one explicit, mutex-guarded object injected where needed.
package uiflags

import "sync"

type Flags struct {
	mu sync.RWMutex

	creatingProject bool
	projectSwitch   bool
	dragging        bool
	restoring       bool
}

func New() *Flags { return &Flags{} }

func (f *Flags) SetCreatingProject(v bool) {
	f.mu.Lock()
	f.creatingProject = v
	f.mu.Unlock()
}

func (f *Flags) CreatingProject() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.creatingProject
}

func (f *Flags) SetProjectSwitch(v bool) {
	f.mu.Lock()
	f.projectSwitch = v
	f.mu.Unlock()
}

func (f *Flags) ProjectSwitch() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.projectSwitch
}

func (f *Flags) SetDragging(v bool) {
	f.mu.Lock()
	f.dragging = v
	f.mu.Unlock()
}

func (f *Flags) Dragging() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dragging
}

func (f *Flags) SetRestoring(v bool) {
	f.mu.Lock()
	f.restoring = v
	f.mu.Unlock()
}

func (f *Flags) Restoring() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.restoring
}
