package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/callwarden/callwarden/internal/service"
)

// MockTranscriber is a test double for the batch transcription collaborator.
type MockTranscriber struct {
	Transcript service.BatchTranscript
	Err        error
	Calls      int
}

// Transcribe returns the configured transcript or error.
func (m *MockTranscriber) Transcribe(_ context.Context, _ string) (service.BatchTranscript, error) {
	m.Calls++
	if m.Err != nil {
		return service.BatchTranscript{}, m.Err
	}
	return m.Transcript, nil
}

// MockArtifactStore is an in-memory test double for the audio artifact
// store. Delete is idempotent, matching the real store's contract.
type MockArtifactStore struct {
	mu      sync.Mutex
	objects map[string]bool
	PutErr  error
}

// NewMockArtifactStore creates an empty in-memory artifact store.
func NewMockArtifactStore() *MockArtifactStore {
	return &MockArtifactStore{objects: make(map[string]bool)}
}

func (m *MockArtifactStore) key(ownerID, sessionID string) string {
	return ownerID + "/" + sessionID
}

// Put records an artifact.
func (m *MockArtifactStore) Put(_ context.Context, ownerID, sessionID string, _ io.Reader, _ string) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(ownerID, sessionID)
	m.objects[key] = true
	return key, nil
}

// PresignGet returns a fake URL for the artifact.
func (m *MockArtifactStore) PresignGet(_ context.Context, ownerID, sessionID string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://audio.test/%s/%s", ownerID, sessionID), nil
}

// Delete removes an artifact; deleting a missing key is not an error.
func (m *MockArtifactStore) Delete(_ context.Context, ownerID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, m.key(ownerID, sessionID))
	return nil
}

// Exists reports whether an artifact is present.
func (m *MockArtifactStore) Exists(ownerID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[m.key(ownerID, sessionID)]
}
