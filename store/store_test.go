package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProfile = "http://localhost:8000/api/v1"

func TestFileStore_SaveReadClear(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "session.json"), testProfile, nil)

	_, ok := s.Read()
	assert.False(t, ok, "fresh store should be empty")

	s.Save("alice")
	username, ok := s.Read()
	require.True(t, ok)
	assert.Equal(t, "alice", username)

	s.Clear()
	_, ok = s.Read()
	assert.False(t, ok)
}

func TestFileStore_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	NewFileStore(path, testProfile, nil).Save("alice")

	username, ok := NewFileStore(path, testProfile, nil).Read()
	require.True(t, ok)
	assert.Equal(t, "alice", username)
}

func TestFileStore_PreservesOtherProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	prod := NewFileStore(path, "https://climate.example.com/api/v1", nil)
	local := NewFileStore(path, testProfile, nil)

	prod.Save("bob")
	local.Save("alice")
	local.Clear()

	username, ok := prod.Read()
	require.True(t, ok)
	assert.Equal(t, "bob", username)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var f sessionFile
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, map[string]string{"https://climate.example.com/api/v1": "bob"}, f.Usernames)
}

func TestFileStore_ConcurrentSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			NewFileStore(path, fmt.Sprintf("profile-%d", id), nil).Save(fmt.Sprintf("user-%d", id))
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var f sessionFile
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Len(t, f.Usernames, goroutines)

	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file should be gone")
}

func TestFileStore_CorruptFileReadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewFileStore(path, testProfile, nil)
	_, ok := s.Read()
	assert.False(t, ok)

	// a save repairs the file
	s.Save("alice")
	username, ok := s.Read()
	require.True(t, ok)
	assert.Equal(t, "alice", username)
}

func TestFileStore_DegradesToMemory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	s := NewFileStore(filepath.Join(blocker, "session.json"), testProfile, nil)

	s.Save("alice")
	username, ok := s.Read()
	require.True(t, ok, "username should survive in memory")
	assert.Equal(t, "alice", username)

	s.Clear()
	_, ok = s.Read()
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	var s Store = NewMemoryStore()

	_, ok := s.Read()
	assert.False(t, ok)

	s.Save("alice")
	username, ok := s.Read()
	assert.True(t, ok)
	assert.Equal(t, "alice", username)

	s.Clear()
	_, ok = s.Read()
	assert.False(t, ok)
}
