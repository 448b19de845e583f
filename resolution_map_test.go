// resolution_map_test.go: Conflict-resolving multi-key index tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rmItem struct {
	name string
	keys []string
}

func rmKeys(i *rmItem) []string { return i.keys }

type retraction struct {
	element string
	key     string
}

func newRecordingMap(resolve func(existing, candidate *rmItem, key string) (*rmItem, bool)) (*ResolutionMap[string, *rmItem], *[]retraction) {
	var log []retraction
	m := NewResolutionMap(rmKeys, resolve).OnRetract(func(e *rmItem, key string) {
		log = append(log, retraction{element: e.name, key: key})
	})
	return m, &log
}

func retractBoth(_, _ *rmItem, _ string) (*rmItem, bool) { return nil, false }

func keepExisting(existing, candidate *rmItem, _ string) (*rmItem, bool) {
	if existing == candidate {
		return nil, false
	}
	return existing, true
}

func preferCandidate(existing, candidate *rmItem, _ string) (*rmItem, bool) {
	if existing == candidate {
		return nil, false
	}
	return candidate, true
}

func TestResolutionMap_NoConflict(t *testing.T) {
	m, retracted := newRecordingMap(retractBoth)
	a := &rmItem{name: "a", keys: []string{"a", "x"}}
	b := &rmItem{name: "b", keys: []string{"b"}}

	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))
	require.NoError(t, m.Add(a), "adding a registered element is a no-op")

	assert.Equal(t, []*rmItem{a, b}, m.Elements())
	assert.Equal(t, map[string]*rmItem{"a": a, "x": a, "b": b}, m.Build())
	assert.Empty(t, *retracted)
}

func TestResolutionMap_ConflictRetractsBoth(t *testing.T) {
	m, retracted := newRecordingMap(retractBoth)
	a := &rmItem{name: "a", keys: []string{"a", "x"}}
	b := &rmItem{name: "b", keys: []string{"b", "x"}}

	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))

	assert.Empty(t, m.Elements())
	assert.Empty(t, m.Build(), "keys registered before the conflict are released")
	assert.Equal(t, []retraction{{"a", "x"}, {"b", "x"}}, *retracted)

	t.Run("KeyIsNotPoisoned", func(t *testing.T) {
		c := &rmItem{name: "c", keys: []string{"x"}}
		require.NoError(t, m.Add(c))
		assert.True(t, m.Contains(c))
		assert.Equal(t, map[string]*rmItem{"x": c}, m.Build())
	})
}

func TestResolutionMap_ExistingWins(t *testing.T) {
	m, retracted := newRecordingMap(keepExisting)
	a := &rmItem{name: "a", keys: []string{"a", "x"}}
	b := &rmItem{name: "b", keys: []string{"b", "x"}}

	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))

	assert.True(t, m.Contains(a))
	assert.False(t, m.Contains(b))
	assert.Equal(t, map[string]*rmItem{"a": a, "x": a}, m.Build())
	assert.Equal(t, []retraction{{"b", "x"}}, *retracted)
}

func TestResolutionMap_CandidateWins(t *testing.T) {
	m, retracted := newRecordingMap(preferCandidate)
	a := &rmItem{name: "a", keys: []string{"a", "x"}}
	b := &rmItem{name: "b", keys: []string{"b", "x"}}

	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))

	assert.Equal(t, []*rmItem{b}, m.Elements())
	assert.Equal(t, map[string]*rmItem{"b": b, "x": b}, m.Build())
	assert.Equal(t, []retraction{{"a", "x"}}, *retracted)
}

func TestResolutionMap_SelfConflict(t *testing.T) {
	t.Run("DuplicateKeyRetractsElement", func(t *testing.T) {
		m, retracted := newRecordingMap(keepExisting)
		a := &rmItem{name: "a", keys: []string{"a", "alias", "a"}}

		require.NoError(t, m.Add(a))
		assert.False(t, m.Contains(a))
		assert.Empty(t, m.Build())
		assert.Equal(t, []retraction{{"a", "a"}}, *retracted)
	})

	t.Run("NonNullResultViolatesContract", func(t *testing.T) {
		m, _ := newRecordingMap(func(existing, _ *rmItem, _ string) (*rmItem, bool) {
			return existing, true
		})
		a := &rmItem{name: "a", keys: []string{"a", "a"}}

		err := m.Add(a)
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, ErrCodeResolutionContract))
		assert.False(t, m.Contains(a))
		assert.Empty(t, m.Build())
	})
}

func TestResolutionMap_WinnerMustBeAParticipant(t *testing.T) {
	stranger := &rmItem{name: "stranger"}
	m, _ := newRecordingMap(func(_, _ *rmItem, _ string) (*rmItem, bool) {
		return stranger, true
	})
	a := &rmItem{name: "a", keys: []string{"x"}}
	b := &rmItem{name: "b", keys: []string{"y", "x"}}

	require.NoError(t, m.Add(a))
	err := m.Add(b)
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeResolutionContract))
	assert.Equal(t, map[string]*rmItem{"x": a}, m.Build())
}

func TestResolutionMap_Remove(t *testing.T) {
	m, _ := newRecordingMap(retractBoth)
	a := &rmItem{name: "a", keys: []string{"a", "x"}}
	b := &rmItem{name: "b", keys: []string{"x"}}

	require.NoError(t, m.Add(a))
	m.Remove(a)
	m.Remove(a)
	assert.False(t, m.Contains(a))

	require.NoError(t, m.Add(b))
	assert.Equal(t, map[string]*rmItem{"x": b}, m.Build())
}

func TestBuildAmbiguous(t *testing.T) {
	a := &rmItem{name: "a", keys: []string{"x", "x", "y"}}
	b := &rmItem{name: "b", keys: []string{"x"}}

	index := BuildAmbiguous([]*rmItem{a, b}, rmKeys)
	assert.Equal(t, []*rmItem{a, b}, index["x"])
	assert.Equal(t, []*rmItem{a}, index["y"])
	assert.Len(t, index, 2)
}
