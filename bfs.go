// bfs.go: Breadth-first traversal primitive
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// BFS visits every scheduled node exactly once, in the order the nodes were
// first scheduled. The visit callback may schedule further nodes; scheduling
// a node that is queued or already visited is a no-op, so cycles and
// diamonds terminate without recursion.
type BFS[T comparable] struct {
	visit func(b *BFS[T], node T)
	seen  map[T]struct{}
	queue []T
	head  int
}

// NewBFS creates a traversal with the given visit callback.
func NewBFS[T comparable](visit func(b *BFS[T], node T)) *BFS[T] {
	return &BFS[T]{
		visit: visit,
		seen:  make(map[T]struct{}),
	}
}

// Schedule enqueues node and reports whether it was new.
func (b *BFS[T]) Schedule(node T) bool {
	if _, ok := b.seen[node]; ok {
		return false
	}
	b.seen[node] = struct{}{}
	b.queue = append(b.queue, node)
	return true
}

// Run drains the queue. It may be called again after scheduling more nodes.
func (b *BFS[T]) Run() {
	for b.head < len(b.queue) {
		node := b.queue[b.head]
		b.head++
		b.visit(b, node)
	}
}

// Seen reports whether node was ever scheduled.
func (b *BFS[T]) Seen(node T) bool {
	_, ok := b.seen[node]
	return ok
}

// Order returns every scheduled node in scheduling order.
func (b *BFS[T]) Order() []T {
	out := make([]T, len(b.queue))
	copy(out, b.queue)
	return out
}
