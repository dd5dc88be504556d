// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/visionchat/internal/model"
)

// ErrDuplicate is returned when the same file is queued twice.
var ErrDuplicate = errors.New("file already attached")

// Queue holds the attachments selected for the next submission.
// It is safe for concurrent use; the drop-directory watcher adds from its
// own goroutine.
type Queue struct {
	mu       sync.Mutex
	items    []model.Attachment
	maxBytes int64
}

// NewQueue creates an empty queue enforcing maxBytes per file.
func NewQueue(maxBytes int64) *Queue {
	return &Queue{maxBytes: maxBytes}
}

// Add inspects path and queues it. Rejected files are not queued.
func (q *Queue) Add(path string) (model.Attachment, error) {
	a, err := Inspect(path, q.maxBytes)
	if err != nil {
		return model.Attachment{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.items {
		if existing.Path == a.Path {
			return model.Attachment{}, fmt.Errorf("%s: %w", a.Name, ErrDuplicate)
		}
	}
	q.items = append(q.items, a)
	return a, nil
}

// Remove drops the attachment at index i.
func (q *Queue) Remove(i int) (model.Attachment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.items) {
		return model.Attachment{}, false
	}
	a := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	return a, true
}

// Items returns a copy of the queued attachments.
func (q *Queue) Items() []model.Attachment {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Attachment(nil), q.items...)
}

// Len returns the number of queued attachments.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain returns every queued attachment and empties the queue.
func (q *Queue) Drain() []model.Attachment {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
