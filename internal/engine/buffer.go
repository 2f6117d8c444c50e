package engine

import "sync"

// Buffer is the text widget the engine synchronizes against. ReplaceAll
// must deliver change notifications synchronously, before it returns;
// the engine's update guard depends on observing its own writes in the
// same call chain.
type Buffer interface {
	Text() string
	ReplaceAll(text string)
	OnChange(fn func(text string)) (cancel func())
}

// MemoryBuffer is an in-process Buffer. It backs headless use of the
// engine: servers, tests and tools that have no real editor widget.
type MemoryBuffer struct {
	mu     sync.Mutex
	text   string
	subs   []bufferSub
	nextID int
}

type bufferSub struct {
	id int
	fn func(string)
}

func NewMemoryBuffer(text string) *MemoryBuffer {
	return &MemoryBuffer{text: text}
}

func (b *MemoryBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// ReplaceAll swaps the whole text and notifies subscribers synchronously,
// outside the buffer lock so callbacks may read the buffer back.
func (b *MemoryBuffer) ReplaceAll(text string) {
	b.mu.Lock()
	b.text = text
	subs := make([]bufferSub, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.fn(text)
	}
}

func (b *MemoryBuffer) OnChange(fn func(string)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, bufferSub{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}
