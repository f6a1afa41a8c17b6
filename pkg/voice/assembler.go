package voice

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDebounce is how long the Assembler waits after the last fragment
// before declaring the streaming reply complete.
const DefaultDebounce = 500 * time.Millisecond

// AssemblerOption customises an Assembler.
type AssemblerOption func(*Assembler)

// WithDebounce overrides the completion debounce interval.
func WithDebounce(d time.Duration) AssemblerOption {
	return func(a *Assembler) { a.debounce = d }
}

// WithPartial registers a callback invoked after every appended fragment with
// the in-progress message.
func WithPartial(fn func(Message)) AssemblerOption {
	return func(a *Assembler) { a.onPartial = fn }
}

// WithComplete registers a callback invoked exactly once per reply with the
// finished message.
func WithComplete(fn func(Message)) AssemblerOption {
	return func(a *Assembler) { a.onComplete = fn }
}

// WithCompleteHook registers a callback invoked after each completed reply,
// typically used to rearm voice-activity detection for the next turn.
func WithCompleteHook(fn func()) AssemblerOption {
	return func(a *Assembler) { a.afterComplete = fn }
}

// Assembler reassembles a streamed reply from text fragments. At most one
// streaming message is open at a time: the first fragment opens it, every
// further fragment extends it and pushes the completion deadline out, and
// debounce expiry (or an explicit Flush) finalizes it. Safe for concurrent
// use.
type Assembler struct {
	debounce      time.Duration
	onPartial     func(Message)
	onComplete    func(Message)
	afterComplete func()

	mu      sync.Mutex
	open    *Message
	timer   *time.Timer
	builder strings.Builder
}

// NewAssembler creates an Assembler with the default debounce.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append adds a reply fragment. Empty fragments still refresh the debounce
// timer of an open message but never open a new one.
func (a *Assembler) Append(fragment string) {
	a.mu.Lock()
	if a.open == nil {
		if fragment == "" {
			a.mu.Unlock()
			return
		}
		a.open = &Message{
			ID:        uuid.NewString(),
			Role:      RoleAssistant,
			Timestamp: time.Now(),
		}
		a.builder.Reset()
	}
	a.builder.WriteString(fragment)
	snapshot := *a.open
	snapshot.Text = a.builder.String()

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.debounce, a.finalize)
	a.mu.Unlock()

	if a.onPartial != nil {
		a.onPartial(snapshot)
	}
}

// Flush finalizes the open message immediately. No-op when nothing is open.
func (a *Assembler) Flush() {
	a.finalize()
}

// Open reports whether a streaming message is in progress.
func (a *Assembler) Open() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open != nil
}

// Close cancels any pending finalization without emitting the open message.
func (a *Assembler) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.open = nil
	a.builder.Reset()
}

func (a *Assembler) finalize() {
	a.mu.Lock()
	if a.open == nil {
		a.mu.Unlock()
		return
	}
	msg := *a.open
	msg.Text = a.builder.String()
	a.open = nil
	a.builder.Reset()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	if a.onComplete != nil {
		a.onComplete(msg)
	}
	if a.afterComplete != nil {
		a.afterComplete()
	}
}
