package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// AutoConfirm acknowledges every screen. With Details set it also asks for
// every item to be shown.
type AutoConfirm struct {
	Details bool
}

func (a AutoConfirm) Show(ctx context.Context, s Screen) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.Kind == KindTxDetails && a.Details {
		return ReplyDetails, nil
	}
	return ReplyAck, nil
}

// Recorder remembers every screen it is shown and answers through Inner
// (AutoConfirm when nil). RejectWhen, if set, rejects matching screens.
type Recorder struct {
	Inner      UI
	RejectWhen func(Screen) bool

	mu      sync.Mutex
	screens []Screen
}

func (r *Recorder) Show(ctx context.Context, s Screen) (Reply, error) {
	r.mu.Lock()
	r.screens = append(r.screens, s)
	r.mu.Unlock()

	if r.RejectWhen != nil && r.RejectWhen(s) {
		return ReplyReject, nil
	}
	if r.Inner == nil {
		return AutoConfirm{}.Show(ctx, s)
	}
	return r.Inner.Show(ctx, s)
}

// Screens returns a copy of the screens shown so far.
func (r *Recorder) Screens() []Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Screen(nil), r.screens...)
}

// Kinds returns the kinds of the screens shown so far, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.screens))
	for i, s := range r.screens {
		kinds[i] = s.Kind
	}
	return kinds
}

// Count returns how many screens of kind k were shown.
func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, kind := range r.Kinds() {
		if kind == k {
			n++
		}
	}
	return n
}

// Terminal renders screens as text and reads answers line by line:
// y confirms, d confirms and asks for details, anything else rejects.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

func (t *Terminal) Show(ctx context.Context, s Screen) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.once.Do(func() { t.reader = bufio.NewReader(t.In) })

	title := s.Title
	if title == "" {
		title = s.Kind.String()
	}
	fmt.Fprintf(t.Out, "\n== %s ==\n", title)
	for _, f := range s.Fields {
		switch {
		case f.Value == "":
			fmt.Fprintf(t.Out, "  %s\n", f.Label)
		case f.Label == "":
			fmt.Fprintf(t.Out, "  %s\n", f.Value)
		default:
			fmt.Fprintf(t.Out, "  %s %s\n", f.Label, f.Value)
		}
	}

	prompt := "[y/N]"
	if s.Kind == KindTxDetails {
		prompt = "[y/d/N]"
	} else if s.Hold {
		prompt = "hold to confirm [y/N]"
	}
	fmt.Fprintf(t.Out, "%s ", prompt)

	line, err := t.reader.ReadString('\n')
	if err != nil && line == "" {
		return 0, fmt.Errorf("ui: read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return ReplyAck, nil
	case "d", "details":
		if s.Kind == KindTxDetails {
			return ReplyDetails, nil
		}
		return ReplyAck, nil
	default:
		return ReplyReject, nil
	}
}
