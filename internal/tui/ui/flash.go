package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FlashLevel is the severity of a notice.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// How long a notice of each level stays on screen.
var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is one notice. Repeat counts how many times the same text
// and level arrived while the notice was still showing.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Repeat  int
	Expires time.Time
}

// FlashModel holds the notice shown in the flash bar.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
	watchCh chan FlashMessage
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		now:     time.Now,
		watchCh: make(chan FlashMessage, 8),
	}
}

// Info shows an informational notice.
func (f *FlashModel) Info(msg string) { f.post(msg, FlashInfo) }

// Warn shows a warning.
func (f *FlashModel) Warn(msg string) { f.post(msg, FlashWarn) }

// Report shows the error of a failed daemon call prefixed with action.
// Rejections the user can act on (bad input, stale view, another sender's
// message, a message still sending) are warnings. Anything else is an error.
func (f *FlashModel) Report(action string, err error) {
	if err == nil {
		return
	}
	st, ok := status.FromError(err)
	if !ok {
		f.post(action+": "+err.Error(), FlashErr)
		return
	}
	level := FlashErr
	switch st.Code() {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		level = FlashWarn
	}
	f.post(action+": "+st.Message(), level)
}

func (f *FlashModel) post(text string, level FlashLevel) {
	now := f.now()
	f.mu.Lock()
	msg := FlashMessage{Text: text, Level: level, Repeat: 1}
	if cur := f.current; cur.Text == text && cur.Level == level && now.Before(cur.Expires) {
		msg.Repeat = cur.Repeat + 1
	}
	msg.Expires = now.Add(flashTTL[level])
	f.current = msg
	f.mu.Unlock()

	select {
	case f.watchCh <- msg:
	default:
	}
}

// Current returns the notice on screen, or nil once it has expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || !f.now().Before(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch returns the channel new notices are posted on. Posts are dropped
// while the channel is full.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the one-line notice area at the bottom of the screen.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates an empty flash bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{TextView: tv, theme: theme}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	_, _ = fmt.Fprint(fb, formatFlash(msg, fb.theme))
}

func formatFlash(msg *FlashMessage, theme *Theme) string {
	color := theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = theme.FlashWarnColor
	case FlashErr:
		color = theme.FlashErrColor
	}
	text := tview.Escape(msg.Text)
	if msg.Repeat > 1 {
		text = fmt.Sprintf("%s (x%d)", text, msg.Repeat)
	}
	return fmt.Sprintf(" [%s]%s[-]", colorName(color), text)
}
