package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/dataset"
	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/stt"
)

// Speak synthesizes the current item's source text, fire-and-forget. A new
// call cancels any synthesis still in flight. Synthesis failures are a
// transient condition: they are logged and counted, never returned.
func (c *Controller) Speak(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tts == nil {
		return ErrSpeechUnavailable
	}
	if c.current == nil {
		return ErrNoCurrentItem
	}

	c.stopSpeakLocked()
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.speakCancel = cancel

	text := c.current.Source
	go func() {
		defer cancel()
		start := time.Now()
		_, _, err := c.tts.Synthesize(sctx, text, c.locale)
		status := "ok"
		if err != nil {
			status = "error"
			slog.Debug("session: speak failed", "learner", c.learnerID, "err", err)
		}
		if c.metrics != nil {
			c.metrics.RecordSpeechRequest(sctx, c.ttsName, "tts", status)
			c.metrics.TTSDuration.Record(sctx, time.Since(start).Seconds())
		}
	}()
	return nil
}

// Audio synthesizes the current item's source text and returns the encoded
// clip, for callers that play audio themselves.
func (c *Controller) Audio(ctx context.Context) ([]byte, string, error) {
	c.mu.Lock()
	if c.tts == nil {
		c.mu.Unlock()
		return nil, "", ErrSpeechUnavailable
	}
	if c.current == nil {
		c.mu.Unlock()
		return nil, "", ErrNoCurrentItem
	}
	text := c.current.Source
	c.mu.Unlock()

	start := time.Now()
	audio, mime, err := c.tts.Synthesize(ctx, text, c.locale)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordSpeechRequest(ctx, c.ttsName, "tts", status)
		c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, "", fmt.Errorf("session: synthesize: %w", err)
	}
	return audio, mime, nil
}

// StartCapture opens a speech capture for the current item. At most one
// capture is live per session: starting a new one cancels the prior, so a
// stale transcript can never grade against a newer current item. The final
// transcript, when one arrives, is graded as a pronunciation attempt and
// shows up in the next snapshot.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stt == nil {
		return ErrSpeechUnavailable
	}
	if c.current == nil {
		return ErrNoCurrentItem
	}

	c.stopCaptureLocked()
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess, err := c.stt.Start(cctx, c.locale)
	if err != nil {
		cancel()
		if c.metrics != nil {
			c.metrics.RecordSpeechRequest(ctx, c.sttName, "stt", "error")
		}
		return fmt.Errorf("session: start capture: %w", err)
	}

	c.capture = sess
	c.captureCancel = cancel
	if c.metrics != nil {
		c.metrics.RecordSpeechRequest(ctx, c.sttName, "stt", "ok")
		c.metrics.ActiveCaptures.Add(ctx, 1)
	}
	go c.awaitTranscript(sess, *c.current)
	return nil
}

// StopCapture abandons the live capture, if any, without grading.
func (c *Controller) StopCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCaptureLocked()
}

// awaitTranscript waits for the capture's final transcript and grades it,
// unless the capture was superseded or the current item moved on.
func (c *Controller) awaitTranscript(sess stt.Session, item dataset.Item) {
	result, ok := <-sess.Transcript()

	c.mu.Lock()
	active := c.capture == sess
	if active {
		c.captureCancel()
		c.capture = nil
		c.captureCancel = nil
		if c.metrics != nil {
			c.metrics.ActiveCaptures.Add(context.Background(), -1)
		}
	}
	stale := !active || c.current == nil || c.current.ID != item.ID
	if ok && !stale {
		c.gradeSpeechLocked(context.Background(), result.Text)
	}
	c.mu.Unlock()
	_ = sess.Close()
}

// stopSpeakLocked cancels in-flight synthesis. Caller holds the mutex.
func (c *Controller) stopSpeakLocked() {
	if c.speakCancel != nil {
		c.speakCancel()
		c.speakCancel = nil
	}
}

// stopCaptureLocked cancels and closes the live capture. Caller holds the
// mutex.
func (c *Controller) stopCaptureLocked() {
	if c.capture == nil {
		return
	}
	c.captureCancel()
	_ = c.capture.Close()
	c.capture = nil
	c.captureCancel = nil
	if c.metrics != nil {
		c.metrics.ActiveCaptures.Add(context.Background(), -1)
	}
}
