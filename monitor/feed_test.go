package monitor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"mtpzhost/ptp"
)

func TestFeedBroadcastsSamplesInOrder(t *testing.T) {
	events := make(chan ptp.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logrus.New()
	log.Out = io.Discard
	f := NewFeed(ctx, events, log)

	done := make(chan error, 1)
	go func() { done <- f.Run() }()

	events <- ptp.Event{Code: 0x4002, SessionID: 1, TransactionID: 7}
	events <- ptp.Event{Code: 0x4003, SessionID: 1, TransactionID: 8}

	deadline := time.After(time.Second)
	for {
		sample, ok := f.LastSample()
		if ok && sample.Seq == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for second sample, last=%+v ok=%v", sample, ok)
		case <-time.After(time.Millisecond):
		}
	}

	sample, _ := f.LastSample()
	if sample.Code != 0x4003 || sample.TransactionID != 8 {
		t.Errorf("last sample = %+v, want code 0x4003 transaction 8", sample)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestFeedCountersStartAtZero(t *testing.T) {
	events := make(chan ptp.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ctx, events, logrus.New())
	if f.ConnectedClients() != 0 {
		t.Errorf("ConnectedClients = %d, want 0", f.ConnectedClients())
	}
	if f.DroppedSamples() != 0 {
		t.Errorf("DroppedSamples = %d, want 0", f.DroppedSamples())
	}
	if _, ok := f.LastSample(); ok {
		t.Errorf("LastSample should be absent before any event")
	}
}
