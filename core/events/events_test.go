package events

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"sktvault/core/types"
)

type payment struct {
	kind   string
	amount uint64
}

func (p payment) EventType() string { return p.kind }

func (p payment) Event() *types.Event {
	return &types.Event{Type: p.kind, Attributes: map[string]string{"amount": strconv.FormatUint(p.amount, 10)}}
}

type capture struct{ events []Event }

func (c *capture) Emit(e Event) { c.events = append(c.events, e) }

func TestBufferFlushAndReset(t *testing.T) {
	var buf Buffer
	buf.Emit(payment{kind: "test.paid", amount: 5})
	buf.Emit(nil)
	if got := len(buf.Events()); got != 1 {
		t.Fatalf("expected 1 buffered event, got %d", got)
	}
	dst := &capture{}
	buf.Flush(dst)
	if len(dst.events) != 1 || len(buf.Events()) != 0 {
		t.Fatalf("flush did not move events")
	}
	buf.Emit(payment{kind: "test.paid", amount: 1})
	buf.Reset()
	buf.Flush(dst)
	if len(dst.events) != 1 {
		t.Fatalf("reset events must not flush")
	}
}

func TestFormatUnits(t *testing.T) {
	cases := map[uint64]string{
		0:             "0",
		1_000_000_000: "1",
		1_500_000_000: "1.5",
		70_000_000:    "0.07",
	}
	for in, want := range cases {
		if got := FormatUnits(in, 9); got != want {
			t.Fatalf("FormatUnits(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestBrokerBacklogAndLive(t *testing.T) {
	b := NewBroker(2)
	b.Emit(payment{kind: "test.paid", amount: 1})
	b.Emit(payment{kind: "test.paid", amount: 2})
	b.Emit(payment{kind: "test.paid", amount: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, stop, backlog := b.Subscribe(ctx, "1")
	defer stop()
	if len(backlog) != 2 {
		t.Fatalf("expected trimmed backlog of 2, got %d", len(backlog))
	}
	if backlog[0].Event.Attributes["amount"] != "2" {
		t.Fatalf("unexpected first backlog entry %+v", backlog[0])
	}
	b.Emit(payment{kind: "test.refunded", amount: 4})
	rec := <-ch
	if rec.Sequence != 4 || rec.Event.Type != "test.refunded" {
		t.Fatalf("unexpected live record %+v", rec)
	}
}

func TestBrokerEmitSurvivesConcurrentCancel(t *testing.T) {
	b := NewBroker(8)
	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			_, cancel, _ := b.Subscribe(context.Background(), "")
			cancel()
		}
	}()
	for i := 0; i < 20000; i++ {
		b.Emit(payment{kind: "test.paid", amount: uint64(i)})
	}
	close(stopCh)
	<-done

	ch, stop, _ := b.Subscribe(context.Background(), "")
	stop()
	if _, ok := <-ch; ok {
		t.Fatalf("cancelled subscription still open")
	}
}

type collector struct {
	mu   sync.Mutex
	seqs []uint64
}

func (c *collector) Consume(rec Record) {
	c.mu.Lock()
	c.seqs = append(c.seqs, rec.Sequence)
	c.mu.Unlock()
}

func TestAttachedSinkSeesEveryRecordInOrder(t *testing.T) {
	b := NewBroker(4)
	b.Emit(payment{kind: "test.paid", amount: 1})
	b.Emit(payment{kind: "test.paid", amount: 2})

	var c collector
	detach := b.Attach(&c)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				b.Emit(payment{kind: "test.paid", amount: uint64(i)})
			}
		}()
	}
	wg.Wait()

	if len(c.seqs) != 1002 {
		t.Fatalf("sink saw %d records, want 1002", len(c.seqs))
	}
	for i, seq := range c.seqs {
		if seq != uint64(i+1) {
			t.Fatalf("record %d has sequence %d", i, seq)
		}
	}

	detach()
	b.Emit(payment{kind: "test.paid", amount: 9})
	if len(c.seqs) != 1002 {
		t.Fatalf("detached sink still receiving")
	}
}
