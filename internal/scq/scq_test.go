package scq

import (
	"errors"
	"testing"
	"time"
)

func TestOrderAfterSending(t *testing.T) {
	tx, rx := NewBounded[int](2)

	first := tx.Reserve()
	second := tx.Reserve()
	tx.Close(nil)

	second.Finish(2)
	first.Finish(1)

	v, err := rx.Recv()
	if err != nil || v != 1 {
		t.Fatalf("Recv() = %v, %v; want 1, nil", v, err)
	}
	v, err = rx.Recv()
	if err != nil || v != 2 {
		t.Fatalf("Recv() = %v, %v; want 2, nil", v, err)
	}
	if _, err := rx.Recv(); !errors.Is(err, ErrFinished) {
		t.Fatalf("Recv() err = %v; want ErrFinished", err)
	}
	if err := rx.Finish(); err != nil {
		t.Fatalf("Finish() = %v; want nil", err)
	}
}

func TestNoSuccessBecomesErr(t *testing.T) {
	tx, rx := NewBounded[int](2)

	first := tx.Reserve()
	first.Finish(1)
	tx.Close(errors.New("whatever, never read"))
	_ = tx

	if v, err := rx.Recv(); err != nil || v != 1 {
		t.Fatalf("Recv() = %v, %v; want 1, nil", v, err)
	}
	if _, err := rx.Recv(); !errors.Is(err, ErrFinished) {
		t.Fatalf("Recv() err = %v; want ErrFinished", err)
	}
	if err := rx.Finish(); err == nil {
		t.Fatalf("Finish() = nil; want an error")
	}
}

func TestUnfinishedSendBecomesErr(t *testing.T) {
	// Mirrors spec.md §8 scenario 6: reserve A, drop A (Abandon), close
	// Ok. Finish() must report the unknown-error, not Ok.
	tx, rx := NewBounded[int](2)

	first := tx.Reserve()
	first.Abandon()
	tx.Close(nil)

	if _, err := rx.Recv(); !errors.Is(err, ErrItemRecvError) {
		t.Fatalf("Recv() err = %v; want ErrItemRecvError", err)
	}
	if err := rx.Finish(); err == nil {
		t.Fatalf("Finish() = nil; want unknown-error")
	}
}

func TestExplicitSendErr(t *testing.T) {
	tx, rx := NewBounded[int](2)

	first := tx.Reserve()
	first.Finish(1)
	explicit := errors.New("boom")
	tx.Close(explicit)

	if v, err := rx.Recv(); err != nil || v != 1 {
		t.Fatalf("Recv() = %v, %v; want 1, nil", v, err)
	}
	if _, err := rx.Recv(); !errors.Is(err, ErrFinished) {
		t.Fatalf("Recv() err = %v; want ErrFinished", err)
	}
	if err := rx.Finish(); !errors.Is(err, explicit) {
		t.Fatalf("Finish() = %v; want %v", err, explicit)
	}
}

func TestExplicitErrorWinsOverAbandon(t *testing.T) {
	tx, rx := NewBounded[int](2)

	first := tx.Reserve()
	explicit := errors.New("boom")
	first.Error(explicit)

	second := tx.Reserve()
	second.Abandon()

	tx.Close(nil)

	if _, err := rx.Recv(); !errors.Is(err, ErrItemRecvError) {
		t.Fatalf("Recv() err = %v; want ErrItemRecvError", err)
	}
	if _, err := rx.Recv(); !errors.Is(err, ErrItemRecvError) {
		t.Fatalf("Recv() err = %v; want ErrItemRecvError", err)
	}
	if err := rx.Finish(); !errors.Is(err, explicit) {
		t.Fatalf("Finish() = %v; want %v (first explicit error wins)", err, explicit)
	}
}

func TestAcrossGoroutines(t *testing.T) {
	const n = 1000
	tx, rx := NewBounded[int](2)

	go func() {
		for i := 0; i < n; i++ {
			slot := tx.Reserve()
			go func(i int, slot *Slot[int]) {
				if i%3 == 0 {
					// slow down some finishes, same as the original test
					time.Sleep(time.Millisecond)
				}
				slot.Finish(i)
			}(i, slot)
		}
		tx.Close(nil)
	}()

	for i := 0; i < n; i++ {
		v, err := rx.Recv()
		if err != nil || v != i {
			t.Fatalf("Recv() = %v, %v; want %d, nil", v, err, i)
		}
	}
	if _, err := rx.Recv(); !errors.Is(err, ErrFinished) {
		t.Fatalf("Recv() err = %v; want ErrFinished", err)
	}
	if err := rx.Finish(); err != nil {
		t.Fatalf("Finish() = %v; want nil", err)
	}
}
