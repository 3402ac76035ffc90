package sched_test

import (
	"errors"
	"testing"
	"time"

	"github.com/weftsrv/weft/sched"
)

func TestChanSendRecvRendezvous(t *testing.T) {
	c := sched.Alloc()
	defer sched.Free(c)

	if !c.Good() {
		t.Fatal("freshly allocated Chan should be Good")
	}

	done := make(chan struct{})
	var got []byte
	var gotErr error
	go func() {
		got, gotErr = c.Recv()
		close(done)
	}()

	if !c.Send([]byte("payload"), nil) {
		t.Fatal("Send on a fresh Chan should succeed")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recv did not complete after Send")
	}
	if string(got) != "payload" || gotErr != nil {
		t.Fatalf("Recv() = %q, %v", got, gotErr)
	}
	if c.Good() {
		t.Fatal("Chan should no longer be Good after Send")
	}
}

func TestChanSecondSendFails(t *testing.T) {
	c := sched.Alloc()
	defer sched.Free(c)

	go c.Recv()
	if !c.Send([]byte("a"), nil) {
		t.Fatal("first Send should succeed")
	}
	// give the receiver goroutine a chance to consume
	time.Sleep(10 * time.Millisecond)
	if c.Send([]byte("b"), nil) {
		t.Fatal("second Send on a one-shot Chan should fail")
	}
}

func TestChanCarriesError(t *testing.T) {
	c := sched.Alloc()
	defer sched.Free(c)

	wantErr := errors.New("boom")
	go c.Send(nil, wantErr)
	_, err := c.Recv()
	if err != wantErr {
		t.Fatalf("Recv() err = %v, want %v", err, wantErr)
	}
}

func TestTaskSpawnWait(t *testing.T) {
	ran := make(chan struct{})
	task := sched.Spawn(func() {
		close(ran)
	})
	task.Wait()
	select {
	case <-ran:
	default:
		t.Fatal("fn should have run before Wait returned")
	}
	if !task.Done() {
		t.Fatal("Done() should be true after Wait")
	}
}

func TestTaskRecoversPanic(t *testing.T) {
	task := sched.Spawn(func() {
		panic("handler blew up")
	})
	task.Wait()
	if task.Panic == nil {
		t.Fatal("expected Task.Panic to capture the recovered value")
	}
}
