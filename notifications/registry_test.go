// Copyright 2025 FleetPulse
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeSocket records frames written to it and can be made to fail.
type fakeSocket struct {
	mu       sync.Mutex
	frames   [][]byte
	types    []int
	failWith error
	closed   bool
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.types = append(f.types, messageType)
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeSocket) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) textFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for i, typ := range f.types {
		if typ == websocket.TextMessage {
			out = append(out, f.frames[i])
		}
	}
	return out
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	_, rdb := testRedis(t)
	presence := NewPresence(rdb, "test-instance", testLogger())
	return NewRegistry("test-instance", presence, testLogger())
}

// TestRegistryRegisterUpdatesPresence tests that the first connection
// advertises the instance in the directory.
func TestRegistryRegisterUpdatesPresence(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	conn := NewConn(&fakeSocket{})
	if err := r.Register(ctx, "user-1", conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !r.HasLocal("user-1") {
		t.Error("expected user-1 to be locally connected")
	}
	owner, ok, err := r.presence.Lookup(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("Lookup failed: ok=%v err=%v", ok, err)
	}
	if owner != "test-instance" {
		t.Errorf("expected directory owner test-instance, got %s", owner)
	}
}

// TestRegistryMultipleConnections tests fan-out across several
// connections of the same user.
func TestRegistryMultipleConnections(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	sockets := []*fakeSocket{{}, {}, {}}
	for _, s := range sockets {
		if err := r.Register(ctx, "user-1", NewConn(s)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	if got := r.ConnectionCount(); got != 3 {
		t.Fatalf("expected 3 connections, got %d", got)
	}
	if got := r.UserCount(); got != 1 {
		t.Fatalf("expected 1 user, got %d", got)
	}

	payload := []byte(`{"hello":"world"}`)
	if !r.DeliverLocal("user-1", payload) {
		t.Fatal("expected delivery to succeed")
	}

	for i, s := range sockets {
		frames := s.textFrames()
		if len(frames) != 1 {
			t.Fatalf("socket %d: expected 1 frame, got %d", i, len(frames))
		}
		if string(frames[0]) != string(payload) {
			t.Errorf("socket %d: payload mismatch: %s", i, frames[0])
		}
	}
}

// TestRegistryDeliverSkipsFailedSocket tests that one dead socket does
// not stop delivery to the user's other connections.
func TestRegistryDeliverSkipsFailedSocket(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	dead := &fakeSocket{failWith: errors.New("broken pipe")}
	alive := &fakeSocket{}
	for _, s := range []*fakeSocket{dead, alive} {
		if err := r.Register(ctx, "user-1", NewConn(s)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	if !r.DeliverLocal("user-1", []byte(`{}`)) {
		t.Fatal("expected delivery via the healthy socket")
	}
	if len(alive.textFrames()) != 1 {
		t.Error("healthy socket did not receive the frame")
	}
	if len(dead.textFrames()) != 0 {
		t.Error("dead socket unexpectedly recorded a frame")
	}
}

// TestRegistryDeliverNoConnections tests delivery to an unknown user.
func TestRegistryDeliverNoConnections(t *testing.T) {
	r := testRegistry(t)
	if r.DeliverLocal("nobody", []byte(`{}`)) {
		t.Error("expected delivery to report false for unknown user")
	}
}

// TestRegistryUnregisterLastRemovesPresence tests that closing the last
// connection withdraws the directory claim, but closing one of several
// does not.
func TestRegistryUnregisterLastRemovesPresence(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	c1 := NewConn(&fakeSocket{})
	c2 := NewConn(&fakeSocket{})
	for _, c := range []*Conn{c1, c2} {
		if err := r.Register(ctx, "user-1", c); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	if err := r.Unregister(ctx, "user-1", c1); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if _, ok, _ := r.presence.Lookup(ctx, "user-1"); !ok {
		t.Fatal("directory entry removed while a connection remains")
	}
	if !r.HasLocal("user-1") {
		t.Fatal("expected user-1 to still be local")
	}

	if err := r.Unregister(ctx, "user-1", c2); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if _, ok, _ := r.presence.Lookup(ctx, "user-1"); ok {
		t.Error("directory entry survived the last unregister")
	}
	if r.HasLocal("user-1") {
		t.Error("expected user-1 to be gone locally")
	}
	if got := r.UserCount(); got != 0 {
		t.Errorf("expected 0 users, got %d", got)
	}
}

// TestRegistryUnregisterKeepsForeignPresence tests that the directory
// entry survives when the user already reconnected to another instance.
func TestRegistryUnregisterKeepsForeignPresence(t *testing.T) {
	_, rdb := testRedis(t)
	ctx := context.Background()

	presenceA := NewPresence(rdb, "instance-a", testLogger())
	registryA := NewRegistry("instance-a", presenceA, testLogger())
	presenceB := NewPresence(rdb, "instance-b", testLogger())

	conn := NewConn(&fakeSocket{})
	if err := registryA.Register(ctx, "user-1", conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// User reconnects to instance-b before instance-a cleans up.
	if err := presenceB.Upsert(ctx, "user-1"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := registryA.Unregister(ctx, "user-1", conn); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	owner, ok, err := presenceB.Lookup(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("expected entry to survive: ok=%v err=%v", ok, err)
	}
	if owner != "instance-b" {
		t.Errorf("expected owner instance-b, got %s", owner)
	}
}

// TestConnWriteAfterClose tests that a closed connection rejects writes.
func TestConnWriteAfterClose(t *testing.T) {
	fs := &fakeSocket{}
	conn := NewConn(fs)

	conn.Close("bye")
	if !fs.closed {
		t.Fatal("expected transport close")
	}
	if err := conn.WriteText([]byte(`{}`)); err != errConnClosed {
		t.Errorf("expected errConnClosed, got %v", err)
	}

	// Second close is a no-op.
	conn.Close("again")
}

// TestRegistryCloseAll tests graceful close of every connection.
func TestRegistryCloseAll(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	sockets := []*fakeSocket{{}, {}}
	for i, s := range sockets {
		user := fmt.Sprintf("user-%d", i)
		if err := r.Register(ctx, user, NewConn(s)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	r.CloseAll("shutting down")
	for i, s := range sockets {
		if !s.closed {
			t.Errorf("socket %d not closed", i)
		}
	}
}

// TestRegistryConcurrentAccess exercises registration, delivery and
// removal under the race detector.
func TestRegistryConcurrentAccess(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%3)
			conn := NewConn(&fakeSocket{})
			if err := r.Register(ctx, user, conn); err != nil {
				t.Errorf("Register failed: %v", err)
				return
			}
			r.DeliverLocal(user, []byte(`{"n":1}`))
			if err := r.Unregister(ctx, user, conn); err != nil {
				t.Errorf("Unregister failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := r.ConnectionCount(); got != 0 {
		t.Errorf("expected empty registry, got %d connections", got)
	}
}
