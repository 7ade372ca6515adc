package registry

import (
	"testing"
	"time"

	"github.com/jarvisvpn/jvpnd/internal/config"
)

func testConfig(id string, priority, maxUsers int) config.Server {
	return config.Server{
		ID:               id,
		Name:             id,
		Host:             id + ".example.com",
		SSHPort:          22,
		Priority:         priority,
		MaxUsers:         maxUsers,
		RealityPublicKey: "pbk-" + id,
	}
}

func TestGet(t *testing.T) {
	r := New([]config.Server{testConfig("a", 10, 100)})

	if s := r.Get("a"); s == nil || s.ID != "a" {
		t.Fatalf("Get(a) = %v", s)
	}
	if s := r.Get("missing"); s != nil {
		t.Fatalf("Get(missing) = %v, want nil", s)
	}
}

func TestPriorityBeatsLatency(t *testing.T) {
	r := New([]config.Server{
		testConfig("a", 10, 100),
		testConfig("b", 5, 100),
	})
	// a is the faster server but b outranks it.
	r.Get("a").SetHealth(StatusOnline, 50*time.Millisecond)
	r.Get("b").SetHealth(StatusOnline, 200*time.Millisecond)

	if best := r.Best(); best == nil || best.ID != "b" {
		t.Fatalf("Best() = %v, want b", best)
	}
}

func TestLatencyBreaksTies(t *testing.T) {
	r := New([]config.Server{
		testConfig("slow", 10, 100),
		testConfig("fast", 10, 100),
		testConfig("unmeasured", 10, 100),
	})
	r.Get("slow").SetHealth(StatusOnline, 300*time.Millisecond)
	r.Get("fast").SetHealth(StatusOnline, 40*time.Millisecond)

	avail := r.Available()
	if len(avail) != 3 {
		t.Fatalf("Available() len = %d, want 3", len(avail))
	}
	if avail[0].ID != "fast" || avail[1].ID != "slow" || avail[2].ID != "unmeasured" {
		t.Fatalf("order = %s, %s, %s", avail[0].ID, avail[1].ID, avail[2].ID)
	}
}

func TestUnknownCountsAsAvailable(t *testing.T) {
	r := New([]config.Server{testConfig("a", 10, 100)})
	if !r.Get("a").Available() {
		t.Fatal("never-probed server should be available")
	}
}

func TestOfflineExcluded(t *testing.T) {
	r := New([]config.Server{testConfig("a", 10, 100)})
	r.Get("a").SetHealth(StatusOffline, 0)

	if r.Best() != nil {
		t.Fatal("offline server selected")
	}
}

func TestDegradedExcludedFromSelection(t *testing.T) {
	r := New([]config.Server{testConfig("a", 10, 100)})
	r.Get("a").SetHealth(StatusDegraded, 700*time.Millisecond)

	if r.Get("a").Available() {
		t.Fatal("degraded server should not take new keys")
	}
}

func TestCapacityExcluded(t *testing.T) {
	r := New([]config.Server{testConfig("a", 10, 2)})
	s := r.Get("a")
	s.SetHealth(StatusOnline, 10*time.Millisecond)

	s.AddUserSlot()
	s.AddUserSlot()
	if s.Available() {
		t.Fatal("full server should not be available")
	}

	s.ReleaseUserSlot()
	if !s.Available() {
		t.Fatal("server with free slot should be available")
	}
}

func TestReleaseUserSlotFloor(t *testing.T) {
	r := New([]config.Server{testConfig("a", 10, 10)})
	s := r.Get("a")

	s.ReleaseUserSlot()
	s.ReleaseUserSlot()
	if n := s.CurrentUsers(); n != 0 {
		t.Fatalf("CurrentUsers() = %d, want 0", n)
	}
}

func TestMissingRealityKeyExcluded(t *testing.T) {
	c := testConfig("a", 10, 100)
	c.RealityPublicKey = ""
	r := New([]config.Server{c})
	r.Get("a").SetHealth(StatusOnline, 10*time.Millisecond)

	if r.Get("a").Available() {
		t.Fatal("server without Reality key material selected")
	}
}

func TestSnapshot(t *testing.T) {
	r := New([]config.Server{testConfig("a", 10, 100)})
	s := r.Get("a")
	s.SetHealth(StatusOnline, 25*time.Millisecond)
	s.AddUserSlot()

	snap := s.Snapshot()
	if snap.Status != "online" || snap.LatencyMS != 25 || snap.CurrentUsers != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.Available {
		t.Fatal("snapshot should report available")
	}
}
