package kv

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vidfetch/vidfetch/server/internal"
)

func TestInsertAndGet(t *testing.T) {
	s := NewStore(0, 0)

	if _, ok := s.Get("missing"); ok {
		t.Error("expected unknown id not to be found")
	}

	s.Insert("a", internal.ProgressRecord{Status: internal.StatusStarting})

	rec, ok := s.Get("a")
	if !ok {
		t.Fatal("expected record to be found right after insert")
	}
	if rec.Status != internal.StatusStarting || rec.Percent != 0 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestUpdateIsMonotonic(t *testing.T) {
	s := NewStore(0, 0)
	s.Insert("a", internal.ProgressRecord{Status: internal.StatusStarting})

	s.Update("a", func(r *internal.ProgressRecord) {
		r.Status = internal.StatusDownloading
		r.Percent = 40
	})

	// progress never goes backwards
	rec, _ := s.Update("a", func(r *internal.ProgressRecord) { r.Percent = 10 })
	if rec.Percent != 40 {
		t.Errorf("expected percent to stay at 40, got %d", rec.Percent)
	}

	// 100 is reserved to completed downloads
	rec, _ = s.Update("a", func(r *internal.ProgressRecord) { r.Percent = 100 })
	if rec.Percent != 99 {
		t.Errorf("expected percent to be capped at 99, got %d", rec.Percent)
	}

	// no way back to starting
	rec, ok := s.Update("a", func(r *internal.ProgressRecord) { r.Status = internal.StatusStarting })
	if ok || rec.Status != internal.StatusDownloading {
		t.Errorf("expected backwards transition to be discarded, got %+v", rec)
	}

	rec, _ = s.Update("a", func(r *internal.ProgressRecord) { r.Status = internal.StatusCompleted })
	if rec.Status != internal.StatusCompleted || rec.Percent != 100 {
		t.Errorf("expected completed at 100, got %+v", rec)
	}
}

func TestTerminalRecordsAreFrozen(t *testing.T) {
	s := NewStore(0, 0)
	s.Insert("a", internal.ProgressRecord{Status: internal.StatusStarting})

	s.Update("a", func(r *internal.ProgressRecord) {
		r.Status = internal.StatusError
		r.Error = "boom"
	})

	rec, ok := s.Update("a", func(r *internal.ProgressRecord) {
		r.Status = internal.StatusCompleted
		r.Error = ""
	})
	if ok {
		t.Error("expected update of a terminal record to be rejected")
	}
	if rec.Status != internal.StatusError || rec.Error != "boom" || rec.Percent == 100 {
		t.Errorf("expected terminal record to be unchanged, got %+v", rec)
	}

	if s.Active() != 0 {
		t.Errorf("expected no active downloads, got %d", s.Active())
	}
	if _, ok := s.Get("a"); !ok {
		t.Error("expected finished record to still be readable")
	}
}

func TestFinishedRecordsAreBounded(t *testing.T) {
	s := NewStore(2, 0)

	for i := range 3 {
		id := fmt.Sprintf("id-%d", i)
		s.Insert(id, internal.ProgressRecord{Status: internal.StatusStarting})
		s.Update(id, func(r *internal.ProgressRecord) { r.Status = internal.StatusCompleted })
	}

	if _, ok := s.Get("id-0"); ok {
		t.Error("expected the oldest finished record to be evicted")
	}
	if _, ok := s.Get("id-2"); !ok {
		t.Error("expected the newest finished record to be kept")
	}
	if _, ok := s.Get("id-1"); !ok {
		t.Error("expected the second finished record to be kept")
	}
}

func TestKeysListsRunningDownloads(t *testing.T) {
	s := NewStore(0, 0)
	s.Insert("a", internal.ProgressRecord{Status: internal.StatusStarting})
	s.Insert("b", internal.ProgressRecord{Status: internal.StatusDownloading})
	s.Insert("c", internal.ProgressRecord{Status: internal.StatusStarting})
	s.Update("c", func(r *internal.ProgressRecord) { r.Status = internal.StatusError })

	keys := s.Keys()
	slices.Sort(keys)

	if !slices.Equal(keys, []string{"a", "b"}) {
		t.Errorf("expected only running downloads, got %v", keys)
	}
	if n := s.Active(); n != 2 {
		t.Errorf("expected 2 active downloads, got %d", n)
	}
}

func TestFinishedRecordsExpire(t *testing.T) {
	s := NewStore(0, 50*time.Millisecond)
	s.Insert("a", internal.ProgressRecord{Status: internal.StatusStarting})
	s.Update("a", func(r *internal.ProgressRecord) { r.Status = internal.StatusCompleted })

	time.Sleep(100 * time.Millisecond)

	if _, ok := s.Get("a"); ok {
		t.Error("expected finished record to expire")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(0, 0)

	var wg sync.WaitGroup
	for i := range 20 {
		id := fmt.Sprintf("id-%d", i)
		s.Insert(id, internal.ProgressRecord{Status: internal.StatusStarting})

		wg.Add(2)
		go func() {
			defer wg.Done()
			for p := 0; p <= 100; p += 10 {
				s.Update(id, func(r *internal.ProgressRecord) {
					r.Status = internal.StatusDownloading
					r.Percent = p
				})
			}
			s.Update(id, func(r *internal.ProgressRecord) { r.Status = internal.StatusCompleted })
		}()
		go func() {
			defer wg.Done()
			last := 0
			for range 50 {
				rec, ok := s.Get(id)
				if !ok {
					t.Errorf("record %s disappeared", id)
					return
				}
				if rec.Percent < last {
					t.Errorf("percent of %s went backwards: %d -> %d", id, last, rec.Percent)
				}
				last = rec.Percent
			}
		}()
	}
	wg.Wait()

	if s.Active() != 0 {
		t.Errorf("expected every download to be finished, %d still active", s.Active())
	}
}
