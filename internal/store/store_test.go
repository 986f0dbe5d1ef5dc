package store

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/models"
)

// tickClock returns a clock that advances one millisecond per call.
func tickClock() func() time.Time {
	var n atomic.Int64
	base := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

// runStoreSuite exercises the record access contract against one backend.
func runStoreSuite(t *testing.T, open func(t *testing.T, opts ...Option) Store) {
	t.Run("InsertDefaultsEmpty", func(t *testing.T) {
		s := open(t, WithClock(tickClock()))
		id, err := s.Insert(models.Fields{})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		n, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if n.Title != "" || n.Body != "" {
			t.Errorf("got title=%q body=%q, want empty", n.Title, n.Body)
		}
		if n.ModifiedAt == 0 || n.ModifiedAt < n.CreatedAt {
			t.Errorf("modified = %d, created = %d", n.ModifiedAt, n.CreatedAt)
		}
	})

	t.Run("UniqueIDs", func(t *testing.T) {
		s := open(t)
		seen := map[int64]bool{}
		for i := 0; i < 5; i++ {
			id, err := s.Insert(models.Fields{})
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
		}
	})

	t.Run("PartialUpdate", func(t *testing.T) {
		s := open(t, WithClock(tickClock()))
		id, _ := s.Insert(models.Fields{Title: models.Ptr("T"), Body: models.Ptr("B")})
		before, _ := s.Get(id)

		if err := s.Update(id, models.Fields{Body: models.Ptr("B2")}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		n, _ := s.Get(id)
		if n.Title != "T" || n.Body != "B2" {
			t.Errorf("got title=%q body=%q", n.Title, n.Body)
		}
		if n.ModifiedAt <= before.ModifiedAt {
			t.Errorf("modified not refreshed: %d <= %d", n.ModifiedAt, before.ModifiedAt)
		}
	})

	t.Run("ModifiedNeverDecreases", func(t *testing.T) {
		s := open(t)
		id, _ := s.Insert(models.Fields{ModifiedAt: 5000})
		if err := s.Update(id, models.Fields{Body: models.Ptr("x"), ModifiedAt: 1000}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		n, _ := s.Get(id)
		if n.ModifiedAt != 5000 {
			t.Errorf("modified = %d, want 5000", n.ModifiedAt)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		if _, err := s.Get(424242); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := open(t)
		err := s.Update(424242, models.Fields{Body: models.Ptr("x")})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := open(t)
		id, _ := s.Insert(models.Fields{Body: models.Ptr("bye")})
		if err := s.Delete(id); err != nil {
			t.Fatalf("first Delete: %v", err)
		}
		if err := s.Delete(id); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
		if _, err := s.Get(id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get after delete: %v", err)
		}
	})

	t.Run("QueryOrderAndFilter", func(t *testing.T) {
		s := open(t, WithClock(tickClock()))
		for _, title := range []string{"Alpha", "Beta", "Gamma"} {
			if _, err := s.Insert(models.Fields{Title: models.Ptr(title)}); err != nil {
				t.Fatal(err)
			}
		}

		got := titles(t, s, "")
		want := []string{"Gamma", "Beta", "Alpha"}
		if !equal(got, want) {
			t.Errorf("all = %v, want %v", got, want)
		}

		if got := titles(t, s, "A"); !equal(got, []string{"Alpha"}) {
			t.Errorf("filter A = %v", got)
		}
		if got := titles(t, s, "mm"); !equal(got, []string{"Gamma"}) {
			t.Errorf("filter mm = %v", got)
		}
		if got := titles(t, s, "a"); !equal(got, []string{"Gamma", "Beta", "Alpha"}) {
			t.Errorf("filter a = %v", got)
		}
	})

	t.Run("QueryCaseInsensitive", func(t *testing.T) {
		s := open(t, WithClock(tickClock()), WithCaseSensitive(false))
		_, _ = s.Insert(models.Fields{Title: models.Ptr("Alpha")})
		_, _ = s.Insert(models.Fields{Title: models.Ptr("beta")})
		if got := titles(t, s, "ALPHA"); !equal(got, []string{"Alpha"}) {
			t.Errorf("filter ALPHA = %v", got)
		}
	})

	t.Run("QueryRestartable", func(t *testing.T) {
		s := open(t, WithClock(tickClock()))
		_, _ = s.Insert(models.Fields{Title: models.Ptr("one")})
		seq := s.Query(models.SearchFilter{})
		count := func() int {
			n := 0
			for _, err := range seq {
				if err != nil {
					t.Fatal(err)
				}
				n++
			}
			return n
		}
		if c := count(); c != 1 {
			t.Fatalf("first pass = %d", c)
		}
		_, _ = s.Insert(models.Fields{Title: models.Ptr("two")})
		if c := count(); c != 2 {
			t.Errorf("second pass = %d, want 2", c)
		}
	})

	t.Run("QueryEarlyBreak", func(t *testing.T) {
		s := open(t, WithClock(tickClock()))
		for i := 0; i < 3; i++ {
			_, _ = s.Insert(models.Fields{})
		}
		n := 0
		for range s.Query(models.SearchFilter{}) {
			n++
			break
		}
		if n != 1 {
			t.Errorf("n = %d", n)
		}
	})

	t.Run("Watermark", func(t *testing.T) {
		s := open(t, WithClock(tickClock()))
		id, _ := s.Insert(models.Fields{})
		w1 := s.LastModified()
		if w1 == 0 {
			t.Fatal("watermark not set on insert")
		}
		_ = s.Update(id, models.Fields{Body: models.Ptr("x")})
		w2 := s.LastModified()
		if w2 <= w1 {
			t.Errorf("watermark %d -> %d, want increase", w1, w2)
		}
		_ = s.Delete(id)
		if w3 := s.LastModified(); w3 <= w2 {
			t.Errorf("watermark %d -> %d after delete", w2, w3)
		}
	})

	t.Run("ConcurrentDistinctRows", func(t *testing.T) {
		s := open(t)
		ids := make([]int64, 8)
		for i := range ids {
			ids[i], _ = s.Insert(models.Fields{})
		}
		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id int64) {
				defer wg.Done()
				body := string(rune('a' + i))
				for j := 0; j < 10; j++ {
					if err := s.Update(id, models.Fields{Body: models.Ptr(body)}); err != nil {
						t.Errorf("Update %d: %v", id, err)
						return
					}
				}
			}(i, id)
		}
		wg.Wait()
		for i, id := range ids {
			n, err := s.Get(id)
			if err != nil {
				t.Fatal(err)
			}
			if want := string(rune('a' + i)); n.Body != want {
				t.Errorf("note %d body = %q, want %q", id, n.Body, want)
			}
		}
	})

	t.Run("DeleteRacesUpdate", func(t *testing.T) {
		s := open(t)
		id, _ := s.Insert(models.Fields{Body: models.Ptr("held")})
		other, _ := s.Insert(models.Fields{Body: models.Ptr("other")})

		if err := s.Delete(id); err != nil {
			t.Fatal(err)
		}
		err := s.Update(id, models.Fields{Body: models.Ptr("late save")})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("late update err = %v, want ErrNotFound", err)
		}
		n, _ := s.Get(other)
		if n.Body != "other" {
			t.Errorf("other row corrupted: %q", n.Body)
		}
	})
}

func titles(t *testing.T, s Store, pattern string) []string {
	t.Helper()
	var out []string
	for n, err := range s.Query(models.SearchFilter{Pattern: pattern}) {
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		out = append(out, n.Title)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
