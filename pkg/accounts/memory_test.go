package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemory_CreateUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Seed{Users: []User{{ID: "u-1", DisplayName: "Existing", Email: "taro@example.com"}}})

	tests := []struct {
		name    string
		in      NewUser
		wantErr error
	}{
		{name: "fresh subject", in: NewUser{LineSubject: "U1", DisplayName: "A", Role: "customer"}},
		{name: "duplicate subject", in: NewUser{LineSubject: "U1", DisplayName: "B"}, wantErr: ErrSubjectTaken},
		{name: "email collides case-insensitively", in: NewUser{LineSubject: "U2", Email: "TARO@example.com"}, wantErr: ErrEmailTaken},
		{name: "distinct email", in: NewUser{LineSubject: "U3", Email: "hanako@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := m.Create(ctx, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (u.ID == "" || u.CreatedAt.IsZero()) {
				t.Errorf("Create() returned incomplete user %+v", u)
			}
		})
	}
	if got := m.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}

func TestMemory_ConcurrentCreateSameSubject(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Seed{})
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(ctx, NewUser{LineSubject: "Urace", DisplayName: "x"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	var ok, taken int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSubjectTaken):
			taken++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || taken != 7 {
		t.Errorf("ok=%d taken=%d, want 1/7", ok, taken)
	}
}

func TestMemory_UpdatesAndStaff(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Seed{
		Employees: []Employee{{ID: "e-1", UserID: "u-1", TenantID: "t-1", StoreIDs: []string{"s-1"}, Role: "manager"}},
		Stores:    []Store{{ID: "s-1", TenantID: "t-1", Name: "Shibuya"}},
	})
	u, err := m.Create(ctx, NewUser{LineSubject: "U9", DisplayName: "old"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	name := "new"
	if err := m.UpdateProfile(ctx, u.ID, ProfilePatch{DisplayName: &name}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if err := m.SetClaims(ctx, u.ID, "t-1", "customer"); err != nil {
		t.Fatalf("SetClaims() error = %v", err)
	}
	got, _ := m.Get(ctx, u.ID)
	if got.DisplayName != "new" || got.TenantID != "t-1" || got.Role != "customer" {
		t.Errorf("Get() = %+v", got)
	}
	if err := m.SetClaims(ctx, "missing", "t", "r"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetClaims(missing) error = %v", err)
	}

	if _, err := m.EmployeeByUser(ctx, "t-1", "u-1"); err != nil {
		t.Errorf("EmployeeByUser() error = %v", err)
	}
	if _, err := m.EmployeeByUser(ctx, "t-2", "u-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("EmployeeByUser(other tenant) error = %v", err)
	}
	if s, err := m.StoreByID(ctx, "s-1"); err != nil || s.TenantID != "t-1" {
		t.Errorf("StoreByID() = %+v, %v", s, err)
	}
}
