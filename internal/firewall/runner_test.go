package firewall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tappbx/tappbx/internal/database/models"
)

func TestScriptName(t *testing.T) {
	tests := []struct {
		action, family, list string
		want                 string
	}{
		{ActionAdd, FamilyV4, models.ListSIPCustomer, "fw-add-ipv4-sip-customer-list.sh"},
		{ActionDelete, FamilyV6, models.ListWhite, "fw-delete-ipv6-white-list.sh"},
		{ActionShow, FamilyV4, models.ListWebBlock, "fw-show-ipv4-web-block-list.sh"},
		{ActionAdd, FamilyV6, models.ListSIPGateway, "fw-add-ipv6-sip-gateway-list.sh"},
		{ActionDelete, FamilyV4, models.ListBlock, "fw-delete-ipv4-block-list.sh"},
	}
	for _, tt := range tests {
		if got := ScriptName(tt.action, tt.family, tt.list); got != tt.want {
			t.Errorf("ScriptName(%s, %s, %s) = %s, want %s", tt.action, tt.family, tt.list, got, tt.want)
		}
	}
}

func TestFamilyOf(t *testing.T) {
	if FamilyOf("203.0.113.7") != FamilyV4 {
		t.Error("dotted quad must be ipv4")
	}
	if FamilyOf("2001:db8::1") != FamilyV6 {
		t.Error("colon address must be ipv6")
	}
}

func TestMutateRejectsUnknownLists(t *testing.T) {
	r := NewRunner("/usr/local/bin", testLogger())
	r.run = func(ctx context.Context, script string, args []string) ([]byte, error) {
		t.Fatal("helper must not run on invalid input")
		return nil, nil
	}
	if err := r.Mutate(context.Background(), ActionAdd, FamilyV4, "bogus", "1.2.3.4"); err == nil {
		t.Error("want error for unknown list")
	}
	if err := r.Mutate(context.Background(), ActionAdd, "ip", models.ListBlock, "1.2.3.4"); err == nil {
		t.Error("want error for unknown family")
	}
	if err := r.Mutate(context.Background(), ActionShow, FamilyV4, models.ListBlock, "1.2.3.4"); err == nil {
		t.Error("show is not a mutation")
	}
}

func TestMutateNonEmptyOutputIsFailure(t *testing.T) {
	r := NewRunner("/usr/local/bin", testLogger())
	r.backoff = time.Millisecond
	attempts := 0
	r.run = func(ctx context.Context, script string, args []string) ([]byte, error) {
		attempts++
		return []byte("set does not exist"), nil
	}
	err := r.Mutate(context.Background(), ActionAdd, FamilyV4, models.ListBlock, "1.2.3.4")
	if !errors.Is(err, ErrKernelMutation) {
		t.Fatalf("want ErrKernelMutation, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestMutateBatchEmptyIsNoop(t *testing.T) {
	r := NewRunner("/usr/local/bin", testLogger())
	r.run = func(ctx context.Context, script string, args []string) ([]byte, error) {
		t.Fatal("empty batch must not run the helper")
		return nil, nil
	}
	if err := r.MutateBatch(context.Background(), ActionAdd, FamilyV4, models.ListBlock, nil); err != nil {
		t.Fatalf("MutateBatch() error: %v", err)
	}
}

func TestShowReturnsOutput(t *testing.T) {
	r := NewRunner("/usr/local/bin", testLogger())
	r.run = func(ctx context.Context, script string, args []string) ([]byte, error) {
		if len(args) != 0 {
			t.Errorf("show takes no arguments, got %v", args)
		}
		return []byte("203.0.113.7\n203.0.113.8\n"), nil
	}
	out, err := r.Show(context.Background(), FamilyV4, models.ListSIPCustomer)
	if err != nil {
		t.Fatalf("Show() error: %v", err)
	}
	if out != "203.0.113.7\n203.0.113.8\n" {
		t.Errorf("Show() = %q", out)
	}
}
