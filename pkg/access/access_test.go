package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRoleSet(t *testing.T) {
	admin := common.HexToAddress("0x1111111111111111111111111111111111111111")
	rs := NewRoleSet(admin, common.Address{})

	if !rs.IsAdmin(admin) {
		t.Fatal("expected configured principal to be admin")
	}
	if rs.IsAdmin(common.Address{}) {
		t.Fatal("zero address must never be admin")
	}
	if rs.IsAdmin(common.HexToAddress("0x2222222222222222222222222222222222222222")) {
		t.Fatal("unexpected admin")
	}
	if len(rs.Admins()) != 1 {
		t.Fatalf("expected 1 admin, got %d", len(rs.Admins()))
	}
}

func TestPauseSwitch(t *testing.T) {
	var p PauseSwitch
	if p.Paused() {
		t.Fatal("zero value must be unpaused")
	}
	p.SetPaused(true)
	if !p.Paused() {
		t.Fatal("expected paused")
	}
	p.SetPaused(false)
	if p.Paused() {
		t.Fatal("expected resumed")
	}
}
