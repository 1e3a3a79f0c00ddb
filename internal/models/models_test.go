package models

import "testing"

func TestMembershipPredicates(t *testing.T) {
	load := func() (User, Group, Vibe) {
		return User{ID: "u1", GroupIDs: []string{"g1"}},
			Group{ID: "g1", MemberIDs: []string{"u1"}},
			Vibe{ID: "v1", ParticipantIDs: []string{"u2"}}
	}

	if u, _, _ := load(); !u.InGroup("g1") || u.InGroup("g2") {
		t.Error("InGroup")
	}
	if _, g, _ := load(); !g.HasMember("u1") || g.HasMember("u2") {
		t.Error("HasMember")
	}
	if _, _, v := load(); !v.HasParticipant("u2") || v.HasParticipant("u1") {
		t.Error("HasParticipant")
	}
}
